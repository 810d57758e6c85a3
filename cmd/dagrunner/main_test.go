package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmartin/dagrunner/pkg/models"
	"github.com/tcmartin/dagrunner/pkg/storage"
	"github.com/tcmartin/dagrunner/pkg/toposort"
)

func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	t.Setenv(EnvConfigPath, "")

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		t.Logf("stderr: %s", stderr.String())
	}
	return stdout.String(), err
}

// fileStorageConfig writes a config that persists state under a temp directory
func fileStorageConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	stateDir := filepath.Join(dir, "state")
	path := filepath.Join(dir, "config.yaml")

	content := fmt.Sprintf(`storage:
  type: file
  file:
    directory: %s
logging:
  level: error
`, stateDir)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path, stateDir
}

func decodeOutput(t *testing.T, out string) *models.ExecutionState {
	t.Helper()
	var state models.ExecutionState
	require.NoError(t, json.Unmarshal([]byte(out), &state), out)
	return &state
}

func TestSortGolden(t *testing.T) {
	out, err := execute(t, context.Background(), "sort", "testdata/diamond.yaml")
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "sort_diamond", []byte(out))
}

func TestSortJSONGolden(t *testing.T) {
	out, err := execute(t, context.Background(), "--format", "json", "sort", "testdata/diamond.yaml")
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "sort_diamond_json", []byte(out))
}

func TestSortRejectsCycle(t *testing.T) {
	_, err := execute(t, context.Background(), "sort", "testdata/cycle.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, toposort.ErrCycleDetected)
}

func TestValidate(t *testing.T) {
	out, err := execute(t, context.Background(), "validate", "testdata/diamond.yaml")
	require.NoError(t, err)
	assert.Equal(t, "pipeline diamond is valid: 4 nodes, 4 edges\n", out)

	out, err = execute(t, context.Background(), "--format", "json", "validate", "testdata/double.yaml")
	require.NoError(t, err)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, true, result["valid"])
	assert.Equal(t, "double", result["id"])
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no file", []string{"validate"}, "no pipeline file"},
		{"missing file", []string{"validate", "testdata/missing.yaml"}, "missing.yaml"},
		{"bad format flag", []string{"--format", "xml", "validate", "testdata/diamond.yaml"}, "invalid format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, context.Background(), tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun(t *testing.T) {
	out, err := execute(t, context.Background(), "--log-level", "error", "run", "testdata/double.yaml", "--context", "x=21")
	require.NoError(t, err)

	state := decodeOutput(t, out)
	assert.Equal(t, models.RunCompleted, state.Status)
	assert.Equal(t, "double", state.PipelineID)
	assert.EqualValues(t, 42, state.Context["doubled"])
	assert.Equal(t, "value=42", state.Context["label"])
	for id, ns := range state.NodeStates {
		assert.Equal(t, models.NodeCompleted, ns.Status, id)
	}
}

func TestRunFailure(t *testing.T) {
	out, err := execute(t, context.Background(), "--log-level", "error", "run", "testdata/failing.yaml")
	require.Error(t, err)

	var failed *RunFailedError
	require.ErrorAs(t, err, &failed)
	assert.Contains(t, failed.Nodes, "boom")
	assert.Contains(t, failed.Nodes["boom"], "boom")
	assert.NotContains(t, failed.Nodes, "after")

	state := decodeOutput(t, out)
	assert.Equal(t, models.RunFailed, state.Status)
	assert.NotEqual(t, models.NodeCompleted, state.NodeStates["after"].Status)
}

func TestRunRejectsBadContext(t *testing.T) {
	_, err := execute(t, context.Background(), "run", "testdata/double.yaml", "--context", "novalue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected key=value")
}

func TestParseContextPairs(t *testing.T) {
	got, err := parseContextPairs([]string{
		"n=3",
		"flag=true",
		"name=alice",
		`obj={"a":1}`,
		"expr=a=b",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{
		"n":    float64(3),
		"flag": true,
		"name": "alice",
		"obj":  map[string]interface{}{"a": float64(1)},
		"expr": "a=b",
	}, got)

	_, err = parseContextPairs([]string{"=x"})
	assert.Error(t, err)
}

func TestParseSchedule(t *testing.T) {
	for _, spec := range []string{"*/5 * * * * *", "0 * * * *", "@hourly", "@every 1m"} {
		_, err := parseSchedule(spec)
		assert.NoError(t, err, spec)
	}

	_, err := parseSchedule("not a schedule")
	assert.Error(t, err)
}

func TestRunOnSchedule(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	out, err := execute(t, ctx, "--log-level", "error", "run", "testdata/diamond.yaml", "--cron", "@every 1s")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "COMPLETED"`)
}

func TestStatusWithoutSavedState(t *testing.T) {
	_, err := execute(t, context.Background(), "--log-level", "error", "status", "testdata/double.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrStateNotFound)
}

func TestLifecycleWithFileStorage(t *testing.T) {
	configPath, stateDir := fileStorageConfig(t)
	ctx := context.Background()

	out, err := execute(t, ctx, "--config", configPath, "run", "testdata/double.yaml", "--context", "x=5")
	require.NoError(t, err)
	run := decodeOutput(t, out)
	require.Equal(t, models.RunCompleted, run.Status)

	out, err = execute(t, ctx, "--config", configPath, "status", "testdata/double.yaml")
	require.NoError(t, err)
	saved := decodeOutput(t, out)
	assert.Equal(t, run.ExecutionID, saved.ExecutionID)
	assert.Equal(t, models.RunCompleted, saved.Status)
	assert.EqualValues(t, 10, saved.Context["doubled"])

	out, err = execute(t, ctx, "--config", configPath, "reset", "testdata/double.yaml")
	require.NoError(t, err)
	reset := decodeOutput(t, out)
	assert.Equal(t, models.RunIdle, reset.Status)
	assert.NotEqual(t, run.ExecutionID, reset.ExecutionID)

	out, err = execute(t, ctx, "--config", configPath, "status", "testdata/double.yaml")
	require.NoError(t, err)
	assert.Equal(t, reset.ExecutionID, decodeOutput(t, out).ExecutionID)

	// Simulate a process that stopped after the first node
	provider, err := storage.NewFileProvider(storage.FileProviderConfig{Directory: stateDir})
	require.NoError(t, err)
	require.NoError(t, provider.Initialize(ctx))
	require.NoError(t, provider.Save(ctx, &models.ExecutionState{
		ExecutionID: "exec-interrupted",
		PipelineID:  "double",
		Status:      models.RunRunning,
		NodeStates: map[string]*models.NodeState{
			"double": {Status: models.NodeCompleted},
			"label":  {Status: models.NodeRunning},
		},
		Context: map[string]interface{}{"x": 5, "doubled": 100},
	}))

	out, err = execute(t, ctx, "--config", configPath, "resume", "testdata/double.yaml")
	require.NoError(t, err)
	resumed := decodeOutput(t, out)
	assert.Equal(t, "exec-interrupted", resumed.ExecutionID)
	assert.Equal(t, models.RunCompleted, resumed.Status)
	assert.EqualValues(t, 100, resumed.Context["doubled"])
	assert.Equal(t, "value=100", resumed.Context["label"])

	out, err = execute(t, ctx, "--config", configPath, "status", "testdata/double.yaml")
	require.NoError(t, err)
	final := decodeOutput(t, out)
	assert.Equal(t, "exec-interrupted", final.ExecutionID)
	assert.Equal(t, models.RunCompleted, final.Status)
}

func TestResumeIdleStateSchedulesNothing(t *testing.T) {
	configPath, _ := fileStorageConfig(t)
	ctx := context.Background()

	_, err := execute(t, ctx, "--config", configPath, "reset", "testdata/double.yaml")
	require.NoError(t, err)

	out, err := execute(t, ctx, "--config", configPath, "resume", "testdata/double.yaml")
	require.NoError(t, err)
	state := decodeOutput(t, out)
	assert.Equal(t, models.RunIdle, state.Status)
	assert.Empty(t, state.Context)
}

func TestRunFailedErrorMessage(t *testing.T) {
	err := &RunFailedError{
		ExecutionID: "e1",
		Nodes:       map[string]string{"b": "second", "a": "first"},
	}
	assert.Equal(t, "run e1 failed: a: first; b: second", err.Error())
}
