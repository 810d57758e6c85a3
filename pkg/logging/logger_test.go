package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LogConfig{Level: "info", Format: "json"})

	logger.WithFields(F("component", "engine")).Info("run started", F("nodes", 3))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run started", entry["msg"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, float64(3), entry["nodes"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LogConfig{Level: "warn", Format: "text"})

	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Warn("visible", Err(errors.New("boom")))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "boom")
}

func TestLogRunAndNodeEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LogConfig{Level: "debug", Format: "text"})

	logger.LogRunEvent("p1", "exec-1", "run_completed", map[string]interface{}{"status": "COMPLETED"})
	logger.LogNodeEvent("p1", "exec-1", "n1", "node_failed", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "execution_id=exec-1")
	assert.Contains(t, lines[0], "status=COMPLETED")
	assert.Contains(t, lines[1], "node_id=n1")
}

func TestNewLoggerOutputs(t *testing.T) {
	_, err := NewLogger(LogConfig{Output: "file"})
	assert.Error(t, err)

	_, err = NewLogger(LogConfig{Output: "syslog"})
	assert.Error(t, err)

	logger, err := NewLogger(LogConfig{Output: "file", FilePath: filepath.Join(t.TempDir(), "run.log")})
	require.NoError(t, err)
	logger.Info("written")
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LogConfig{Format: "text"})

	ctx := WithLogger(context.Background(), logger)
	FromContext(ctx).Info("from context")
	FromContext(context.Background()).Info("discarded")

	assert.Contains(t, buf.String(), "from context")
	assert.NotContains(t, buf.String(), "discarded")
}
