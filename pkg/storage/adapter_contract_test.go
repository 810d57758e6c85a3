package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcmartin/dagrunner/pkg/models"
)

func sampleState(pipelineID, executionID string) *models.ExecutionState {
	return &models.ExecutionState{
		ExecutionID: executionID,
		PipelineID:  pipelineID,
		Status:      models.RunRunning,
		NodeStates: map[string]*models.NodeState{
			"A": {Status: models.NodeCompleted, StartTime: 1000, EndTime: 1500, Output: "hello"},
			"B": {Status: models.NodeFailed, StartTime: 1000, EndTime: 1200, Error: "boom"},
			"C": {Status: models.NodeIdle},
		},
		Context: map[string]interface{}{
			"A":      "hello",
			"nested": map[string]interface{}{"count": float64(2)},
		},
	}
}

// runAdapterContract exercises the behavior every provider must share
func runAdapterContract(t *testing.T, adapter Adapter) {
	t.Helper()
	ctx := context.Background()

	t.Run("load missing", func(t *testing.T) {
		_, err := adapter.Load(ctx, "missing-pipeline")
		assert.True(t, errors.Is(err, ErrStateNotFound))
	})

	t.Run("save and load", func(t *testing.T) {
		state := sampleState("p-roundtrip", "exec-1")
		require.NoError(t, adapter.Save(ctx, state))

		loaded, err := adapter.Load(ctx, "p-roundtrip")
		require.NoError(t, err)
		assert.Equal(t, "exec-1", loaded.ExecutionID)
		assert.Equal(t, models.RunRunning, loaded.Status)
		assert.Equal(t, models.NodeCompleted, loaded.NodeStates["A"].Status)
		assert.Equal(t, int64(1500), loaded.NodeStates["A"].EndTime)
		assert.Equal(t, "hello", loaded.NodeStates["A"].Output)
		assert.Equal(t, "boom", loaded.NodeStates["B"].Error)
		assert.Equal(t, models.NodeIdle, loaded.NodeStates["C"].Status)
		assert.Equal(t, map[string]interface{}{"count": float64(2)}, loaded.Context["nested"])
	})

	t.Run("save overwrites", func(t *testing.T) {
		require.NoError(t, adapter.Save(ctx, sampleState("p-overwrite", "exec-1")))

		second := sampleState("p-overwrite", "exec-2")
		second.Status = models.RunCompleted
		require.NoError(t, adapter.Save(ctx, second))

		loaded, err := adapter.Load(ctx, "p-overwrite")
		require.NoError(t, err)
		assert.Equal(t, "exec-2", loaded.ExecutionID)
		assert.Equal(t, models.RunCompleted, loaded.Status)
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, adapter.Save(ctx, sampleState("p-clear", "exec-1")))
		require.NoError(t, adapter.Clear(ctx, "p-clear"))

		_, err := adapter.Load(ctx, "p-clear")
		assert.True(t, errors.Is(err, ErrStateNotFound))

		// clearing again is a no-op
		assert.NoError(t, adapter.Clear(ctx, "p-clear"))
	})

	t.Run("pipelines are isolated", func(t *testing.T) {
		require.NoError(t, adapter.Save(ctx, sampleState("p-one", "exec-one")))
		require.NoError(t, adapter.Save(ctx, sampleState("p-two", "exec-two")))
		require.NoError(t, adapter.Clear(ctx, "p-one"))

		loaded, err := adapter.Load(ctx, "p-two")
		require.NoError(t, err)
		assert.Equal(t, "exec-two", loaded.ExecutionID)
	})

	t.Run("reject nil state", func(t *testing.T) {
		err := adapter.Save(ctx, nil)
		require.Error(t, err)
		var perr *PersistenceError
		assert.True(t, errors.As(err, &perr))
		assert.Equal(t, "save", perr.Op)
	})
}
