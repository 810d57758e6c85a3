package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPipeline() *Pipeline {
	return &Pipeline{
		ID:   "p1",
		Name: "Test",
		Nodes: []Node{
			{ID: "a", Type: "log"},
			{ID: "b", Type: "log"},
		},
		Edges: []Edge{{ID: "e1", Source: "a", Target: "b"}},
	}
}

func TestNewExecutionState(t *testing.T) {
	state := NewExecutionState("exec-1", testPipeline(), RunRunning, nil)

	assert.Equal(t, "exec-1", state.ExecutionID)
	assert.Equal(t, "p1", state.PipelineID)
	assert.Equal(t, RunRunning, state.Status)
	assert.NotNil(t, state.Context)
	assert.Len(t, state.NodeStates, 2)
	assert.Equal(t, NodeIdle, state.NodeStatusOf("a"))
	assert.Equal(t, NodeIdle, state.NodeStatusOf("b"))
	assert.Equal(t, NodeStatus(""), state.NodeStatusOf("missing"))
}

func TestExecutionStateCloneIsDeep(t *testing.T) {
	state := NewExecutionState("exec-1", testPipeline(), RunRunning, map[string]interface{}{
		"nested": map[string]interface{}{"k": "v"},
		"list":   []interface{}{1, 2},
	})
	state.NodeStates["a"].Output = map[string]interface{}{"x": 1}

	clone := state.Clone()
	clone.Context["nested"].(map[string]interface{})["k"] = "changed"
	clone.Context["list"].([]interface{})[0] = 99
	clone.NodeStates["a"].Status = NodeCompleted
	clone.NodeStates["a"].Output.(map[string]interface{})["x"] = 2

	assert.Equal(t, "v", state.Context["nested"].(map[string]interface{})["k"])
	assert.Equal(t, 1, state.Context["list"].([]interface{})[0])
	assert.Equal(t, NodeIdle, state.NodeStates["a"].Status)
	assert.Equal(t, 1, state.NodeStates["a"].Output.(map[string]interface{})["x"])
}

func TestExecutionStateJSONShape(t *testing.T) {
	state := NewExecutionState("exec-1", testPipeline(), RunPaused, map[string]interface{}{"k": "v"})
	state.NodeStates["a"] = &NodeState{Status: NodeCompleted, StartTime: 10, EndTime: 20, Output: "ok"}

	data, err := json.Marshal(state)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "exec-1", raw["executionId"])
	assert.Equal(t, "p1", raw["pipelineId"])
	assert.Equal(t, "PAUSED", raw["status"])

	nodeStates := raw["nodeStates"].(map[string]interface{})
	a := nodeStates["a"].(map[string]interface{})
	assert.Equal(t, "COMPLETED", a["status"])
	assert.Equal(t, float64(10), a["startTime"])
	assert.Equal(t, float64(20), a["endTime"])
	assert.NotContains(t, nodeStates["b"].(map[string]interface{}), "startTime")
}

func TestRunStatusIsTerminal(t *testing.T) {
	assert.True(t, RunCompleted.IsTerminal())
	assert.True(t, RunFailed.IsTerminal())
	assert.False(t, RunRunning.IsTerminal())
	assert.False(t, RunPaused.IsTerminal())
	assert.False(t, RunIdle.IsTerminal())
}
