package models

import "time"

// NodeStatus is the lifecycle state of a single node
type NodeStatus string

const (
	NodeIdle      NodeStatus = "IDLE"
	NodePending   NodeStatus = "PENDING"
	NodeRunning   NodeStatus = "RUNNING"
	NodeCompleted NodeStatus = "COMPLETED"
	NodeFailed    NodeStatus = "FAILED"
	NodeSkipped   NodeStatus = "SKIPPED"
	NodeWaiting   NodeStatus = "WAITING"
)

// RunStatus is the overall status of an execution
type RunStatus string

const (
	RunIdle      RunStatus = "IDLE"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunPaused    RunStatus = "PAUSED"
)

// IsTerminal reports whether the run can make no further progress
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// NodeState tracks one node within an execution
type NodeState struct {
	// Status of the node
	Status NodeStatus `json:"status"`

	// StartTime is when the node started running, in Unix milliseconds
	StartTime int64 `json:"startTime,omitempty"`

	// EndTime is when the node completed or failed, in Unix milliseconds
	EndTime int64 `json:"endTime,omitempty"`

	// Error message if the node failed
	Error string `json:"error,omitempty"`

	// Output produced by the node's strategy
	Output interface{} `json:"output,omitempty"`
}

// ExecutionState is the serializable snapshot of one run
type ExecutionState struct {
	// ExecutionID is unique per run
	ExecutionID string `json:"executionId"`

	// PipelineID references the pipeline being executed
	PipelineID string `json:"pipelineId"`

	// Status of the run
	Status RunStatus `json:"status"`

	// NodeStates tracks every node by id
	NodeStates map[string]*NodeState `json:"nodeStates"`

	// Context is the shared variable store read and written by nodes
	Context map[string]interface{} `json:"context"`
}

// NewExecutionState creates a state with every pipeline node IDLE
func NewExecutionState(executionID string, pipeline *Pipeline, status RunStatus, context map[string]interface{}) *ExecutionState {
	if context == nil {
		context = make(map[string]interface{})
	}
	state := &ExecutionState{
		ExecutionID: executionID,
		PipelineID:  pipeline.ID,
		Status:      status,
		NodeStates:  make(map[string]*NodeState, len(pipeline.Nodes)),
		Context:     context,
	}
	for _, n := range pipeline.Nodes {
		state.NodeStates[n.ID] = &NodeState{Status: NodeIdle}
	}
	return state
}

// NodeStatusOf returns the status of a node, or "" when the node is unknown
func (s *ExecutionState) NodeStatusOf(id string) NodeStatus {
	if ns, ok := s.NodeStates[id]; ok && ns != nil {
		return ns.Status
	}
	return ""
}

// Clone returns a deep copy of the state. Maps and slices reachable from the
// context and node outputs are copied; other values are shared.
func (s *ExecutionState) Clone() *ExecutionState {
	if s == nil {
		return nil
	}
	out := &ExecutionState{
		ExecutionID: s.ExecutionID,
		PipelineID:  s.PipelineID,
		Status:      s.Status,
		NodeStates:  make(map[string]*NodeState, len(s.NodeStates)),
		Context:     CopyMap(s.Context),
	}
	for id, ns := range s.NodeStates {
		if ns == nil {
			continue
		}
		cp := *ns
		cp.Output = CopyValue(ns.Output)
		out.NodeStates[id] = &cp
	}
	return out
}

// CopyMap deep copies a JSON-like map
func CopyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return make(map[string]interface{})
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = CopyValue(v)
	}
	return out
}

// CopyValue deep copies maps and slices, returning other values unchanged
func CopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return CopyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = CopyValue(item)
		}
		return out
	default:
		return v
	}
}

// NowMillis returns the current time in Unix milliseconds
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
