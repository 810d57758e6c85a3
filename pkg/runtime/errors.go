package runtime

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when an operation needs a loaded pipeline and none is set
	ErrConfiguration = errors.New("no pipeline loaded")

	// ErrStateMismatch is returned when a saved state belongs to a different pipeline
	ErrStateMismatch = errors.New("execution state does not match pipeline")

	// ErrNoAdapter is returned when a saved state is requested from an engine without storage
	ErrNoAdapter = errors.New("no storage adapter configured")
)

// StateMismatchError reports the pipeline ids involved in a failed resume
type StateMismatchError struct {
	Expected string
	Actual   string
}

func (e *StateMismatchError) Error() string {
	return fmt.Sprintf("state mismatch: saved state belongs to pipeline %q, loaded pipeline is %q", e.Actual, e.Expected)
}

func (e *StateMismatchError) Unwrap() error { return ErrStateMismatch }

// NodeExecutionError wraps an error raised while executing a node
type NodeExecutionError struct {
	NodeID string
	Err    error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s failed: %v", e.NodeID, e.Err)
}

func (e *NodeExecutionError) Unwrap() error { return e.Err }
