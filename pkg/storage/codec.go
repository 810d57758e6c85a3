package storage

import (
	"encoding/json"
	"fmt"

	"github.com/tcmartin/dagrunner/pkg/models"
)

// encodeState serializes a snapshot to its JSON document form
func encodeState(state *models.ExecutionState) ([]byte, error) {
	if state == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if state.PipelineID == "" {
		return nil, fmt.Errorf("state has no pipeline id")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution state: %w", err)
	}
	return data, nil
}

// decodeState parses a JSON snapshot
func decodeState(data []byte) (*models.ExecutionState, error) {
	var state models.ExecutionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution state: %w", err)
	}
	if state.NodeStates == nil {
		state.NodeStates = make(map[string]*models.NodeState)
	}
	if state.Context == nil {
		state.Context = make(map[string]interface{})
	}
	return &state, nil
}
