package storage

import (
	"context"
	"sync"

	"github.com/tcmartin/dagrunner/pkg/models"
)

// MemoryProvider keeps snapshots in process memory. Snapshots are stored in
// encoded form so callers never share maps with the store.
type MemoryProvider struct {
	states map[string][]byte
	mu     sync.RWMutex
}

// NewMemoryProvider creates a new in-memory storage provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		states: make(map[string][]byte),
	}
}

// Initialize sets up the storage backend
func (p *MemoryProvider) Initialize(ctx context.Context) error {
	// Nothing to initialize for in-memory storage
	return nil
}

// Close cleans up resources
func (p *MemoryProvider) Close() error {
	return nil
}

// Save persists the snapshot
func (p *MemoryProvider) Save(ctx context.Context, state *models.ExecutionState) error {
	data, err := encodeState(state)
	if err != nil {
		return persistErr("save", pipelineIDOf(state), err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[state.PipelineID] = data

	return nil
}

// Load retrieves the snapshot for a pipeline
func (p *MemoryProvider) Load(ctx context.Context, pipelineID string) (*models.ExecutionState, error) {
	p.mu.RLock()
	data, ok := p.states[pipelineID]
	p.mu.RUnlock()

	if !ok {
		return nil, ErrStateNotFound
	}

	state, err := decodeState(data)
	if err != nil {
		return nil, persistErr("load", pipelineID, err)
	}
	return state, nil
}

// Clear removes the snapshot for a pipeline
func (p *MemoryProvider) Clear(ctx context.Context, pipelineID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.states, pipelineID)
	return nil
}

func pipelineIDOf(state *models.ExecutionState) string {
	if state == nil {
		return ""
	}
	return state.PipelineID
}
