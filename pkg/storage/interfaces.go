// Package storage provides persistence backends for execution state snapshots.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/tcmartin/dagrunner/pkg/models"
)

// Adapter persists execution state snapshots keyed by pipeline id
type Adapter interface {
	// Save persists the snapshot, replacing any previous one for the same pipeline
	Save(ctx context.Context, state *models.ExecutionState) error

	// Load retrieves the snapshot for a pipeline. Returns ErrStateNotFound when absent.
	Load(ctx context.Context, pipelineID string) (*models.ExecutionState, error)

	// Clear removes the snapshot for a pipeline. Clearing a missing snapshot is not an error.
	Clear(ctx context.Context, pipelineID string) error
}

// Provider is an Adapter with a managed lifecycle
type Provider interface {
	Adapter

	// Initialize sets up the storage backend (tables, directories, connectivity)
	Initialize(ctx context.Context) error

	// Close cleans up resources
	Close() error
}

// ErrStateNotFound is returned by Load when no snapshot exists for a pipeline
var ErrStateNotFound = errors.New("execution state not found")

// PersistenceError wraps a backend failure with the operation that caused it
type PersistenceError struct {
	Op         string
	PipelineID string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s state for pipeline %s: %v", e.Op, e.PipelineID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op, pipelineID string, err error) error {
	return &PersistenceError{Op: op, PipelineID: pipelineID, Err: err}
}
