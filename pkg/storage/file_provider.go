package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/tcmartin/dagrunner/pkg/models"
)

// FileProviderConfig contains configuration for the file provider
type FileProviderConfig struct {
	// Directory holds one JSON document per pipeline
	Directory string
}

// FileProvider stores each snapshot as <dir>/<escaped pipeline id>.json.
// Writes go to a temp file that is renamed into place.
type FileProvider struct {
	dir string
}

// NewFileProvider creates a new file storage provider
func NewFileProvider(config FileProviderConfig) (*FileProvider, error) {
	if config.Directory == "" {
		return nil, fmt.Errorf("directory is required for file provider")
	}
	return &FileProvider{dir: config.Directory}, nil
}

// Initialize creates the state directory
func (p *FileProvider) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	return nil
}

// Close cleans up resources
func (p *FileProvider) Close() error {
	return nil
}

func (p *FileProvider) path(pipelineID string) string {
	return filepath.Join(p.dir, url.PathEscape(pipelineID)+".json")
}

// Save persists the snapshot
func (p *FileProvider) Save(ctx context.Context, state *models.ExecutionState) error {
	data, err := encodeState(state)
	if err != nil {
		return persistErr("save", pipelineIDOf(state), err)
	}

	if err := writeFileAtomic(p.dir, p.path(state.PipelineID), data); err != nil {
		return persistErr("save", state.PipelineID, err)
	}
	return nil
}

// Load retrieves the snapshot for a pipeline
func (p *FileProvider) Load(ctx context.Context, pipelineID string) (*models.ExecutionState, error) {
	data, err := os.ReadFile(p.path(pipelineID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrStateNotFound
		}
		return nil, persistErr("load", pipelineID, err)
	}

	state, err := decodeState(data)
	if err != nil {
		return nil, persistErr("load", pipelineID, err)
	}
	return state, nil
}

// Clear removes the snapshot for a pipeline
func (p *FileProvider) Clear(ctx context.Context, pipelineID string) error {
	err := os.Remove(p.path(pipelineID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return persistErr("clear", pipelineID, err)
	}
	return nil
}

func writeFileAtomic(dir, target string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("failed to rename state file: %w", err)
	}
	return nil
}
