package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tcmartin/dagrunner/pkg/models"
)

// SQLiteProviderConfig contains configuration for the SQLite provider
type SQLiteProviderConfig struct {
	// Path to the database file. ":memory:" is accepted for tests.
	Path string
}

// SQLiteProvider stores snapshots in a single-file SQLite database
type SQLiteProvider struct {
	db *sql.DB
}

// NewSQLiteProvider opens the database
func NewSQLiteProvider(config SQLiteProviderConfig) (*SQLiteProvider, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("path is required for sqlite provider")
	}

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	return &SQLiteProvider{db: db}, nil
}

// Initialize applies pragmas and creates the state table
func (p *SQLiteProvider) Initialize(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := p.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS execution_states (
			pipeline_id TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL,
			status TEXT NOT NULL,
			state TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create execution_states table: %w", err)
	}
	return nil
}

// Close cleans up resources
func (p *SQLiteProvider) Close() error {
	return p.db.Close()
}

// Save persists the snapshot
func (p *SQLiteProvider) Save(ctx context.Context, state *models.ExecutionState) error {
	data, err := encodeState(state)
	if err != nil {
		return persistErr("save", pipelineIDOf(state), err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO execution_states (pipeline_id, execution_id, status, state, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(pipeline_id) DO UPDATE SET
			execution_id = excluded.execution_id,
			status = excluded.status,
			state = excluded.state,
			updated_at = CURRENT_TIMESTAMP
	`, state.PipelineID, state.ExecutionID, string(state.Status), string(data))
	if err != nil {
		return persistErr("save", state.PipelineID, err)
	}
	return nil
}

// Load retrieves the snapshot for a pipeline
func (p *SQLiteProvider) Load(ctx context.Context, pipelineID string) (*models.ExecutionState, error) {
	var data string
	err := p.db.QueryRowContext(ctx,
		`SELECT state FROM execution_states WHERE pipeline_id = ?`, pipelineID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, persistErr("load", pipelineID, err)
	}

	state, err := decodeState([]byte(data))
	if err != nil {
		return nil, persistErr("load", pipelineID, err)
	}
	return state, nil
}

// Clear removes the snapshot for a pipeline
func (p *SQLiteProvider) Clear(ctx context.Context, pipelineID string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM execution_states WHERE pipeline_id = ?`, pipelineID); err != nil {
		return persistErr("clear", pipelineID, err)
	}
	return nil
}
