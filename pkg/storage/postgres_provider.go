package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/tcmartin/dagrunner/pkg/models"
)

// PostgreSQLProvider stores snapshots in a JSONB column keyed by pipeline id
type PostgreSQLProvider struct {
	db *sql.DB
}

// PostgreSQLProviderConfig contains configuration for the PostgreSQL provider
type PostgreSQLProviderConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewPostgreSQLProvider creates a new PostgreSQL storage provider
func NewPostgreSQLProvider(config PostgreSQLProviderConfig) (*PostgreSQLProvider, error) {
	// Set default port if not specified
	if config.Port == 0 {
		config.Port = 5432
	}

	// Set default SSL mode if not specified
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	return &PostgreSQLProvider{db: db}, nil
}

// Initialize pings the database and creates the state table
func (p *PostgreSQLProvider) Initialize(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS execution_states (
			pipeline_id VARCHAR(255) PRIMARY KEY,
			execution_id VARCHAR(255) NOT NULL,
			status VARCHAR(50) NOT NULL,
			state JSONB NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create execution_states table: %w", err)
	}

	return nil
}

// Close cleans up resources
func (p *PostgreSQLProvider) Close() error {
	return p.db.Close()
}

// Save persists the snapshot
func (p *PostgreSQLProvider) Save(ctx context.Context, state *models.ExecutionState) error {
	data, err := encodeState(state)
	if err != nil {
		return persistErr("save", pipelineIDOf(state), err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO execution_states (pipeline_id, execution_id, status, state, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (pipeline_id) DO UPDATE SET
			execution_id = EXCLUDED.execution_id,
			status = EXCLUDED.status,
			state = EXCLUDED.state,
			updated_at = NOW()
	`, state.PipelineID, state.ExecutionID, string(state.Status), string(data))
	if err != nil {
		return persistErr("save", state.PipelineID, err)
	}

	return nil
}

// Load retrieves the snapshot for a pipeline
func (p *PostgreSQLProvider) Load(ctx context.Context, pipelineID string) (*models.ExecutionState, error) {
	var data []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT state FROM execution_states WHERE pipeline_id = $1`, pipelineID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, persistErr("load", pipelineID, err)
	}

	state, err := decodeState(data)
	if err != nil {
		return nil, persistErr("load", pipelineID, err)
	}
	return state, nil
}

// Clear removes the snapshot for a pipeline
func (p *PostgreSQLProvider) Clear(ctx context.Context, pipelineID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM execution_states WHERE pipeline_id = $1`, pipelineID)
	if err != nil {
		return persistErr("clear", pipelineID, err)
	}
	return nil
}
