package storage

import (
	"fmt"
)

// ProviderType represents the type of storage provider
type ProviderType string

const (
	// MemoryProviderType is an in-memory storage provider
	MemoryProviderType ProviderType = "memory"

	// FileProviderType stores one JSON file per pipeline
	FileProviderType ProviderType = "file"

	// RedisProviderType is a Redis storage provider
	RedisProviderType ProviderType = "redis"

	// DynamoDBProviderType is a DynamoDB storage provider
	DynamoDBProviderType ProviderType = "dynamodb"

	// PostgreSQLProviderType is a PostgreSQL storage provider
	PostgreSQLProviderType ProviderType = "postgresql"

	// SQLiteProviderType is a SQLite storage provider
	SQLiteProviderType ProviderType = "sqlite"
)

// ProviderConfig contains configuration for storage providers
type ProviderConfig struct {
	// Type is the type of storage provider to create
	Type ProviderType

	File       *FileProviderConfig
	Redis      *RedisProviderConfig
	DynamoDB   *DynamoDBProviderConfig
	PostgreSQL *PostgreSQLProviderConfig
	SQLite     *SQLiteProviderConfig
}

// NewProvider creates a new storage provider based on the configuration.
// The returned provider still needs Initialize.
func NewProvider(config ProviderConfig) (Provider, error) {
	switch config.Type {
	case MemoryProviderType, "":
		return NewMemoryProvider(), nil

	case FileProviderType:
		if config.File == nil {
			return nil, fmt.Errorf("file configuration is required for file provider")
		}
		return NewFileProvider(*config.File)

	case RedisProviderType:
		if config.Redis == nil {
			return nil, fmt.Errorf("redis configuration is required for redis provider")
		}
		return NewRedisProvider(*config.Redis)

	case DynamoDBProviderType:
		if config.DynamoDB == nil {
			return nil, fmt.Errorf("DynamoDB configuration is required for DynamoDB provider")
		}
		return NewDynamoDBProvider(*config.DynamoDB)

	case PostgreSQLProviderType:
		if config.PostgreSQL == nil {
			return nil, fmt.Errorf("PostgreSQL configuration is required for PostgreSQL provider")
		}
		return NewPostgreSQLProvider(*config.PostgreSQL)

	case SQLiteProviderType:
		if config.SQLite == nil {
			return nil, fmt.Errorf("SQLite configuration is required for SQLite provider")
		}
		return NewSQLiteProvider(*config.SQLite)

	default:
		return nil, fmt.Errorf("unknown provider type: %s", config.Type)
	}
}
