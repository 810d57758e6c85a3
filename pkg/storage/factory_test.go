package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
)

func init() {
	// Load .env file from project root
	_ = godotenv.Load("../../.env")
}

func TestNewProvider(t *testing.T) {
	// memory is also the default
	memoryProvider, err := NewProvider(ProviderConfig{Type: MemoryProviderType})
	assert.NoError(t, err)
	assert.IsType(t, &MemoryProvider{}, memoryProvider)

	defaultProvider, err := NewProvider(ProviderConfig{})
	assert.NoError(t, err)
	assert.IsType(t, &MemoryProvider{}, defaultProvider)

	fileProvider, err := NewProvider(ProviderConfig{
		Type: FileProviderType,
		File: &FileProviderConfig{Directory: t.TempDir()},
	})
	assert.NoError(t, err)
	assert.IsType(t, &FileProvider{}, fileProvider)

	redisProvider, err := NewProvider(ProviderConfig{
		Type:  RedisProviderType,
		Redis: &RedisProviderConfig{Addr: "localhost:6379"},
	})
	assert.NoError(t, err)
	assert.IsType(t, &RedisProvider{}, redisProvider)
	redisProvider.Close()

	sqliteProvider, err := NewProvider(ProviderConfig{
		Type:   SQLiteProviderType,
		SQLite: &SQLiteProviderConfig{Path: filepath.Join(t.TempDir(), "state.db")},
	})
	assert.NoError(t, err)
	assert.IsType(t, &SQLiteProvider{}, sqliteProvider)
	sqliteProvider.Close()

	// DynamoDB provider with config; only built when AWS credentials are set
	dynamoDBConfig := ProviderConfig{
		Type: DynamoDBProviderType,
		DynamoDB: &DynamoDBProviderConfig{
			Region:      "us-east-1",
			TablePrefix: "test_",
			AccessKey:   os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretKey:   os.Getenv("AWS_SECRET_ACCESS_KEY"),
		},
	}
	if dynamoDBConfig.DynamoDB.AccessKey != "" && dynamoDBConfig.DynamoDB.SecretKey != "" {
		dynamoProvider, err := NewProvider(dynamoDBConfig)
		assert.NoError(t, err)
		assert.IsType(t, &DynamoDBProvider{}, dynamoProvider)
	}
}

func TestNewProviderMissingConfig(t *testing.T) {
	for _, providerType := range []ProviderType{
		FileProviderType,
		RedisProviderType,
		DynamoDBProviderType,
		PostgreSQLProviderType,
		SQLiteProviderType,
	} {
		t.Run(string(providerType), func(t *testing.T) {
			_, err := NewProvider(ProviderConfig{Type: providerType})
			assert.Error(t, err)
		})
	}
}

func TestNewProviderUnknownType(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Type: "etcd"})
	assert.EqualError(t, err, "unknown provider type: etcd")
}
