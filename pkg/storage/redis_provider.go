package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/tcmartin/dagrunner/pkg/models"
)

// DefaultRedisKeyPrefix namespaces snapshot keys
const DefaultRedisKeyPrefix = "dagrunner:state:"

// RedisProviderConfig contains configuration for the Redis provider
type RedisProviderConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// TTL expires snapshots after the given duration. Zero keeps them forever.
	TTL time.Duration
}

// RedisProvider stores snapshots as JSON strings in Redis
type RedisProvider struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisProvider creates a new Redis storage provider
func NewRedisProvider(config RedisProviderConfig) (*RedisProvider, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("addr is required for redis provider")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return NewRedisProviderWithClient(client, config.KeyPrefix, config.TTL), nil
}

// NewRedisProviderWithClient creates a Redis provider around an existing client
func NewRedisProviderWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisProvider {
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	return &RedisProvider{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// Initialize checks connectivity
func (p *RedisProvider) Initialize(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// Close cleans up resources
func (p *RedisProvider) Close() error {
	return p.client.Close()
}

func (p *RedisProvider) key(pipelineID string) string {
	return p.keyPrefix + pipelineID
}

// Save persists the snapshot
func (p *RedisProvider) Save(ctx context.Context, state *models.ExecutionState) error {
	data, err := encodeState(state)
	if err != nil {
		return persistErr("save", pipelineIDOf(state), err)
	}

	if err := p.client.Set(ctx, p.key(state.PipelineID), data, p.ttl).Err(); err != nil {
		return persistErr("save", state.PipelineID, err)
	}
	return nil
}

// Load retrieves the snapshot for a pipeline
func (p *RedisProvider) Load(ctx context.Context, pipelineID string) (*models.ExecutionState, error) {
	data, err := p.client.Get(ctx, p.key(pipelineID)).Bytes()
	if err == redis.Nil {
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
func (p *RedisProvider) Clear(ctx context.Context, pipelineID string) error {
	if err := p.client.Del(ctx, p.key(pipelineID)).Err(); err != nil {
		return persistErr("clear", pipelineID, err)
	}
	return nil
}
