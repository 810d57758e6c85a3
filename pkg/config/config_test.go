package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmartin/dagrunner/pkg/storage"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, storage.DefaultRedisKeyPrefix, cfg.Storage.Redis.KeyPrefix)
	assert.NoError(t, cfg.Validate())
}

func TestSaveAndLoadConfig(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "nested", name)

			originalCfg := DefaultConfig()
			originalCfg.Server.Host = "testhost"
			originalCfg.Server.Port = 9090
			originalCfg.Storage.Type = "postgres"
			originalCfg.Storage.Redis.TTLSeconds = 60

			require.NoError(t, SaveConfig(originalCfg, configPath))

			loadedCfg, err := LoadConfig(configPath)
			require.NoError(t, err)
			assert.Equal(t, originalCfg, loadedCfg)
		})
	}
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7000\nstorage:\n  type: sqlite\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "./dagrunner.db", cfg.Storage.SQLite.Path)
}

func TestLoadConfigError(t *testing.T) {
	_, err := LoadConfig("non-existent-file.json")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DAGRUNNER_PORT":         "9999",
		"DAGRUNNER_STORAGE_TYPE": "redis",
		"DAGRUNNER_REDIS_ADDR":   "cache:6379",
		"DAGRUNNER_REDIS_TTL":    "30",
		"DAGRUNNER_LOG_LEVEL":    "debug",
		"DAGRUNNER_LLM_BASE_URL": "http://llm.local",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv(lookup))

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Storage.Type)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "http://llm.local", cfg.LLM.BaseURL)
	assert.Equal(t, "localhost", cfg.Server.Host)

	pc, err := cfg.StorageProviderConfig()
	require.NoError(t, err)
	assert.Equal(t, storage.RedisProviderType, pc.Type)
	assert.Equal(t, "cache:6379", pc.Redis.Addr)
	assert.Equal(t, 30*time.Second, pc.Redis.TTL)
}

func TestApplyEnvInvalidInt(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		if k == "DAGRUNNER_PORT" {
			return "eighty", true
		}
		return "", false
	})
	assert.ErrorContains(t, err, "DAGRUNNER_PORT")
}

func TestStorageProviderConfig(t *testing.T) {
	tests := []struct {
		storageType string
		want        storage.ProviderType
	}{
		{"", storage.MemoryProviderType},
		{"memory", storage.MemoryProviderType},
		{"file", storage.FileProviderType},
		{"redis", storage.RedisProviderType},
		{"dynamodb", storage.DynamoDBProviderType},
		{"postgres", storage.PostgreSQLProviderType},
		{"postgresql", storage.PostgreSQLProviderType},
		{"sqlite", storage.SQLiteProviderType},
	}

	for _, tt := range tests {
		t.Run(tt.storageType, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Storage.Type = tt.storageType
			pc, err := cfg.StorageProviderConfig()
			require.NoError(t, err)
			assert.Equal(t, tt.want, pc.Type)
		})
	}

	cfg := DefaultConfig()
	cfg.Storage.Type = "floppy"
	_, err := cfg.StorageProviderConfig()
	assert.Error(t, err)
	assert.Error(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Server.TLS.Enabled = true
	assert.Error(t, cfg.Validate())
}
