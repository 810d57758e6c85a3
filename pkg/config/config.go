// Package config provides configuration handling for dagrunner.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/tcmartin/dagrunner/pkg/logging"
	"github.com/tcmartin/dagrunner/pkg/storage"
)

// Config represents the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Engine configuration
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// LLM configuration
	LLM LLMConfig `json:"llm" yaml:"llm"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Host to bind to
	Host string `json:"host" yaml:"host"`

	// Port to listen on
	Port int `json:"port" yaml:"port"`

	// TLS configuration
	TLS TLSConfig `json:"tls" yaml:"tls"`
}

// TLSConfig contains TLS settings
type TLSConfig struct {
	// Enabled indicates whether TLS is enabled
	Enabled bool `json:"enabled" yaml:"enabled"`

	// CertFile is the path to the certificate file
	CertFile string `json:"cert_file" yaml:"cert_file"`

	// KeyFile is the path to the key file
	KeyFile string `json:"key_file" yaml:"key_file"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	// Type of storage to use
	Type string `json:"type" yaml:"type"` // "memory", "file", "redis", "dynamodb", "postgres", "sqlite"

	File     FileConfig     `json:"file" yaml:"file"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	DynamoDB DynamoDBConfig `json:"dynamodb" yaml:"dynamodb"`
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
	SQLite   SQLiteConfig   `json:"sqlite" yaml:"sqlite"`
}

// FileConfig contains file storage settings
type FileConfig struct {
	// Directory holds one JSON snapshot per pipeline
	Directory string `json:"directory" yaml:"directory"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`

	// TTLSeconds expires snapshots; zero keeps them
	TTLSeconds int `json:"ttl_seconds" yaml:"ttl_seconds"`
}

// DynamoDBConfig contains DynamoDB settings
type DynamoDBConfig struct {
	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the DynamoDB endpoint (for local development)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// TablePrefix is the prefix for all tables
	TablePrefix string `json:"table_prefix" yaml:"table_prefix"`
}

// PostgresConfig contains PostgreSQL settings
type PostgresConfig struct {
	// Host is the database host
	Host string `json:"host" yaml:"host"`

	// Port is the database port
	Port int `json:"port" yaml:"port"`

	// Database is the database name
	Database string `json:"database" yaml:"database"`

	// User is the database user
	User string `json:"user" yaml:"user"`

	// Password is the database password
	Password string `json:"password" yaml:"password"`

	// SSLMode is the SSL mode
	SSLMode string `json:"ssl_mode" yaml:"ssl_mode"`
}

// SQLiteConfig contains SQLite settings
type SQLiteConfig struct {
	// Path is the database file
	Path string `json:"path" yaml:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	// Level is the logging level
	Level string `json:"level" yaml:"level"` // "debug", "info", "warn", "error"

	// Format is the log format
	Format string `json:"format" yaml:"format"` // "json", "text"

	// Output is the log output
	Output string `json:"output" yaml:"output"` // "stdout", "stderr", "file"

	// FilePath is the path to the log file
	FilePath string `json:"file_path" yaml:"file_path"`
}

// EngineConfig contains execution engine settings
type EngineConfig struct {
	// PipelineFile is loaded at startup by the serve command
	PipelineFile string `json:"pipeline_file" yaml:"pipeline_file"`

	// ShutdownTimeoutSeconds bounds the wait for running nodes and pending saves on exit
	ShutdownTimeoutSeconds int `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// LLMConfig contains settings for LLM-backed strategies
type LLMConfig struct {
	// BaseURL overrides the Gemini endpoint
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
			TLS: TLSConfig{
				Enabled: false,
			},
		},
		Storage: StorageConfig{
			Type: "memory",
			File: FileConfig{
				Directory: "./state",
			},
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: storage.DefaultRedisKeyPrefix,
			},
			DynamoDB: DynamoDBConfig{
				Region:      "us-west-2",
				TablePrefix: "dagrunner_",
			},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "dagrunner",
				User:     "dagrunner",
				SSLMode:  "disable",
			},
			SQLite: SQLiteConfig{
				Path: "./dagrunner.db",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Engine: EngineConfig{
			ShutdownTimeoutSeconds: 10,
		},
	}
}

// LoadConfig loads the configuration from a file. Files ending in .yaml or .yml
// are parsed as YAML, everything else as JSON. Missing fields keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to a file
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// ApplyEnv overlays DAGRUNNER_* variables. lookup defaults to os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	strs := map[string]*string{
		"DAGRUNNER_HOST":                  &c.Server.Host,
		"DAGRUNNER_STORAGE_TYPE":          &c.Storage.Type,
		"DAGRUNNER_STORAGE_DIR":           &c.Storage.File.Directory,
		"DAGRUNNER_REDIS_ADDR":            &c.Storage.Redis.Addr,
		"DAGRUNNER_REDIS_PASSWORD":        &c.Storage.Redis.Password,
		"DAGRUNNER_DYNAMODB_REGION":       &c.Storage.DynamoDB.Region,
		"DAGRUNNER_DYNAMODB_ENDPOINT":     &c.Storage.DynamoDB.Endpoint,
		"DAGRUNNER_DYNAMODB_TABLE_PREFIX": &c.Storage.DynamoDB.TablePrefix,
		"DAGRUNNER_POSTGRES_HOST":         &c.Storage.Postgres.Host,
		"DAGRUNNER_POSTGRES_DATABASE":     &c.Storage.Postgres.Database,
		"DAGRUNNER_POSTGRES_USER":         &c.Storage.Postgres.User,
		"DAGRUNNER_POSTGRES_PASSWORD":     &c.Storage.Postgres.Password,
		"DAGRUNNER_POSTGRES_SSLMODE":      &c.Storage.Postgres.SSLMode,
		"DAGRUNNER_SQLITE_PATH":           &c.Storage.SQLite.Path,
		"DAGRUNNER_LOG_LEVEL":             &c.Logging.Level,
		"DAGRUNNER_LOG_FORMAT":            &c.Logging.Format,
		"DAGRUNNER_LOG_OUTPUT":            &c.Logging.Output,
		"DAGRUNNER_LOG_FILE":              &c.Logging.FilePath,
		"DAGRUNNER_PIPELINE_FILE":         &c.Engine.PipelineFile,
		"DAGRUNNER_LLM_BASE_URL":          &c.LLM.BaseURL,
	}
	for name, target := range strs {
		if v, ok := lookup(name); ok {
			*target = v
		}
	}

	ints := map[string]*int{
		"DAGRUNNER_PORT":             &c.Server.Port,
		"DAGRUNNER_REDIS_DB":         &c.Storage.Redis.DB,
		"DAGRUNNER_REDIS_TTL":        &c.Storage.Redis.TTLSeconds,
		"DAGRUNNER_POSTGRES_PORT":    &c.Storage.Postgres.Port,
		"DAGRUNNER_SHUTDOWN_TIMEOUT": &c.Engine.ShutdownTimeoutSeconds,
	}
	for name, target := range ints {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", name, err)
		}
		*target = n
	}

	return nil
}

// Validate checks the settings that would otherwise fail late
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if _, err := c.StorageProviderConfig(); err != nil {
		return err
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("tls requires cert_file and key_file")
	}
	return nil
}

// StorageProviderConfig translates the storage section for storage.NewProvider
func (c *Config) StorageProviderConfig() (storage.ProviderConfig, error) {
	s := c.Storage
	switch strings.ToLower(s.Type) {
	case "", "memory":
		return storage.ProviderConfig{Type: storage.MemoryProviderType}, nil
	case "file":
		return storage.ProviderConfig{
			Type: storage.FileProviderType,
			File: &storage.FileProviderConfig{Directory: s.File.Directory},
		}, nil
	case "redis":
		return storage.ProviderConfig{
			Type: storage.RedisProviderType,
			Redis: &storage.RedisProviderConfig{
				Addr:      s.Redis.Addr,
				Password:  s.Redis.Password,
				DB:        s.Redis.DB,
				KeyPrefix: s.Redis.KeyPrefix,
				TTL:       time.Duration(s.Redis.TTLSeconds) * time.Second,
			},
		}, nil
	case "dynamodb":
		return storage.ProviderConfig{
			Type: storage.DynamoDBProviderType,
			DynamoDB: &storage.DynamoDBProviderConfig{
				Region:      s.DynamoDB.Region,
				Endpoint:    s.DynamoDB.Endpoint,
				TablePrefix: s.DynamoDB.TablePrefix,
			},
		}, nil
	case "postgres", "postgresql":
		return storage.ProviderConfig{
			Type: storage.PostgreSQLProviderType,
			PostgreSQL: &storage.PostgreSQLProviderConfig{
				Host:     s.Postgres.Host,
				Port:     s.Postgres.Port,
				User:     s.Postgres.User,
				Password: s.Postgres.Password,
				Database: s.Postgres.Database,
				SSLMode:  s.Postgres.SSLMode,
			},
		}, nil
	case "sqlite":
		return storage.ProviderConfig{
			Type:   storage.SQLiteProviderType,
			SQLite: &storage.SQLiteProviderConfig{Path: s.SQLite.Path},
		}, nil
	default:
		return storage.ProviderConfig{}, fmt.Errorf("unknown storage type: %s", s.Type)
	}
}

// LogConfig translates the logging section for logging.NewLogger
func (c *Config) LogConfig() logging.LogConfig {
	return logging.LogConfig{
		Level:    c.Logging.Level,
		Format:   c.Logging.Format,
		Output:   c.Logging.Output,
		FilePath: c.Logging.FilePath,
	}
}

// ShutdownTimeout returns the engine shutdown bound
func (c *Config) ShutdownTimeout() time.Duration {
	if c.Engine.ShutdownTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Engine.ShutdownTimeoutSeconds) * time.Second
}
