package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tcmartin/dagrunner/pkg/config"
	"github.com/tcmartin/dagrunner/pkg/loader"
	"github.com/tcmartin/dagrunner/pkg/logging"
	"github.com/tcmartin/dagrunner/pkg/models"
	"github.com/tcmartin/dagrunner/pkg/registry"
	"github.com/tcmartin/dagrunner/pkg/runtime"
	"github.com/tcmartin/dagrunner/pkg/storage"
	"github.com/tcmartin/dagrunner/pkg/strategies"
)

// EnvConfigPath names a config file when --config is not given
const EnvConfigPath = "DAGRUNNER_CONFIG"

// App wires configuration, storage and the engine for one command invocation
type App struct {
	Config   *config.Config
	Logger   logging.Logger
	Registry *registry.Registry
	Loader   loader.PipelineLoader
	Storage  storage.Provider
	Engine   *runtime.Engine
}

// newBaseApp loads configuration and registers the built-in strategies.
// Storage and the engine are left unset.
func newBaseApp(cmd *cobra.Command, opts *RootOptions) (*App, error) {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	strategies.RegisterDefaults(reg, strategies.Dependencies{
		Logger:     logger,
		LLMBaseURL: cfg.LLM.BaseURL,
	})

	return &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Loader:   loader.NewLoader(reg),
	}, nil
}

// newApp builds a complete application with the configured storage provider
func newApp(ctx context.Context, cmd *cobra.Command, opts *RootOptions) (*App, error) {
	app, err := newBaseApp(cmd, opts)
	if err != nil {
		return nil, err
	}

	providerConfig, err := app.Config.StorageProviderConfig()
	if err != nil {
		return nil, err
	}
	provider, err := storage.NewProvider(providerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage provider: %w", err)
	}
	if err := provider.Initialize(ctx); err != nil {
		provider.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.Logger.Debug("storage initialized", logging.F("type", string(providerConfig.Type)))

	app.Storage = provider
	app.Engine = runtime.NewEngine(app.Registry,
		runtime.WithAdapter(provider),
		runtime.WithLogger(app.Logger),
	)
	return app, nil
}

// loadConfig loads the configuration from path, DAGRUNNER_CONFIG, or the defaults,
// then overlays DAGRUNNER_* variables
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger keeps stdout free for command output: console logs go to errOut
func newLogger(cfg *config.Config, errOut io.Writer) (logging.Logger, error) {
	logConfig := cfg.LogConfig()
	switch logConfig.Output {
	case "", "stdout", "stderr":
		return logging.NewWriterLogger(errOut, logConfig), nil
	default:
		return logging.NewLogger(logConfig)
	}
}

// LoadPipeline loads the pipeline named by args or the configured pipeline file
func (a *App) LoadPipeline(args []string) (*models.Pipeline, error) {
	path := a.Config.Engine.PipelineFile
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return nil, errors.New("no pipeline file given and engine.pipeline_file is not set")
	}

	pipeline, err := a.Loader.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if a.Engine != nil {
		a.Engine.SetPipeline(pipeline)
	}
	return pipeline, nil
}

// Run starts a fresh run and blocks until it finishes
func (a *App) Run(ctx context.Context, initial map[string]interface{}) (*models.ExecutionState, error) {
	return a.startAndWait(ctx, func() error {
		return a.Engine.Start(ctx, initial)
	})
}

// Resume adopts saved and blocks until the resumed run finishes. States that
// are not RUNNING are adopted and returned immediately.
func (a *App) Resume(ctx context.Context, saved *models.ExecutionState) (*models.ExecutionState, error) {
	return a.startAndWait(ctx, func() error {
		return a.Engine.Resume(ctx, saved)
	})
}

func (a *App) startAndWait(ctx context.Context, start func() error) (*models.ExecutionState, error) {
	if err := start(); err != nil {
		return nil, err
	}
	state := a.Engine.State()
	if state.Status != models.RunRunning {
		return state, nil
	}
	return a.awaitRun(ctx, state.ExecutionID)
}

// awaitRun waits for executionID to reach a terminal status. When ctx ends
// first the run is cancelled and given the shutdown timeout to fail.
func (a *App) awaitRun(ctx context.Context, executionID string) (*models.ExecutionState, error) {
	done := make(chan *models.ExecutionState, 1)
	unsubscribe := a.Engine.Subscribe(func(state *models.ExecutionState) {
		if state.ExecutionID == executionID && state.Status.IsTerminal() {
			select {
			case done <- state:
			default:
			}
		}
	})
	defer unsubscribe()

	select {
	case state := <-done:
		return state, nil
	case <-ctx.Done():
	}

	a.Logger.Warn("interrupted, cancelling run", logging.F("execution_id", executionID))
	a.Engine.Cancel()

	timer := time.NewTimer(a.Config.ShutdownTimeout())
	defer timer.Stop()
	select {
	case state := <-done:
		return state, nil
	case <-timer.C:
		return a.Engine.State(), fmt.Errorf("run %s did not stop within %s", executionID, a.Config.ShutdownTimeout())
	}
}

// Close waits for in-flight nodes, flushes pending snapshots and closes storage
func (a *App) Close() error {
	if a.Engine == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout())
	defer cancel()

	if err := a.Engine.Wait(ctx); err != nil {
		a.Logger.Warn("nodes still running at shutdown", logging.Err(err))
	}
	if err := a.Engine.Close(ctx); err != nil {
		a.Logger.Warn("failed to flush state", logging.Err(err))
	}
	if err := a.Storage.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	return nil
}
