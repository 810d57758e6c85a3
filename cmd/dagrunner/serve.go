package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tcmartin/dagrunner/pkg/api"
)

// NewServeCommand creates the serve command
func NewServeCommand(opts *RootOptions) *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve [pipeline-file]",
		Short: "Serve the engine over HTTP",
		Long: `Start the HTTP API. The pipeline given as argument, or engine.pipeline_file,
is loaded up front; otherwise one can be uploaded with PUT /api/v1/pipeline.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			app, err := newApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer app.Close()

			if host != "" {
				app.Config.Server.Host = host
			}
			if port != 0 {
				app.Config.Server.Port = port
			}

			if len(args) > 0 || app.Config.Engine.PipelineFile != "" {
				if _, err := app.LoadPipeline(args); err != nil {
					return err
				}
			}

			server := api.NewServer(app.Config, app.Engine, app.Loader, app.Logger)

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			app.Logger.Info("shutting down gracefully")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.ShutdownTimeout())
			defer cancel()

			app.Engine.Cancel()
			return server.Stop(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "override the configured listen host")
	cmd.Flags().IntVar(&port, "port", 0, "override the configured listen port")

	return cmd
}
