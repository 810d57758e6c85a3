package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tcmartin/dagrunner/pkg/models"
	"github.com/tcmartin/dagrunner/pkg/storage"
)

// RunFailedError is returned when a run finishes FAILED
type RunFailedError struct {
	ExecutionID string
	Nodes       map[string]string
}

func (e *RunFailedError) Error() string {
	ids := make([]string, 0, len(e.Nodes))
	for id := range e.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %s", id, e.Nodes[id]))
	}
	return fmt.Sprintf("run %s failed: %s", e.ExecutionID, strings.Join(parts, "; "))
}

func failure(state *models.ExecutionState) error {
	if state == nil || state.Status != models.RunFailed {
		return nil
	}
	nodes := make(map[string]string)
	for id, ns := range state.NodeStates {
		if ns.Status == models.NodeFailed {
			nodes[id] = ns.Error
		}
	}
	return &RunFailedError{ExecutionID: state.ExecutionID, Nodes: nodes}
}

// signalContext ends on SIGINT or SIGTERM
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// NewRunCommand creates the run command
func NewRunCommand(opts *RootOptions) *cobra.Command {
	var contextPairs []string
	var cronSpec string

	cmd := &cobra.Command{
		Use:   "run [pipeline-file]",
		Short: "Run a pipeline to completion",
		Long: `Run a pipeline from a fresh state and print the final execution state.

With --cron the pipeline is started on every tick of the schedule until the
process is interrupted. Overlapping ticks are skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			initial, err := parseContextPairs(contextPairs)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			app, err := newApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer app.Close()

			if _, err := app.LoadPipeline(args); err != nil {
				return err
			}

			if cronSpec != "" {
				return runScheduled(ctx, app, cronSpec, initial, cmd.OutOrStdout())
			}

			state, err := app.Run(ctx, initial)
			if err != nil {
				return err
			}
			if err := writeState(cmd.OutOrStdout(), state); err != nil {
				return err
			}
			return failure(state)
		},
	}

	cmd.Flags().StringArrayVar(&contextPairs, "context", nil, "initial context entry as key=value; JSON values are decoded (repeatable)")
	cmd.Flags().StringVar(&cronSpec, "cron", "", "run on a cron schedule (5 or 6 fields, or a descriptor such as @every 1m)")

	return cmd
}

// parseContextPairs turns key=value flags into a context map. Values that
// parse as JSON keep their JSON type; anything else is a string.
func parseContextPairs(pairs []string) (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid context entry %q: expected key=value", pair)
		}

		var value interface{}
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		result[strings.TrimSpace(key)] = value
	}
	return result, nil
}

// NewResumeCommand creates the resume command
func NewResumeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resume [pipeline-file]",
		Short: "Resume the saved execution of a pipeline",
		Long: `Load the saved execution state of a pipeline from the configured storage
and continue it. Completed nodes are not executed again. A saved state
that is not RUNNING is printed without scheduling anything.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			app, err := newApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer app.Close()

			pipeline, err := app.LoadPipeline(args)
			if err != nil {
				return err
			}
			saved, err := loadSaved(ctx, app, pipeline.ID)
			if err != nil {
				return err
			}

			state, err := app.Resume(ctx, saved)
			if err != nil {
				return err
			}
			if err := writeState(cmd.OutOrStdout(), state); err != nil {
				return err
			}
			return failure(state)
		},
	}
}

// NewResetCommand creates the reset command
func NewResetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [pipeline-file]",
		Short: "Replace the saved execution state with a fresh IDLE one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer app.Close()

			if _, err := app.LoadPipeline(args); err != nil {
				return err
			}
			if err := app.Engine.Reset(ctx); err != nil {
				return err
			}
			return writeState(cmd.OutOrStdout(), app.Engine.State())
		},
	}
}

// NewStatusCommand creates the status command
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status [pipeline-file]",
		Short: "Print the saved execution state of a pipeline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer app.Close()

			pipeline, err := app.LoadPipeline(args)
			if err != nil {
				return err
			}
			saved, err := loadSaved(ctx, app, pipeline.ID)
			if err != nil {
				return err
			}
			return writeState(cmd.OutOrStdout(), saved)
		},
	}
}

func loadSaved(ctx context.Context, app *App, pipelineID string) (*models.ExecutionState, error) {
	saved, err := app.Engine.LoadSaved(ctx, pipelineID)
	if errors.Is(err, storage.ErrStateNotFound) {
		return nil, fmt.Errorf("no saved state for pipeline %s (storage: %s): %w", pipelineID, app.Config.Storage.Type, err)
	}
	return saved, err
}
