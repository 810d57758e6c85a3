package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tcmartin/dagrunner/pkg/toposort"
)

// NewValidateCommand creates the validate command
func NewValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [pipeline-file]",
		Short: "Validate a pipeline document",
		Long: `Validate a pipeline document without running it.

Checks the document schema, node ids, node types against the built-in
strategies, edge endpoints and that the graph has no cycle.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newBaseApp(cmd, opts)
			if err != nil {
				return err
			}
			pipeline, err := app.LoadPipeline(args)
			if err != nil {
				return err
			}

			if opts.Format == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"valid": true,
					"id":    pipeline.ID,
					"nodes": len(pipeline.Nodes),
					"edges": len(pipeline.Edges),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pipeline %s is valid: %d nodes, %d edges\n",
				pipeline.ID, len(pipeline.Nodes), len(pipeline.Edges))
			return nil
		},
	}
}

// NewSortCommand creates the sort command
func NewSortCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sort [pipeline-file]",
		Short: "Print the nodes of a pipeline in dependency order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newBaseApp(cmd, opts)
			if err != nil {
				return err
			}
			pipeline, err := app.LoadPipeline(args)
			if err != nil {
				return err
			}

			order, err := toposort.Sort(pipeline)
			if err != nil {
				return err
			}

			if opts.Format == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(order)
			}
			for _, id := range order {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}
