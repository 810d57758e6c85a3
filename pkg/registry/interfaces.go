// Package registry maps node type strings to the strategies that execute them.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/tcmartin/dagrunner/pkg/models"
)

// Strategy executes nodes of one type
type Strategy interface {
	// Execute runs the node. input is a snapshot of the shared context. execCtx is
	// the mutable context: keys the strategy sets, changes or deletes in it are
	// applied to the shared context when it returns successfully. A
	// map[string]interface{} result is then merged into the shared context too.
	// Failures are reported by returning an error.
	Execute(ctx context.Context, node models.Node, input map[string]interface{}, execCtx map[string]interface{}) (interface{}, error)
}

// StrategyFunc adapts a function to the Strategy interface
type StrategyFunc func(ctx context.Context, node models.Node, input map[string]interface{}, execCtx map[string]interface{}) (interface{}, error)

// Execute calls f
func (f StrategyFunc) Execute(ctx context.Context, node models.Node, input map[string]interface{}, execCtx map[string]interface{}) (interface{}, error) {
	return f(ctx, node, input, execCtx)
}

// StrategyRegistry resolves strategies by node type
type StrategyRegistry interface {
	// Register adds or replaces the strategy for a node type
	Register(nodeType string, strategy Strategy)

	// GetStrategy returns the strategy for a node type
	GetStrategy(nodeType string) (Strategy, error)

	// Types returns the registered node types, sorted
	Types() []string
}

// ErrUnknownStrategy is returned when no strategy is registered for a node type
var ErrUnknownStrategy = errors.New("unknown strategy")

// UnknownStrategyError names the node type that has no strategy
type UnknownStrategyError struct {
	Type string
}

func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("no strategy found for node type: '%s'", e.Type)
}

func (e *UnknownStrategyError) Unwrap() error { return ErrUnknownStrategy }
