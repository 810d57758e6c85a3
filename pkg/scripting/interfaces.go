package scripting

import "context"

// ExpressionEvaluator evaluates ${...} expressions embedded in node data
type ExpressionEvaluator interface {
	// Evaluate processes an expression string with the given variables
	Evaluate(ctx context.Context, expression string, vars map[string]any) (any, error)

	// EvaluateInObject processes all expressions in an object
	EvaluateInObject(ctx context.Context, obj map[string]any, vars map[string]any) (map[string]any, error)
}

// ScriptEngine executes JavaScript code
type ScriptEngine interface {
	// Run executes script as a function body with bindings as globals and
	// returns the exported result. Execution stops when ctx is done.
	Run(ctx context.Context, script string, bindings map[string]any) (any, error)
}
