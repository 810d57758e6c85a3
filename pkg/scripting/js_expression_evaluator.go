// Package scripting provides JavaScript execution for node strategies.
package scripting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/robertkrimen/otto"
)

var errHalted = errors.New("expression halted")

// JSExpressionEvaluator is an implementation of the ExpressionEvaluator interface using a JavaScript engine.
// Each evaluation gets its own VM, so one evaluator can be shared across goroutines.
type JSExpressionEvaluator struct{}

// NewJSExpressionEvaluator creates a new JSExpressionEvaluator
func NewJSExpressionEvaluator() *JSExpressionEvaluator {
	return &JSExpressionEvaluator{}
}

// IsExpression reports whether s is wrapped in ${...}
func IsExpression(s string) bool {
	return strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}")
}

// Evaluate processes an expression string with the given variables.
// Strings not wrapped in ${...} are returned unchanged.
func (e *JSExpressionEvaluator) Evaluate(ctx context.Context, expression string, vars map[string]any) (any, error) {
	if !IsExpression(expression) {
		return expression, nil
	}
	return e.Run(ctx, expression[2:len(expression)-1], vars)
}

// Run evaluates a bare JavaScript expression
func (e *JSExpressionEvaluator) Run(ctx context.Context, expr string, vars map[string]any) (result any, err error) {
	vm := otto.New()
	vm.Interrupt = make(chan func(), 1)

	for key, value := range vars {
		if err := vm.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to bind '%s': %w", key, err)
		}
	}

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt <- func() { panic(errHalted) }
	})
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			if r == errHalted {
				result, err = nil, fmt.Errorf("failed to evaluate expression '%s': %w", expr, ctx.Err())
				return
			}
			panic(r)
		}
	}()

	value, err := vm.Run(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression '%s': %w", expr, err)
	}

	goValue, err := value.Export()
	if err != nil {
		return nil, fmt.Errorf("failed to convert result to Go value: %w", err)
	}
	return goValue, nil
}

// EvaluateInObject processes all expressions in an object
func (e *JSExpressionEvaluator) EvaluateInObject(ctx context.Context, obj map[string]any, vars map[string]any) (map[string]any, error) {
	result := make(map[string]any, len(obj))

	for key, value := range obj {
		evaluatedKey := key
		if IsExpression(key) {
			keyResult, err := e.Evaluate(ctx, key, vars)
			if err != nil {
				return nil, fmt.Errorf("failed to evaluate key expression '%s': %w", key, err)
			}
			evaluatedKey = fmt.Sprintf("%v", keyResult)
		}

		evaluatedValue, err := e.evaluateValue(ctx, value, vars)
		if err != nil {
			return nil, err
		}
		result[evaluatedKey] = evaluatedValue
	}

	return result, nil
}

func (e *JSExpressionEvaluator) evaluateValue(ctx context.Context, value any, vars map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return e.Evaluate(ctx, v, vars)
	case map[string]any:
		return e.EvaluateInObject(ctx, v, vars)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			evaluated, err := e.evaluateValue(ctx, item, vars)
			if err != nil {
				return nil, err
			}
			out[i] = evaluated
		}
		return out, nil
	default:
		return value, nil
	}
}
