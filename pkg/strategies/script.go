package strategies

import (
	"context"
	"fmt"
	"strings"

	"github.com/tcmartin/dagrunner/pkg/models"
	"github.com/tcmartin/dagrunner/pkg/scripting"
)

// JavaScriptStrategy runs data.code as a function body with input and context bound
type JavaScriptStrategy struct {
	engine scripting.ScriptEngine
}

// Execute returns whatever the script returns; only object results are merged
func (s *JavaScriptStrategy) Execute(ctx context.Context, node models.Node, input map[string]interface{}, execCtx map[string]interface{}) (interface{}, error) {
	code := node.DataString("code")
	if code == "" {
		return nil, nil
	}

	return s.engine.Run(ctx, code, map[string]interface{}{
		"input":   input,
		"context": execCtx,
	})
}

// ExpressionStrategy evaluates data.expression and stores the result under data.outputKey
type ExpressionStrategy struct {
	evaluator *scripting.JSExpressionEvaluator
}

// Execute evaluates the expression with the context keys as globals plus input and context
func (s *ExpressionStrategy) Execute(ctx context.Context, node models.Node, input map[string]interface{}, execCtx map[string]interface{}) (interface{}, error) {
	expr := strings.TrimSpace(node.DataString("expression"))
	if expr == "" {
		return nil, fmt.Errorf("expression node requires an \"expression\" in data")
	}
	if scripting.IsExpression(expr) {
		expr = expr[2 : len(expr)-1]
	}

	vars := make(map[string]interface{}, len(input)+2)
	for k, v := range input {
		vars[k] = v
	}
	vars["input"] = input
	vars["context"] = execCtx

	value, err := s.evaluator.Run(ctx, expr, vars)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{outputKey(node.Data, "result"): value}, nil
}
