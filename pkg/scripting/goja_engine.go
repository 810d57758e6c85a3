package scripting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/tcmartin/dagrunner/pkg/logging"
)

// GojaEngine runs user scripts on goja. Scripts see their bindings as globals
// plus a console object whose log output goes to the logger.
type GojaEngine struct {
	logger logging.Logger
}

// NewGojaEngine creates a script engine. A nil logger discards console output.
func NewGojaEngine(logger logging.Logger) *GojaEngine {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &GojaEngine{logger: logger}
}

// Run executes script as the body of a function, so a top-level return sets
// the result. An empty script yields nil.
func (g *GojaEngine) Run(ctx context.Context, script string, bindings map[string]any) (any, error) {
	if strings.TrimSpace(script) == "" {
		return nil, nil
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	console := vm.NewObject()
	console.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		g.logger.Debug("script console", logging.F("message", strings.Join(parts, " ")))
		return goja.Undefined()
	})
	if err := vm.Set("console", console); err != nil {
		return nil, err
	}

	for name, value := range bindings {
		if err := vm.Set(name, value); err != nil {
			return nil, fmt.Errorf("failed to bind '%s': %w", name, err)
		}
	}

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	value, err := vm.RunString("(function() {\n" + script + "\n})()")
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, fmt.Errorf("script interrupted: %w", ctx.Err())
		}
		return nil, fmt.Errorf("script error: %w", err)
	}

	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, nil
	}
	return value.Export(), nil
}
