package scripting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSExpressionEvaluator_JavaScript(t *testing.T) {
	evaluator := NewJSExpressionEvaluator()

	tests := []struct {
		name       string
		expression string
		vars       map[string]any
		want       any
		wantErr    bool
	}{
		{
			name:       "Math.floor()",
			expression: "${Math.floor(3.9)}",
			want:       3,
		},
		{
			name:       "String manipulation",
			expression: "${'hello'.toUpperCase()}",
			want:       "HELLO",
		},
		{
			name:       "Variable in JS expression",
			expression: "${name.toUpperCase()}",
			vars:       map[string]any{"name": "john"},
			want:       "JOHN",
		},
		{
			name:       "Nested map access",
			expression: "${context.user.age + 1}",
			vars:       map[string]any{"context": map[string]any{"user": map[string]any{"age": 41}}},
			want:       42,
		},
		{
			name:       "JavaScript function",
			expression: "${(function() { return 42; })()}",
			want:       42,
		},
		{
			name:       "Plain string passes through",
			expression: "just text",
			want:       "just text",
		},
		{
			name:       "Syntax error",
			expression: "${1 +}",
			wantErr:    true,
		},
		{
			name:       "Undefined variable",
			expression: "${nope.field}",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluator.Evaluate(context.Background(), tt.expression, tt.vars)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.EqualValues(t, tt.want, got)
		})
	}
}

func TestJSExpressionEvaluator_EvaluateInObject(t *testing.T) {
	evaluator := NewJSExpressionEvaluator()
	vars := map[string]any{"host": "example.com", "n": 2}

	obj := map[string]any{
		"url":        "${'https://' + host}",
		"${'k' + n}": "v",
		"nested":     map[string]any{"double": "${n * 2}"},
		"list":       []any{"${n}", "plain", 7},
		"flag":       true,
	}

	got, err := evaluator.EvaluateInObject(context.Background(), obj, vars)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", got["url"])
	assert.Equal(t, "v", got["k2"])
	assert.EqualValues(t, 4, got["nested"].(map[string]any)["double"])
	list := got["list"].([]any)
	assert.EqualValues(t, 2, list[0])
	assert.Equal(t, "plain", list[1])
	assert.Equal(t, 7, list[2])
	assert.Equal(t, true, got["flag"])
}

func TestJSExpressionEvaluator_Interrupted(t *testing.T) {
	evaluator := NewJSExpressionEvaluator()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := evaluator.Evaluate(ctx, "${(function(){ var x = 0; while(true) { x++; } })()}", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJSExpressionEvaluator_Concurrent(t *testing.T) {
	evaluator := NewJSExpressionEvaluator()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := evaluator.Evaluate(context.Background(), "${x * 10}", map[string]any{"x": i})
			assert.NoError(t, err)
			assert.EqualValues(t, i*10, got)
		}(i)
	}
	wg.Wait()
}
