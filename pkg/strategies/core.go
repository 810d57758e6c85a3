package strategies

import (
	"context"
	"fmt"
	"time"

	"github.com/tcmartin/dagrunner/pkg/logging"
	"github.com/tcmartin/dagrunner/pkg/models"
	"github.com/tcmartin/dagrunner/pkg/scripting"
	"github.com/tcmartin/dagrunner/pkg/utils"
)

// LogStrategy writes the node's input to the logger
type LogStrategy struct {
	logger logging.Logger
}

// Execute logs data.message (with {{ key }} placeholders from the context) or the input keys
func (s *LogStrategy) Execute(ctx context.Context, node models.Node, input map[string]interface{}, execCtx map[string]interface{}) (interface{}, error) {
	fields := []logging.Field{logging.F("node_id", node.ID)}
	if msg := node.DataString("message"); msg != "" {
		fields = append(fields, logging.F("message", utils.RenderPlaceholders(msg, execCtx)))
	} else {
		keys := make([]string, 0, len(input))
		for k := range input {
			keys = append(keys, k)
		}
		fields = append(fields, logging.F("input_keys", keys))
	}
	s.logger.Info("log node", fields...)

	return map[string]interface{}{
		"logged":    true,
		"timestamp": models.NowMillis(),
	}, nil
}

// HTTPStrategy performs a real HTTP request. ${...} expressions in the node
// data are evaluated against the input and context first.
type HTTPStrategy struct {
	client    *utils.HTTPClient
	evaluator scripting.ExpressionEvaluator
}

// Execute sends the request described by the node data and returns {status, body}
func (s *HTTPStrategy) Execute(ctx context.Context, node models.Node, input map[string]interface{}, execCtx map[string]interface{}) (interface{}, error) {
	data := node.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	data, err := s.evaluator.EvaluateInObject(ctx, data, map[string]interface{}{
		"input":   input,
		"context": execCtx,
	})
	if err != nil {
		return nil, err
	}

	url, _ := data["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("HTTP Node requires a URL in data")
	}
	method, _ := data["method"].(string)
	if method == "" {
		method = "GET"
	}

	req := &utils.HTTPRequest{
		URL:            url,
		Method:         method,
		Body:           data["body"],
		Headers:        stringMap(data["headers"]),
		QueryParams:    stringMap(data["query"]),
		FollowRedirect: true,
	}
	if auth, ok := data["auth"].(map[string]interface{}); ok {
		req.Auth = auth
	}
	if ms, ok := toFloat(data["timeoutMs"]); ok && ms > 0 {
		req.Timeout = time.Duration(ms) * time.Millisecond
	}

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"status": resp.StatusCode,
		"body":   resp.Body,
	}
	if key := outputKey(data, ""); key != "" {
		return map[string]interface{}{key: result}, nil
	}
	return result, nil
}

func stringMap(v interface{}) map[string]string {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = fmt.Sprintf("%v", val)
	}
	return out
}

// WaitStrategy pauses for data.durationMs milliseconds
type WaitStrategy struct{}

// DefaultWaitMs is used when durationMs is absent or not a positive number
const DefaultWaitMs = 1000

// Execute sleeps unless ctx ends first
func (s *WaitStrategy) Execute(ctx context.Context, node models.Node, input map[string]interface{}, execCtx map[string]interface{}) (interface{}, error) {
	ms := int64(DefaultWaitMs)
	if v, ok := toFloat(node.Data["durationMs"]); ok && v > 0 {
		ms = int64(v)
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
		return map[string]interface{}{"waitedMs": ms}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// JSONParseStrategy parses the JSON string stored under data.field in the context
type JSONParseStrategy struct{}

// Execute stores the parsed value under data.outputKey, defaulting to the field name.
// Without a field there is nothing to parse and the node produces no output.
func (s *JSONParseStrategy) Execute(ctx context.Context, node models.Node, input map[string]interface{}, execCtx map[string]interface{}) (interface{}, error) {
	field := node.DataString("field")
	if field == "" {
		return nil, nil
	}

	raw, ok := input[field]
	if !ok {
		return nil, fmt.Errorf("json-parse: context has no field '%s'", field)
	}

	value := raw
	if s, ok := raw.(string); ok {
		var parsed interface{}
		if err := utils.ParseJSON(s, &parsed); err != nil {
			return nil, fmt.Errorf("json-parse: invalid JSON in '%s': %w", field, err)
		}
		value = parsed
	}

	return map[string]interface{}{outputKey(node.Data, field): value}, nil
}

// PromptTemplateStrategy substitutes {{ key }} placeholders into a template
type PromptTemplateStrategy struct{}

// Execute renders input.template (or data.template) with input.variables (or data.variables)
func (s *PromptTemplateStrategy) Execute(ctx context.Context, node models.Node, input map[string]interface{}, execCtx map[string]interface{}) (interface{}, error) {
	template, _ := input["template"].(string)
	if template == "" {
		template = node.DataString("template")
	}

	variables, ok := input["variables"].(map[string]interface{})
	if !ok {
		variables, _ = node.Data["variables"].(map[string]interface{})
	}

	return map[string]interface{}{
		"prompt": utils.RenderPlaceholders(template, variables),
	}, nil
}
