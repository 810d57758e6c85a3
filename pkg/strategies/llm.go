package strategies

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tcmartin/dagrunner/pkg/logging"
	"github.com/tcmartin/dagrunner/pkg/models"
	"github.com/tcmartin/dagrunner/pkg/utils"
)

// MockLLMStrategy exercises the LLM plumbing without a provider. It answers with
// the reversed prompt after a simulated delay.
type MockLLMStrategy struct {
	llm *llmSupport
}

// Execute requires an API key; a prompt of FORCE_ERROR simulates a provider failure
func (s *MockLLMStrategy) Execute(ctx context.Context, node models.Node, input map[string]interface{}, execCtx map[string]interface{}) (interface{}, error) {
	apiKey, err := s.llm.apiKey(node, execCtx)
	if err != nil {
		return nil, err
	}
	cfg, err := s.llm.config(node)
	if err != nil {
		return nil, normalizeLLMError(err)
	}
	if err := s.llm.simulateDelay(ctx); err != nil {
		return nil, normalizeLLMError(err)
	}

	prompt, _ := input["prompt"].(string)
	if prompt == "" {
		prompt = "Hello World"
	}
	if prompt == "FORCE_ERROR" {
		return nil, normalizeLLMError(errors.New("Simulated Provider Error 500"))
	}

	n := len([]rune(prompt))
	return map[string]interface{}{
		"content": "MOCK RESPONSE: " + reverse(prompt),
		"model":   cfg.Model,
		"usage": map[string]interface{}{
			"totalTokens":      n,
			"promptTokens":     n,
			"completionTokens": n,
		},
		"_debugKeyUsed": keyPrefix(apiKey) + "...",
	}, nil
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func keyPrefix(key string) string {
	if len(key) <= 4 {
		return key
	}
	return key[:4]
}

// LLMGenerationStrategy generates text from input.prompt
type LLMGenerationStrategy struct {
	llm *llmSupport
}

// Execute returns {result}. The mock key short-circuits the provider call.
func (s *LLMGenerationStrategy) Execute(ctx context.Context, node models.Node, input map[string]interface{}, execCtx map[string]interface{}) (interface{}, error) {
	cfg, err := s.llm.config(node)
	if err != nil {
		return nil, err
	}
	apiKey, err := s.llm.apiKey(node, execCtx)
	if err != nil {
		return nil, err
	}

	prompt, ok := input["prompt"].(string)
	if !ok || prompt == "" {
		return nil, fmt.Errorf("Input must contain a \"prompt\" string")
	}

	s.llm.logger.Debug("llm generating",
		logging.F("node_id", node.ID),
		logging.F("model", cfg.Model),
		logging.F("temperature", cfg.Temperature))

	if apiKey == MockAPIKey {
		return map[string]interface{}{
			"result": fmt.Sprintf("[MOCK SCIFI] %s leads to a cyberpunk future.", prompt),
		}, nil
	}

	messages := []utils.Message{{Role: "user", Content: prompt}}
	if cfg.SystemInstruction != "" {
		messages = append([]utils.Message{{Role: "system", Content: cfg.SystemInstruction}}, messages...)
	}

	resp, err := s.llm.client(apiKey).Complete(ctx, utils.LLMRequest{
		Model:       cfg.Model,
		Messages:    messages,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return nil, normalizeLLMError(err)
	}
	text := resp.Text()
	if text == "" {
		return nil, normalizeLLMError(errors.New("Malformed response from Gemini API"))
	}

	return map[string]interface{}{"result": text}, nil
}

// LLMExtractStrategy extracts structured data from input.text according to a JSON Schema
type LLMExtractStrategy struct {
	llm *llmSupport
}

const extractSystemPrompt = `You are a strict data extraction assistant.
Your goal is to extract structured data from the provided text according to the following JSON Schema.

JSON Schema:
%s

Instructions:
1. Extract data from the user input that matches the schema.
2. Return ONLY valid JSON.
3. Do not include markdown code blocks or explanations.
4. If a field is missing in text but required in schema, attempt to infer context or return null if allowed.`

// Execute returns the extracted object after validating it against the schema
func (s *LLMExtractStrategy) Execute(ctx context.Context, node models.Node, input map[string]interface{}, execCtx map[string]interface{}) (interface{}, error) {
	cfg, err := s.llm.config(node)
	if err != nil {
		return nil, normalizeLLMError(err)
	}

	rawSchema, ok := input["schema"]
	if !ok || rawSchema == nil {
		rawSchema = node.Config["schema"]
	}
	if rawSchema == nil {
		return nil, normalizeLLMError(errors.New(`Missing "schema": Must be provided in input or config.`))
	}
	schema, schemaJSON, err := compileSchema(rawSchema)
	if err != nil {
		return nil, normalizeLLMError(fmt.Errorf("Invalid JSON Schema provided: %v", err))
	}

	text, ok := input["text"].(string)
	if !ok || text == "" {
		return nil, normalizeLLMError(errors.New(`Missing "text": Input must be a string.`))
	}

	apiKey, err := s.llm.apiKey(node, execCtx)
	if err != nil {
		return nil, err
	}

	var output interface{}
	if apiKey == MockAPIKey {
		if err := s.llm.simulateDelay(ctx); err != nil {
			return nil, normalizeLLMError(err)
		}
		output = map[string]interface{}{
			"name": "Extracted Name",
			"date": "2024-01-01",
		}
	} else {
		resp, err := s.llm.client(apiKey).Complete(ctx, utils.LLMRequest{
			Model: cfg.Model,
			Messages: []utils.Message{
				{Role: "system", Content: fmt.Sprintf(extractSystemPrompt, schemaJSON)},
				{Role: "user", Content: "Input Text:\n" + text},
			},
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return nil, normalizeLLMError(err)
		}
		if err := utils.ParseJSON(resp.Text(), &output); err != nil {
			return nil, normalizeLLMError(fmt.Errorf("LLM returned invalid JSON: %v", err))
		}
	}

	if err := schema.Validate(output); err != nil {
		return nil, normalizeLLMError(fmt.Errorf("LLM Schema Validation Failed: %v", err))
	}
	return output, nil
}

// compileSchema validates raw against the JSON Schema metaschema and compiles it
func compileSchema(raw interface{}) (*jsonschema.Schema, string, error) {
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	default:
		normalized, err := toJSONValue(v)
		if err != nil {
			return nil, "", err
		}
		data, err = json.MarshalIndent(normalized, "", "  ")
		if err != nil {
			return nil, "", err
		}
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource("node-schema.json", bytes.NewReader(data)); err != nil {
		return nil, "", err
	}
	schema, err := compiler.Compile("node-schema.json")
	if err != nil {
		return nil, "", err
	}
	return schema, string(data), nil
}
