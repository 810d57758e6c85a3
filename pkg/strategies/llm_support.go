package strategies

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tcmartin/dagrunner/pkg/logging"
	"github.com/tcmartin/dagrunner/pkg/models"
	"github.com/tcmartin/dagrunner/pkg/utils"
)

// LLM error codes
const (
	CodeAuthError     = "AUTH_ERROR"
	CodeRateLimit     = "RATE_LIMIT"
	CodeProviderError = "PROVIDER_ERROR"
	CodeTimeout       = "TIMEOUT"
)

// MockAPIKey makes llm-generation and llm-extract answer locally
const MockAPIKey = "mock-key"

// EnvGeminiAPIKey is the key looked up in context.env and the process environment
const EnvGeminiAPIKey = "GEMINI_API_KEY"

// LLMError is the normalized failure of an LLM-backed node
type LLMError struct {
	Message   string
	Code      string
	Retryable bool
	Err       error
}

func (e *LLMError) Error() string { return e.Message }

func (e *LLMError) Unwrap() error { return e.Err }

// LLMConfig is the node configuration shared by LLM strategies
type LLMConfig struct {
	Model             string
	Temperature       float64
	MaxTokens         int
	SystemInstruction string
}

// llmSupport holds what every LLM strategy needs: key lookup, config parsing,
// error normalization and a client factory.
type llmSupport struct {
	getenv    func(string) string
	baseURL   string
	mockDelay time.Duration
	logger    logging.Logger
}

// apiKey resolves the key from node config, then context env, then the process environment
func (l *llmSupport) apiKey(node models.Node, execCtx map[string]interface{}) (string, error) {
	if key := node.ConfigString("apiKey"); key != "" {
		return key, nil
	}
	if env, ok := execCtx["env"].(map[string]interface{}); ok {
		if key, ok := env[EnvGeminiAPIKey].(string); ok && key != "" {
			return key, nil
		}
	}
	if key := l.getenv(EnvGeminiAPIKey); key != "" {
		return key, nil
	}
	return "", &LLMError{
		Message:   "Missing API Key: GEMINI_API_KEY not found in Node Config, Workflow Context, or Environment Variables.",
		Code:      CodeAuthError,
		Retryable: false,
	}
}

// config applies defaults and validates the node config
func (l *llmSupport) config(node models.Node) (LLMConfig, error) {
	cfg := LLMConfig{Model: "gemini-flash", Temperature: 0.7}

	if raw, ok := node.Config["model"]; ok {
		model, ok := raw.(string)
		if !ok {
			return cfg, fmt.Errorf("Invalid LLM Configuration: model must be a string")
		}
		cfg.Model = model
	}
	if raw, ok := node.Config["temperature"]; ok {
		t, ok := toFloat(raw)
		if !ok {
			return cfg, fmt.Errorf("Invalid LLM Configuration: temperature must be a number")
		}
		if t < 0 || t > 1 {
			return cfg, fmt.Errorf("Invalid LLM Configuration: temperature must be between 0 and 1, got %v", t)
		}
		cfg.Temperature = t
	}
	if raw, ok := node.Config["maxTokens"]; ok {
		n, ok := toFloat(raw)
		if !ok || n < 0 {
			return cfg, fmt.Errorf("Invalid LLM Configuration: maxTokens must be a non-negative number")
		}
		cfg.MaxTokens = int(n)
	}
	cfg.SystemInstruction = node.ConfigString("systemInstruction")

	return cfg, nil
}

func (l *llmSupport) client(apiKey string) *utils.LLMClient {
	return utils.NewLLMClient(utils.Gemini, apiKey, map[string]interface{}{"base_url": l.baseURL})
}

// simulateDelay waits for the mock latency unless ctx ends first
func (l *llmSupport) simulateDelay(ctx context.Context) error {
	timer := time.NewTimer(l.mockDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// normalizeLLMError maps provider failures onto LLMError codes
func normalizeLLMError(err error) error {
	if err == nil {
		return nil
	}
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return err
	}

	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &LLMError{Message: msg, Code: CodeTimeout, Retryable: true, Err: err}
	case strings.Contains(msg, "401") || strings.Contains(msg, "Unauthorized") || strings.Contains(msg, "API key"):
		return &LLMError{Message: msg, Code: CodeAuthError, Retryable: false, Err: err}
	case strings.Contains(msg, "429") || strings.Contains(msg, "Rate limit"):
		return &LLMError{Message: msg, Code: CodeRateLimit, Retryable: true, Err: err}
	default:
		return &LLMError{Message: msg, Code: CodeProviderError, Retryable: true, Err: err}
	}
}
