package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// LLMProvider represents the type of LLM provider
type LLMProvider string

const (
	// Gemini is Google's generateContent REST API
	Gemini LLMProvider = "gemini"
	// OpenAI provider
	OpenAI LLMProvider = "openai"
	// Generic provider for OpenAI-compatible APIs
	Generic LLMProvider = "generic"
)

// DefaultGeminiBaseURL is the public Gemini endpoint
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// LLMClient provides a unified interface for interacting with different LLM providers
type LLMClient struct {
	httpClient *HTTPClient
	provider   LLMProvider
	apiKey     string
	baseURL    string
	options    map[string]interface{}
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMRequest represents a request to an LLM
type LLMRequest struct {
	Model       string                 `json:"model"`
	Messages    []Message              `json:"messages"`
	Temperature float64                `json:"temperature,omitempty"`
	MaxTokens   int                    `json:"max_tokens,omitempty"`
	Stop        []string               `json:"stop,omitempty"`
	Options     map[string]interface{} `json:"options,omitempty"`
}

// LLMResponse represents a response from an LLM
type LLMResponse struct {
	ID          string                 `json:"id,omitempty"`
	Model       string                 `json:"model,omitempty"`
	Choices     []Choice               `json:"choices,omitempty"`
	Usage       Usage                  `json:"usage,omitempty"`
	RawResponse map[string]interface{} `json:"raw_response,omitempty"`
}

// Choice represents a completion choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Text returns the content of the first choice
func (r *LLMResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// NewLLMClient creates a new LLM client. options["base_url"] overrides the
// provider endpoint.
func NewLLMClient(provider LLMProvider, apiKey string, options map[string]interface{}) *LLMClient {
	client := &LLMClient{
		httpClient: NewHTTPClient(),
		provider:   provider,
		apiKey:     apiKey,
		options:    options,
	}

	switch provider {
	case Gemini:
		client.baseURL = DefaultGeminiBaseURL
	case OpenAI:
		client.baseURL = "https://api.openai.com/v1"
	}
	if baseURL, ok := options["base_url"].(string); ok && baseURL != "" {
		client.baseURL = strings.TrimRight(baseURL, "/")
	}

	return client
}

// Complete sends a completion request to the LLM
func (c *LLMClient) Complete(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	switch c.provider {
	case Gemini:
		return c.completeGemini(ctx, request)
	case OpenAI, Generic:
		return c.completeOpenAI(ctx, request)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", c.provider)
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// completeGemini sends a generateContent request. System messages become the
// system instruction; other messages become user or model turns.
func (c *LLMClient) completeGemini(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	var system []geminiPart
	var contents []geminiContent
	for _, m := range request.Messages {
		switch m.Role {
		case "system":
			system = append(system, geminiPart{Text: m.Content})
		case "assistant", "model":
			contents = append(contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}

	generationConfig := map[string]interface{}{
		"temperature": request.Temperature,
	}
	if request.MaxTokens > 0 {
		generationConfig["maxOutputTokens"] = request.MaxTokens
	}
	if len(request.Stop) > 0 {
		generationConfig["stopSequences"] = request.Stop
	}

	requestBody := map[string]interface{}{
		"contents":         contents,
		"generationConfig": generationConfig,
	}
	if len(system) > 0 {
		requestBody["systemInstruction"] = geminiContent{Parts: system}
	}
	for key, value := range request.Options {
		requestBody[key] = value
	}

	resp, err := c.httpClient.Do(ctx, &HTTPRequest{
		URL:         fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(request.Model)),
		Method:      "POST",
		Body:        requestBody,
		QueryParams: map[string]string{"key": c.apiKey},
		Timeout:     60 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("Gemini API request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("Gemini API Error %d: %s", resp.StatusCode, string(resp.RawBody))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(resp.RawBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse Gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("malformed response from Gemini API")
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	llmResp := &LLMResponse{
		Model: parsed.ModelVersion,
		Choices: []Choice{{
			Message:      Message{Role: "assistant", Content: text.String()},
			FinishReason: parsed.Candidates[0].FinishReason,
		}},
		Usage: Usage{
			PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
			CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
		},
	}
	if rawMap, ok := resp.Body.(map[string]interface{}); ok {
		llmResp.RawResponse = rawMap
	}
	if llmResp.Model == "" {
		llmResp.Model = request.Model
	}
	return llmResp, nil
}

// completeOpenAI sends a chat completion request to OpenAI or a compatible API
func (c *LLMClient) completeOpenAI(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	requestBody := map[string]interface{}{
		"model":       request.Model,
		"messages":    request.Messages,
		"temperature": request.Temperature,
	}
	if request.MaxTokens > 0 {
		requestBody["max_tokens"] = request.MaxTokens
	}
	if len(request.Stop) > 0 {
		requestBody["stop"] = request.Stop
	}
	for key, value := range request.Options {
		requestBody[key] = value
	}

	endpoint := "/chat/completions"
	if ep, ok := c.options["endpoint"].(string); ok && ep != "" {
		endpoint = ep
	}

	resp, err := c.httpClient.Do(ctx, &HTTPRequest{
		URL:    c.baseURL + endpoint,
		Method: "POST",
		Body:   requestBody,
		Headers: map[string]string{
			"Authorization": fmt.Sprintf("Bearer %s", c.apiKey),
		},
		Timeout: 60 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("LLM API error (status %d): %s", resp.StatusCode, string(resp.RawBody))
	}

	var llmResp LLMResponse
	if err := json.Unmarshal(resp.RawBody, &llmResp); err != nil {
		return nil, fmt.Errorf("failed to parse LLM response: %w", err)
	}
	if rawMap, ok := resp.Body.(map[string]interface{}); ok {
		llmResp.RawResponse = rawMap
	}
	return &llmResp, nil
}
