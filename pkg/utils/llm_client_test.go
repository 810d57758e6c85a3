package utils

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiComplete(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-flash:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Hello "}, {"text": "there"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 3, "candidatesTokenCount": 2, "totalTokenCount": 5}
		}`))
	}))
	defer server.Close()

	client := NewLLMClient(Gemini, "secret", map[string]interface{}{"base_url": server.URL + "/"})
	resp, err := client.Complete(context.Background(), LLMRequest{
		Model: "gemini-flash",
		Messages: []Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hi"},
		},
		Temperature: 0.5,
		MaxTokens:   64,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", resp.Text())
	assert.Equal(t, 5, resp.Usage.TotalTokens)
	assert.Equal(t, "gemini-flash", resp.Model)

	contents := captured["contents"].([]interface{})
	require.Len(t, contents, 1)
	assert.Equal(t, "user", contents[0].(map[string]interface{})["role"])
	assert.NotNil(t, captured["systemInstruction"])
	gen := captured["generationConfig"].(map[string]interface{})
	assert.Equal(t, 0.5, gen["temperature"])
	assert.Equal(t, float64(64), gen["maxOutputTokens"])
}

func TestGeminiCompleteErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"quota"}`))
	}))
	defer server.Close()

	client := NewLLMClient(Gemini, "k", map[string]interface{}{"base_url": server.URL})
	_, err := client.Complete(context.Background(), LLMRequest{Model: "m", Messages: []Message{{Role: "user", Content: "x"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestGeminiCompleteMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates": []}`))
	}))
	defer server.Close()

	client := NewLLMClient(Gemini, "k", map[string]interface{}{"base_url": server.URL})
	_, err := client.Complete(context.Background(), LLMRequest{Model: "m", Messages: []Message{{Role: "user", Content: "x"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

func TestOpenAICompatibleComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","model":"gpt","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}],"usage":{"total_tokens":7}}`))
	}))
	defer server.Close()

	client := NewLLMClient(Generic, "k", map[string]interface{}{"base_url": server.URL})
	resp, err := client.Complete(context.Background(), LLMRequest{Model: "gpt", Messages: []Message{{Role: "user", Content: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text())
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestUnsupportedProvider(t *testing.T) {
	client := NewLLMClient("carrier-pigeon", "k", nil)
	_, err := client.Complete(context.Background(), LLMRequest{})
	assert.Error(t, err)
}
