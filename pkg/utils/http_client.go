// Package utils provides shared clients and helpers for node strategies.
package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient provides a reusable HTTP client with common functionality
type HTTPClient struct {
	client *http.Client
}

// HTTPRequest represents an HTTP request
type HTTPRequest struct {
	URL            string                 `json:"url"`
	Method         string                 `json:"method"`
	Headers        map[string]string      `json:"headers,omitempty"`
	QueryParams    map[string]string      `json:"query_params,omitempty"`
	Body           interface{}            `json:"body,omitempty"`
	Timeout        time.Duration          `json:"timeout,omitempty"`
	Auth           map[string]interface{} `json:"auth,omitempty"`
	FollowRedirect bool                   `json:"follow_redirect,omitempty"`
}

// HTTPResponse represents an HTTP response
type HTTPResponse struct {
	StatusCode int                    `json:"status_code"`
	Headers    map[string][]string    `json:"headers"`
	Body       interface{}            `json:"body"`
	RawBody    []byte                 `json:"raw_body,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient() *HTTPClient {
	return NewHTTPClientWith(&http.Client{Timeout: 30 * time.Second})
}

// NewHTTPClientWith wraps an existing *http.Client
func NewHTTPClientWith(client *http.Client) *HTTPClient {
	return &HTTPClient{client: client}
}

// Do executes an HTTP request. The request is bound to ctx.
func (c *HTTPClient) Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	// Create request body if provided
	var bodyReader io.Reader
	if req.Body != nil {
		switch body := req.Body.(type) {
		case string:
			bodyReader = strings.NewReader(body)
		case []byte:
			bodyReader = bytes.NewReader(body)
		default:
			jsonBody, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request body: %w", err)
			}
			bodyReader = bytes.NewReader(jsonBody)
		}
	}

	parsedURL, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if len(req.QueryParams) > 0 {
		q := parsedURL.Query()
		for key, value := range req.QueryParams {
			q.Set(key, value)
		}
		parsedURL.RawQuery = q.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, parsedURL.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range req.Headers {
		httpReq.Header.Add(key, value)
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	applyAuth(httpReq, req.Auth)

	// Per-request settings go on a shallow copy so concurrent calls don't interfere
	client := *c.client
	if req.Timeout > 0 {
		client.Timeout = req.Timeout
	}
	if !req.FollowRedirect {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	startTime := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	requestDuration := time.Since(startTime)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// Parse JSON bodies, fall back to the raw string
	var parsedBody interface{}
	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		if err := json.Unmarshal(body, &parsedBody); err != nil {
			parsedBody = string(body)
		}
	} else {
		parsedBody = string(body)
	}

	return &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       parsedBody,
		RawBody:    body,
		Metadata: map[string]interface{}{
			"content_type":   contentType,
			"content_length": resp.ContentLength,
			"request_url":    req.URL,
			"request_method": method,
			"timing_ms":      requestDuration.Milliseconds(),
		},
	}, nil
}

func applyAuth(httpReq *http.Request, auth map[string]interface{}) {
	if auth == nil {
		return
	}
	if username, ok := auth["username"].(string); ok {
		if password, ok := auth["password"].(string); ok {
			httpReq.SetBasicAuth(username, password)
		}
	} else if token, ok := auth["token"].(string); ok {
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	} else if apiKey, ok := auth["api_key"].(string); ok {
		if keyName, ok := auth["key_name"].(string); ok {
			httpReq.Header.Set(keyName, apiKey)
		} else {
			httpReq.Header.Set("X-API-Key", apiKey)
		}
	}
}
