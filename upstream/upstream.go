// Package upstream talks to the external LLM provider invoked on cache miss.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/akuchlous/tokengard-mvp-sub000/openai"
	"github.com/akuchlous/tokengard-mvp-sub000/utils"
)

// Client is the upstream-complete capability injected into the orchestrator.
// One request maps to at most one upstream call; retries are the caller's
// responsibility.
type Client interface {
	Complete(ctx context.Context, text string, model string, temperature float32) (*openai.ChatCompletionResponse, error)
}

// Error is a classified upstream failure. Reason is the human-readable form
// surfaced to clients.
type Error struct {
	StatusCode int
	Reason     string
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream error (HTTP %d): %s", e.StatusCode, e.Reason)
}

// Reason derives the client-facing reason string for any upstream failure,
// including cancellation and deadline expiry.
func Reason(err error) string {
	var upstreamErr *Error
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Reason
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "deadline"
	}
	return "provider request failed"
}

func reasonForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "provider authentication failed"
	case status == http.StatusTooManyRequests:
		return "provider rate limit exceeded"
	case status >= 500:
		return "provider service error"
	default:
		return fmt.Sprintf("provider rejected the request (HTTP %d)", status)
	}
}

// OpenAIClient speaks the OpenAI chat-completions wire protocol to any
// compatible provider endpoint.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

func NewOpenAIClient(baseURL string, apiKey string, timeout time.Duration, logger *zap.SugaredLogger) *OpenAIClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, text string, model string, temperature float32) (*openai.ChatCompletionResponse, error) {
	request := &openai.ChatCompletionRequest{
		Messages:    []openai.Message{openai.TextMessage("user", text)},
		Model:       model,
		Temperature: utils.ToPtr(temperature),
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upstream request: %v", err)
	}

	httpRequest, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %v", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("upstream request failed: %v", err)
	}
	defer httpResponse.Body.Close()

	responseBody, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %v", err)
	}

	if httpResponse.StatusCode != http.StatusOK {
		c.logger.Warnw("Upstream returned an error",
			"status", httpResponse.StatusCode, "model", model)
		return nil, &Error{
			StatusCode: httpResponse.StatusCode,
			Reason:     reasonForStatus(httpResponse.StatusCode),
			Body:       truncate(string(responseBody), 512),
		}
	}

	var completion openai.ChatCompletionResponse
	if err := json.Unmarshal(responseBody, &completion); err != nil {
		return nil, fmt.Errorf("failed to unmarshal upstream response: %v", err)
	}
	return &completion, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
