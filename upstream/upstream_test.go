package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/akuchlous/tokengard-mvp-sub000/openai"
)

func TestOpenAIClientComplete(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var captured struct {
			path          string
			authorization string
			request       openai.ChatCompletionRequest
		}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured.path = r.URL.Path
			captured.authorization = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.request))

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(&openai.ChatCompletionResponse{
				Id:      "chatcmpl-1",
				Object:  "chat.completion",
				Model:   "gpt-4o",
				Choices: []openai.Choice{{Message: openai.TextMessage("assistant", "Paris."), FinishReason: "stop"}},
				Usage:   openai.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
			})
		}))
		defer server.Close()

		client := NewOpenAIClient(server.URL, "secret-key", time.Second, zaptest.NewLogger(t).Sugar())
		completion, err := client.Complete(context.Background(), "capital of france?", "gpt-4o", 0.7)
		require.NoError(t, err)

		assert.Equal(t, "chatcmpl-1", completion.Id)
		assert.Equal(t, int32(12), completion.Usage.TotalTokens)
		assert.Equal(t, "/chat/completions", captured.path)
		assert.Equal(t, "Bearer secret-key", captured.authorization)
		assert.Equal(t, "gpt-4o", captured.request.Model)
		require.NotNil(t, captured.request.Temperature)
		assert.Equal(t, float32(0.7), *captured.request.Temperature)
		assert.Equal(t, "capital of france?", openai.UserText(captured.request.Messages))
	})

	t.Run("provider error statuses are classified", func(t *testing.T) {
		tests := []struct {
			status int
			reason string
		}{
			{http.StatusUnauthorized, "provider authentication failed"},
			{http.StatusForbidden, "provider authentication failed"},
			{http.StatusTooManyRequests, "provider rate limit exceeded"},
			{http.StatusServiceUnavailable, "provider service error"},
			{http.StatusBadRequest, "provider rejected the request (HTTP 400)"},
		}

		for _, test := range tests {
			t.Run(fmt.Sprintf("HTTP %d", test.status), func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(test.status)
					w.Write([]byte(`{"error":"nope"}`))
				}))
				defer server.Close()

				client := NewOpenAIClient(server.URL, "", time.Second, zaptest.NewLogger(t).Sugar())
				_, err := client.Complete(context.Background(), "hello", "gpt-4o", 0.7)

				var upstreamErr *Error
				require.ErrorAs(t, err, &upstreamErr)
				assert.Equal(t, test.status, upstreamErr.StatusCode)
				assert.Equal(t, test.reason, upstreamErr.Reason)
				assert.Equal(t, test.reason, Reason(err))
			})
		}
	})

	t.Run("cancellation surfaces the context error", func(t *testing.T) {
		started := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Drain the body so the server watches the connection and cancels
			// the request context when the client gives up.
			io.Copy(io.Discard, r.Body)
			close(started)
			<-r.Context().Done()
		}))
		defer server.Close()

		client := NewOpenAIClient(server.URL, "", time.Minute, zaptest.NewLogger(t).Sugar())
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-started
			cancel()
		}()

		_, err := client.Complete(ctx, "hello", "gpt-4o", 0.7)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Equal(t, "cancelled", Reason(err))
	})

	t.Run("malformed response body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer server.Close()

		client := NewOpenAIClient(server.URL, "", time.Second, zaptest.NewLogger(t).Sugar())
		_, err := client.Complete(context.Background(), "hello", "gpt-4o", 0.7)
		assert.Error(t, err)
	})
}

func TestReason(t *testing.T) {
	assert.Equal(t, "deadline", Reason(context.DeadlineExceeded))
	assert.Equal(t, "cancelled", Reason(context.Canceled))
	assert.Equal(t, "provider request failed", Reason(errors.New("dial tcp: refused")))
	assert.Equal(t, "boom", Reason(&Error{StatusCode: 500, Reason: "boom"}))
}
