package proxy

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/akuchlous/tokengard-mvp-sub000/policy"
)

// Kind classifies the terminal state of a proxied request.
type Kind string

const (
	KindOK               Kind = "ok"
	KindAuthFailed       Kind = "auth_failed"
	KindContentBlocked   Kind = "content_blocked"
	KindValidationFailed Kind = "validation_failed"
	KindUpstreamError    Kind = "upstream_error"
	KindInternalError    Kind = "internal_error"
)

// kindFor folds the policy engine's failure kinds into the orchestrator's
// coarser terminal kinds.
func kindFor(policyKind policy.Kind) Kind {
	switch policyKind {
	case policy.KindOK:
		return KindOK
	case policy.KindMissingAPIKey, policy.KindKeyNotFound,
		policy.KindKeyInactive, policy.KindAccountInactive:
		return KindAuthFailed
	case policy.KindBannedKeyword, policy.KindExternalAPIBlocked:
		return KindContentBlocked
	case policy.KindInvalidKeyFormat, policy.KindInvalidKeyChars,
		policy.KindTextTooLong:
		return KindValidationFailed
	default:
		return KindInternalError
	}
}

// Response is the orchestrator's verdict on one request. Payload is always a
// chat-completion-shaped object, for failures too, so clients built against
// the OpenAI response shape never need a second parser.
type Response struct {
	Success    bool           `json:"success"`
	StatusCode int            `json:"-"`
	Kind       Kind           `json:"kind"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Message    string         `json:"message,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	ProxyID    string         `json:"proxy_id"`
	FromCache  bool           `json:"from_cache"`
	Similarity float64        `json:"similarity,omitempty"`
}

// errorCompletion synthesizes a chat-completion-shaped body describing a
// failure. The assistant turn carries the error code and reason, and the code
// is repeated as a top-level field so clients need not parse the message;
// usage is all zeros since no tokens were spent.
func errorCompletion(model string, errorCode string, reason string, proxyID string, now time.Time) map[string]any {
	return map[string]any{
		"id":      chatCompletionID(),
		"object":  "chat.completion",
		"created": now.Unix(),
		"model":   model,
		"choices": []any{
			map[string]any{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": fmt.Sprintf("Proxy error (%s): %s", errorCode, reason),
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     0,
			"completion_tokens": 0,
			"total_tokens":      0,
		},
		"proxy_id":   proxyID,
		"from_cache": false,
		"error_code": errorCode,
	}
}

// decoratePayload deserializes an upstream or cached completion body and
// stamps the proxy fields onto it. The cached bytes themselves are never
// mutated; each hit gets its own decorated copy.
func decoratePayload(raw []byte, proxyID string, fromCache bool, similarity float64) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode completion payload: %v", err)
	}
	payload["proxy_id"] = proxyID
	payload["from_cache"] = fromCache
	if fromCache {
		payload["similarity"] = similarity
	}
	return payload, nil
}

func chatCompletionID() string {
	var buf [12]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// Fall back to the clock; uniqueness is cosmetic here.
		return fmt.Sprintf("chatcmpl-%x", time.Now().UnixNano())
	}
	return "chatcmpl-" + hex.EncodeToString(buf[:])
}

func internalErrorResponse(proxyID string, model string, now time.Time) *Response {
	code := policy.KindInternalError.Code()
	return &Response{
		StatusCode: http.StatusInternalServerError,
		Kind:       KindInternalError,
		ErrorCode:  code,
		Message:    "internal proxy error",
		Payload:    errorCompletion(model, code, "internal proxy error", proxyID, now),
		ProxyID:    proxyID,
	}
}
