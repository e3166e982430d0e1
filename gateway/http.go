package gateway

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// envelope is the uniform response shape for the admin surface and for
// request-admission errors. Proxy responses never use it: the orchestrator's
// payload, error completions included, is written at the top level.
type envelope struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already written; an encode failure here has no
	// recovery path.
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, errorCode string, message string) {
	writeJSON(w, status, envelope{
		ErrorCode: errorCode,
		Message:   message,
	})
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// readBody reads the request body under the size cap. The second return is
// false when a response has already been written.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE",
				"request body exceeds the 10 KiB limit")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "failed to read request body")
		return nil, false
	}
	return body, true
}

// decodeObject parses body into target, distinguishing malformed JSON from a
// well-formed document of the wrong shape.
func decodeObject(w http.ResponseWriter, body []byte, target any) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "request body is empty")
		return false
	}

	var probe any
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON")
		return false
	}
	if _, ok := probe.(map[string]any); !ok {
		writeError(w, http.StatusBadRequest, "INVALID_DATA_TYPE", "request body must be a JSON object")
		return false
	}

	if err := json.Unmarshal(trimmed, target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_DATA_TYPE", "request field has the wrong type")
		return false
	}
	return true
}

// headerAPIKey extracts the key from Authorization: Bearer first, then
// X-API-Key.
func headerAPIKey(r *http.Request) string {
	authorization := r.Header.Get("Authorization")
	if strings.HasPrefix(authorization, "Bearer ") {
		if key := strings.TrimSpace(strings.TrimPrefix(authorization, "Bearer ")); key != "" {
			return key
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
