// Package policy validates API keys and enforces per-tenant content policy
// before a request is allowed to touch the cache or the upstream provider.
package policy

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/akuchlous/tokengard-mvp-sub000/tenancy"
)

const (
	minKeyLength = 10
	maxKeyLength = 200

	// MaxTextLength is the character bound on prompt text.
	MaxTextLength = 10000

	// Repetition heuristic: blocked when one token exceeds this share of all
	// tokens and the text has at least repetitionMinTokens tokens. Stands in
	// for a pluggable external moderator; must stay deterministic.
	repetitionShare     = 0.3
	repetitionMinTokens = 11
)

const suspiciousKeyChars = `<>"'&;()`

// Result is the engine's verdict. On a pass, Key carries the resolved record
// and TenantScope the derived cache partition so callers need not re-query.
type Result struct {
	Passed         bool       `json:"passed"`
	Kind           Kind       `json:"kind"`
	Message        string     `json:"message"`
	Key            *KeyRecord `json:"key,omitempty"`
	TenantScope    string     `json:"tenant_scope,omitempty"`
	TextLength     int        `json:"text_length"`
	MatchedKeyword string     `json:"matched_keyword,omitempty"`
}

// Engine runs the policy pipeline: key syntax, key resolution, key state,
// tenant state, banned keywords, content heuristics. Checks short-circuit on
// the first failure.
type Engine struct {
	resolver Resolver
	keywords *KeywordStore
	logger   *zap.SugaredLogger
}

func NewEngine(resolver Resolver, keywords *KeywordStore, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		resolver: resolver,
		keywords: keywords,
		logger:   logger,
	}
}

// Keywords exposes the engine's keyword store for the admin surface.
func (e *Engine) Keywords() *KeywordStore {
	return e.keywords
}

// Check runs the full pipeline for (apiKey, text).
func (e *Engine) Check(ctx context.Context, apiKey, text string) Result {
	textLength := utf8.RuneCountInString(text)

	if kind, message := checkKeySyntax(apiKey); kind != KindOK {
		return Result{Kind: kind, Message: message, TextLength: textLength}
	}

	record, err := e.resolver.Resolve(ctx, apiKey)
	if err != nil {
		e.logger.Errorw("Key resolver failed", "error", err)
		return Result{
			Kind:       KindInternalError,
			Message:    "key lookup failed",
			TextLength: textLength,
		}
	}
	if record == nil {
		return Result{
			Kind:       KindKeyNotFound,
			Message:    "API key not found",
			TextLength: textLength,
		}
	}

	if record.State != KeyStateEnabled {
		return Result{
			Kind:       KindKeyInactive,
			Message:    "API key is inactive",
			Key:        record,
			TextLength: textLength,
		}
	}
	if record.TenantStatus != TenantActive {
		return Result{
			Kind:       KindAccountInactive,
			Message:    fmt.Sprintf("account is %s", record.TenantStatus),
			Key:        record,
			TextLength: textLength,
		}
	}

	scope := tenancy.Scope(record.TenantID)

	if text != "" {
		if keyword, matched := e.keywords.Match(scope, text); matched {
			return Result{
				Kind:           KindBannedKeyword,
				Message:        fmt.Sprintf("banned keyword detected: %s", keyword),
				Key:            record,
				TenantScope:    scope,
				TextLength:     textLength,
				MatchedKeyword: keyword,
			}
		}
	}

	if kind, message := checkContent(text, textLength); kind != KindOK {
		return Result{
			Kind:        kind,
			Message:     message,
			Key:         record,
			TenantScope: scope,
			TextLength:  textLength,
		}
	}

	return Result{
		Passed:      true,
		Kind:        KindOK,
		Message:     "ok",
		Key:         record,
		TenantScope: scope,
		TextLength:  textLength,
	}
}

func checkKeySyntax(apiKey string) (Kind, string) {
	if apiKey == "" {
		return KindMissingAPIKey, "API key is required"
	}
	if len(apiKey) < minKeyLength || len(apiKey) > maxKeyLength {
		return KindInvalidKeyFormat, fmt.Sprintf(
			"API key length must be between %d and %d characters", minKeyLength, maxKeyLength)
	}
	for _, char := range apiKey {
		if char < '!' || char > '~' || strings.ContainsRune(suspiciousKeyChars, char) {
			return KindInvalidKeyChars, "API key contains invalid characters"
		}
	}
	return KindOK, ""
}

func checkContent(text string, textLength int) (Kind, string) {
	if textLength > MaxTextLength {
		return KindTextTooLong, fmt.Sprintf(
			"text length %d exceeds the %d character limit", textLength, MaxTextLength)
	}

	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) >= repetitionMinTokens {
		counts := make(map[string]int, len(tokens))
		maxCount := 0
		for _, token := range tokens {
			counts[token]++
			if counts[token] > maxCount {
				maxCount = counts[token]
			}
		}
		if float64(maxCount) > float64(len(tokens))*repetitionShare {
			return KindExternalAPIBlocked, "content flagged by moderation heuristics"
		}
	}
	return KindOK, ""
}
