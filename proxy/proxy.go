// Package proxy orchestrates the request pipeline: policy check, semantic
// cache lookup, upstream completion, cache write-back and analytics.
package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akuchlous/tokengard-mvp-sub000/cache"
	"github.com/akuchlous/tokengard-mvp-sub000/cost"
	"github.com/akuchlous/tokengard-mvp-sub000/monitoring"
	"github.com/akuchlous/tokengard-mvp-sub000/openai"
	"github.com/akuchlous/tokengard-mvp-sub000/policy"
	"github.com/akuchlous/tokengard-mvp-sub000/state"
	"github.com/akuchlous/tokengard-mvp-sub000/tenancy"
	"github.com/akuchlous/tokengard-mvp-sub000/upstream"
)

// Encoder turns prompt text into the embedding the cache is scanned with.
type Encoder interface {
	Encode(text string) ([]float32, error)
}

// Sink receives one analytics row per terminal request state. The recorder
// satisfies it; tests substitute their own.
type Sink interface {
	Record(record *state.ProxyRecord, providerPayload []byte)
}

// Deps are the orchestrator's injected collaborators. Keys, Recorder and
// Metrics may be nil; Clock defaults to the wall clock.
type Deps struct {
	Policy   *policy.Engine
	Cache    *cache.SemanticCache
	Encoder  Encoder
	Upstream upstream.Client
	Settings *tenancy.Settings
	Recorder Sink
	Keys     policy.LastUsedRecorder
	Metrics  *monitoring.Metrics
	Logger   *zap.SugaredLogger
	Clock    clock.Clock
}

// Orchestrator runs the proxy pipeline for one request at a time. It holds no
// per-request state; every Process call is independent.
type Orchestrator struct {
	deps Deps
}

func New(deps Deps) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return &Orchestrator{deps: deps}
}

// Process runs the full pipeline for a normalized request. It always returns
// a terminal Response; errors never escape as Go errors because every failure
// class has a response shape.
func (o *Orchestrator) Process(ctx context.Context, data *RequestData, clientIP string, userAgent string) *Response {
	start := o.deps.Clock.Now()
	proxyID := uuid.NewString()
	text, model, temperature := data.Normalize()

	o.deps.Logger.Debugw("Proxy request received",
		"proxy_id", proxyID,
		"model", model,
		"key_suffix", keySuffix(data.APIKey),
		"text_length", len(text))

	verdict := o.deps.Policy.Check(ctx, data.APIKey, text)
	if !verdict.Passed {
		return o.finishRejected(proxyID, &verdict, model, temperature, clientIP, userAgent, start)
	}
	if data.PolicyOnly {
		return o.finishPolicyOnly(proxyID, &verdict, model, temperature, clientIP, userAgent, start)
	}

	embedding, err := o.deps.Encoder.Encode(text)
	if err != nil {
		o.deps.Logger.Errorw("Embedding encoder failed", "proxy_id", proxyID, "error", err)
		response := internalErrorResponse(proxyID, model, o.deps.Clock.Now())
		o.finish(proxyID, response, &verdict, model, temperature, clientIP, userAgent, start, openai.Usage{}, nil)
		return response
	}

	lookup := o.deps.Cache.SemanticLookup(verdict.TenantScope, embedding)
	if o.deps.Metrics != nil {
		o.deps.Metrics.ObserveCacheLookup(lookup.Found)
	}
	if lookup.Found {
		return o.finishHit(ctx, proxyID, &verdict, lookup, model, temperature, clientIP, userAgent, start)
	}

	completion, err := o.deps.Upstream.Complete(ctx, text, model, temperature)
	if err != nil {
		return o.finishUpstreamError(proxyID, &verdict, err, model, temperature, clientIP, userAgent, start)
	}

	return o.finishMiss(ctx, proxyID, &verdict, completion, text, embedding, model, temperature, clientIP, userAgent, start)
}

// finishRejected terminates a request the policy engine blocked. The payload
// is a synthesized chat completion so callers always get the same shape.
func (o *Orchestrator) finishRejected(proxyID string, verdict *policy.Result, model string, temperature float32, clientIP string, userAgent string, start time.Time) *Response {
	now := o.deps.Clock.Now()
	code := verdict.Kind.Code()
	response := &Response{
		StatusCode: verdict.Kind.HTTPStatus(),
		Kind:       kindFor(verdict.Kind),
		ErrorCode:  code,
		Message:    verdict.Message,
		Payload:    errorCompletion(model, code, verdict.Message, proxyID, now),
		ProxyID:    proxyID,
	}
	if o.deps.Metrics != nil && response.Kind != KindInternalError {
		o.deps.Metrics.ObservePolicyBlock(string(verdict.Kind))
	}
	o.finish(proxyID, response, verdict, model, temperature, clientIP, userAgent, start, openai.Usage{}, nil)
	return response
}

// finishPolicyOnly short-circuits after a passing policy check without
// touching the cache or the upstream.
func (o *Orchestrator) finishPolicyOnly(proxyID string, verdict *policy.Result, model string, temperature float32, clientIP string, userAgent string, start time.Time) *Response {
	response := &Response{
		Success:    true,
		StatusCode: http.StatusOK,
		Kind:       KindOK,
		Payload: map[string]any{
			"proxy_id":    proxyID,
			"policy_only": true,
			"passed":      true,
			"text_length": verdict.TextLength,
		},
		ProxyID: proxyID,
	}
	o.finish(proxyID, response, verdict, model, temperature, clientIP, userAgent, start, openai.Usage{}, nil)
	return response
}

func (o *Orchestrator) finishHit(ctx context.Context, proxyID string, verdict *policy.Result, lookup cache.LookupResult, model string, temperature float32, clientIP string, userAgent string, start time.Time) *Response {
	o.deps.Cache.Access(lookup.Entry)

	payload, err := decoratePayload(lookup.Entry.Response, proxyID, true, lookup.Similarity)
	if err != nil {
		o.deps.Logger.Errorw("Cached payload is not decodable",
			"proxy_id", proxyID, "key", lookup.Entry.Key, "error", err)
		response := internalErrorResponse(proxyID, model, o.deps.Clock.Now())
		o.finish(proxyID, response, verdict, model, temperature, clientIP, userAgent, start, openai.Usage{}, nil)
		return response
	}

	var cached openai.ChatCompletionResponse
	// Usage is best-effort on hits; a decode failure only zeroes the counters.
	_ = json.Unmarshal(lookup.Entry.Response, &cached)

	o.touchLastUsed(ctx, verdict, proxyID)

	response := &Response{
		Success:    true,
		StatusCode: http.StatusOK,
		Kind:       KindOK,
		Payload:    payload,
		ProxyID:    proxyID,
		FromCache:  true,
		Similarity: lookup.Similarity,
	}
	o.finish(proxyID, response, verdict, model, temperature, clientIP, userAgent, start, cached.Usage, nil)
	return response
}

func (o *Orchestrator) finishUpstreamError(proxyID string, verdict *policy.Result, err error, model string, temperature float32, clientIP string, userAgent string, start time.Time) *Response {
	reason := upstream.Reason(err)
	if o.deps.Metrics != nil {
		o.deps.Metrics.ObserveUpstreamError(reason)
	}

	const code = "UPSTREAM_ERROR"
	response := &Response{
		StatusCode: http.StatusInternalServerError,
		Kind:       KindUpstreamError,
		ErrorCode:  code,
		Message:    reason,
		Payload:    errorCompletion(model, code, reason, proxyID, o.deps.Clock.Now()),
		ProxyID:    proxyID,
	}
	o.finish(proxyID, response, verdict, model, temperature, clientIP, userAgent, start, openai.Usage{}, nil)
	return response
}

func (o *Orchestrator) finishMiss(ctx context.Context, proxyID string, verdict *policy.Result, completion *openai.ChatCompletionResponse, text string, embedding []float32, model string, temperature float32, clientIP string, userAgent string, start time.Time) *Response {
	raw, err := json.Marshal(completion)
	if err != nil {
		o.deps.Logger.Errorw("Failed to encode upstream completion",
			"proxy_id", proxyID, "error", err)
		response := internalErrorResponse(proxyID, model, o.deps.Clock.Now())
		o.finish(proxyID, response, verdict, model, temperature, clientIP, userAgent, start, openai.Usage{}, nil)
		return response
	}

	// Only verified upstream successes are cached; the write is best-effort
	// and a failure never fails the request.
	fingerprint := Fingerprint(verdict.TenantScope, text, model, temperature)
	ttl := o.deps.Settings.Get(verdict.TenantScope).TTL
	if err := o.deps.Cache.Put(verdict.TenantScope, fingerprint, text, embedding, raw, ttl); err != nil {
		o.deps.Logger.Warnw("Cache write failed",
			"proxy_id", proxyID, "tenant_scope", verdict.TenantScope, "error", err)
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.SetCacheEntries(o.deps.Cache.Size())
	}

	o.touchLastUsed(ctx, verdict, proxyID)

	payload, err := decoratePayload(raw, proxyID, false, 0)
	if err != nil {
		o.deps.Logger.Errorw("Failed to decode upstream completion",
			"proxy_id", proxyID, "error", err)
		response := internalErrorResponse(proxyID, model, o.deps.Clock.Now())
		o.finish(proxyID, response, verdict, model, temperature, clientIP, userAgent, start, openai.Usage{}, nil)
		return response
	}

	response := &Response{
		Success:    true,
		StatusCode: http.StatusOK,
		Kind:       KindOK,
		Payload:    payload,
		ProxyID:    proxyID,
	}
	o.finish(proxyID, response, verdict, model, temperature, clientIP, userAgent, start, completion.Usage, raw)
	return response
}

// finish emits the analytics row, metrics and the single terminal log line
// for a request. Cache hits carry the cached usage block but zero cost since
// no provider tokens were spent.
func (o *Orchestrator) finish(proxyID string, response *Response, verdict *policy.Result, model string, temperature float32, clientIP string, userAgent string, start time.Time, usage openai.Usage, providerPayload []byte) {
	now := o.deps.Clock.Now()
	elapsed := now.Sub(start)

	record := &state.ProxyRecord{
		ProxyID:          proxyID,
		TenantScope:      verdict.TenantScope,
		Model:            model,
		Temperature:      temperature,
		CacheHit:         response.FromCache,
		Success:          response.Success,
		StatusCode:       response.StatusCode,
		ErrorCode:        response.ErrorCode,
		InputTokens:      usage.PromptTokens,
		OutputTokens:     usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		ProcessingTimeMs: elapsed.Milliseconds(),
		ClientIP:         clientIP,
		UserAgent:        userAgent,
		CreatedAt:        now,
	}
	if verdict.Key != nil {
		record.APIKeyID = verdict.Key.ID
	}
	if response.Success && !response.FromCache {
		record.CostInput, record.CostOutput = cost.Split(model, usage)
	}

	if o.deps.Recorder != nil {
		o.deps.Recorder.Record(record, providerPayload)
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.ObserveRequest(string(response.Kind), response.FromCache, elapsed)
	}

	fields := []any{
		"proxy_id", proxyID,
		"kind", string(response.Kind),
		"status", response.StatusCode,
		"model", model,
		"cache_hit", response.FromCache,
		"duration_ms", elapsed.Milliseconds(),
	}
	if response.Success {
		o.deps.Logger.Infow("Proxy request completed", fields...)
	} else {
		fields = append(fields, "error_code", response.ErrorCode, "message", response.Message)
		o.deps.Logger.Warnw("Proxy request failed", fields...)
	}
}

// touchLastUsed stamps the key's last-used time. Best effort; resolver
// failures are logged and swallowed.
func (o *Orchestrator) touchLastUsed(ctx context.Context, verdict *policy.Result, proxyID string) {
	if o.deps.Keys == nil || verdict.Key == nil {
		return
	}
	if err := o.deps.Keys.TouchLastUsed(ctx, verdict.Key.ID, o.deps.Clock.Now()); err != nil {
		o.deps.Logger.Warnw("Failed to stamp key last-used",
			"proxy_id", proxyID, "key_id", verdict.Key.ID, "error", err)
	}
}

// keySuffix returns the trailing four characters of the key, the only part of
// it that ever reaches a log line.
func keySuffix(apiKey string) string {
	if len(apiKey) <= 4 {
		return apiKey
	}
	return apiKey[len(apiKey)-4:]
}
