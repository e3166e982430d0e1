package gateway

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/akuchlous/tokengard-mvp-sub000/policy"
	"github.com/akuchlous/tokengard-mvp-sub000/proxy"
	"github.com/akuchlous/tokengard-mvp-sub000/tenancy"
)

// handleProxy serves both /proxy and the OpenAI-compatible
// /v1/chat/completions alias. The body is always the chat-completion payload
// itself, synthesized on failure, so clients keep a single response parser.
func (g *Gateway) handleProxy(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	var data proxy.RequestData
	if !decodeObject(w, body, &data) {
		return
	}
	if data.APIKey == "" {
		data.APIKey = headerAPIKey(r)
	}

	response := g.deps.Orchestrator.Process(r.Context(), &data, clientIP(r), r.UserAgent())
	writeJSON(w, response.StatusCode, response.Payload)
}

// handleLogs returns the analytics row and stored provider reply for one
// proxy id. Callers only ever see records belonging to their own tenant.
func (g *Gateway) handleLogs(w http.ResponseWriter, r *http.Request) {
	proxyID := mux.Vars(r)["proxy_id"]

	_, scope, ok := g.authorize(w, r, headerAPIKey(r))
	if !ok {
		return
	}

	record, err := g.deps.Records.LoadProxyRecord(r.Context(), proxyID)
	if err != nil {
		g.deps.Logger.Errorw("Failed to load proxy record", "proxy_id", proxyID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load log record")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no log record for this proxy id")
		return
	}
	if record.TenantScope != scope {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "log record belongs to another tenant")
		return
	}

	data := map[string]any{"record": record}
	if provider, err := g.deps.Records.LoadProviderRecord(r.Context(), proxyID); err == nil && provider != nil {
		data["provider_response"] = json.RawMessage(provider)
	}
	writeData(w, http.StatusOK, data)
}

func (g *Gateway) handleGetKeywords(w http.ResponseWriter, r *http.Request) {
	_, scope, ok := g.authorize(w, r, mux.Vars(r)["api_key"])
	if !ok {
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"tenant_scope": scope,
		"keywords":     g.deps.Keywords.List(scope),
	})
}

func (g *Gateway) handleSetKeywords(w http.ResponseWriter, r *http.Request) {
	_, scope, ok := g.authorize(w, r, mux.Vars(r)["api_key"])
	if !ok {
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var request struct {
		Keywords []string `json:"keywords"`
	}
	if !decodeObject(w, body, &request) {
		return
	}
	if request.Keywords == nil {
		writeError(w, http.StatusBadRequest, "INVALID_DATA_TYPE", "keywords is required")
		return
	}

	g.deps.Keywords.Set(scope, request.Keywords)
	g.deps.Logger.Infow("Tenant keywords updated", "tenant_scope", scope, "count", len(request.Keywords))
	writeData(w, http.StatusOK, map[string]any{
		"tenant_scope": scope,
		"keywords":     g.deps.Keywords.List(scope),
	})
}

func (g *Gateway) handleGetTTL(w http.ResponseWriter, r *http.Request) {
	_, scope, ok := g.authorize(w, r, mux.Vars(r)["api_key"])
	if !ok {
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"tenant_scope": scope,
		"ttl_seconds":  int64(g.deps.Settings.Get(scope).TTL / time.Second),
	})
}

func (g *Gateway) handleSetTTL(w http.ResponseWriter, r *http.Request) {
	_, scope, ok := g.authorize(w, r, mux.Vars(r)["api_key"])
	if !ok {
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var request struct {
		TTLSeconds *int64 `json:"ttl_seconds"`
	}
	if !decodeObject(w, body, &request) {
		return
	}
	if request.TTLSeconds == nil {
		writeError(w, http.StatusBadRequest, "INVALID_DATA_TYPE", "ttl_seconds is required")
		return
	}

	if err := g.deps.Settings.SetTTL(scope, time.Duration(*request.TTLSeconds)*time.Second); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_DATA_TYPE", err.Error())
		return
	}
	g.deps.Logger.Infow("Tenant TTL updated", "tenant_scope", scope, "ttl_seconds", *request.TTLSeconds)
	writeData(w, http.StatusOK, map[string]any{
		"tenant_scope": scope,
		"ttl_seconds":  *request.TTLSeconds,
	})
}

func (g *Gateway) handleGetSimilarity(w http.ResponseWriter, r *http.Request) {
	_, scope, ok := g.authorize(w, r, mux.Vars(r)["api_key"])
	if !ok {
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"tenant_scope":         scope,
		"similarity_threshold": g.deps.Settings.Get(scope).SimilarityThreshold,
	})
}

func (g *Gateway) handleSetSimilarity(w http.ResponseWriter, r *http.Request) {
	_, scope, ok := g.authorize(w, r, mux.Vars(r)["api_key"])
	if !ok {
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var request struct {
		SimilarityThreshold *float64 `json:"similarity_threshold"`
	}
	if !decodeObject(w, body, &request) {
		return
	}
	if request.SimilarityThreshold == nil {
		writeError(w, http.StatusBadRequest, "INVALID_DATA_TYPE", "similarity_threshold is required")
		return
	}

	if err := g.deps.Settings.SetSimilarityThreshold(scope, *request.SimilarityThreshold); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_DATA_TYPE", err.Error())
		return
	}
	g.deps.Logger.Infow("Tenant similarity threshold updated",
		"tenant_scope", scope, "similarity_threshold", *request.SimilarityThreshold)
	writeData(w, http.StatusOK, map[string]any{
		"tenant_scope":         scope,
		"similarity_threshold": *request.SimilarityThreshold,
	})
}

func (g *Gateway) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, g.deps.Cache.Stats())
}

func (g *Gateway) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	_, scope, ok := g.authorize(w, r, mux.Vars(r)["api_key"])
	if !ok {
		return
	}

	removed := g.deps.Cache.InvalidateTenant(scope)
	if g.deps.Metrics != nil {
		g.deps.Metrics.SetCacheEntries(g.deps.Cache.Size())
	}
	g.deps.Logger.Infow("Tenant cache invalidated", "tenant_scope", scope, "removed", removed)
	writeData(w, http.StatusOK, map[string]any{
		"tenant_scope": scope,
		"invalidated":  removed,
	})
}

// handleCacheClear wipes the whole cache. Refused outright in production;
// elsewhere the caller must present the configured confirmation token.
func (g *Gateway) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if g.deps.ProductionMode {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "cache clear is disabled in production")
		return
	}
	if g.deps.AdminToken == "" || r.Header.Get("X-Confirm-Cache-Clear") != g.deps.AdminToken {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "confirmation token missing or invalid")
		return
	}

	g.deps.Cache.Clear()
	if g.deps.Metrics != nil {
		g.deps.Metrics.SetCacheEntries(0)
	}
	g.deps.Logger.Warnw("Cache cleared via admin endpoint", "client_ip", clientIP(r))
	writeData(w, http.StatusOK, map[string]any{"cleared": true})
}

// authorize resolves an API key for the admin surface and derives its tenant
// scope. On failure a response has been written and ok is false.
func (g *Gateway) authorize(w http.ResponseWriter, r *http.Request, apiKey string) (*policy.KeyRecord, string, bool) {
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "MISSING_API_KEY", "API key is required")
		return nil, "", false
	}

	record, err := g.deps.Resolver.Resolve(r.Context(), apiKey)
	if err != nil {
		g.deps.Logger.Errorw("Key resolver failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "key lookup failed")
		return nil, "", false
	}
	if record == nil {
		writeError(w, http.StatusUnauthorized, "API_KEY_NOT_FOUND", "API key not found")
		return nil, "", false
	}
	if record.State != policy.KeyStateEnabled {
		writeError(w, http.StatusUnauthorized, "API_KEY_INACTIVE", "API key is inactive")
		return nil, "", false
	}
	if record.TenantStatus != policy.TenantActive {
		writeError(w, http.StatusUnauthorized, "USER_ACCOUNT_INACTIVE", "account is not active")
		return nil, "", false
	}
	return record, tenancy.Scope(record.TenantID), true
}
