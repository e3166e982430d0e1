// Package gateway is the HTTP edge of the proxy: routing, request admission
// (size cap, rate floor, JSON validation), key extraction and the admin
// surface over cache and tenant settings.
package gateway

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/akuchlous/tokengard-mvp-sub000/cache"
	"github.com/akuchlous/tokengard-mvp-sub000/monitoring"
	"github.com/akuchlous/tokengard-mvp-sub000/policy"
	"github.com/akuchlous/tokengard-mvp-sub000/proxy"
	"github.com/akuchlous/tokengard-mvp-sub000/rate"
	"github.com/akuchlous/tokengard-mvp-sub000/state"
	"github.com/akuchlous/tokengard-mvp-sub000/tenancy"
)

// MaxBodyBytes caps proxy request bodies. Oversized requests are rejected
// before any parsing happens.
const MaxBodyBytes = 10 * 1024

// Deps are the gateway's collaborators. Metrics may be nil, in which case the
// exposition route is not registered.
type Deps struct {
	Orchestrator *proxy.Orchestrator
	Resolver     policy.Resolver
	Keywords     *policy.KeywordStore
	Settings     *tenancy.Settings
	Cache        *cache.SemanticCache
	Records      state.Manager
	Limiter      *rate.Limiter
	Metrics      *monitoring.Metrics
	Logger       *zap.SugaredLogger

	// ProductionMode disables destructive admin routes; AdminToken is the
	// confirmation value cache-clear requests must present.
	ProductionMode bool
	AdminToken     string
}

// Gateway owns the router and the request admission pipeline.
type Gateway struct {
	deps Deps
}

func New(deps Deps) *Gateway {
	return &Gateway{deps: deps}
}

// Handler builds the router. Proxy routes sit behind the per-IP rate floor;
// admin routes do not.
func (g *Gateway) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/proxy", g.rateLimited(g.handleProxy)).Methods(http.MethodPost)
	router.HandleFunc("/v1/chat/completions", g.rateLimited(g.handleProxy)).Methods(http.MethodPost)

	router.HandleFunc("/logs/{proxy_id}", g.handleLogs).Methods(http.MethodGet)

	router.HandleFunc("/keywords/{api_key}", g.handleGetKeywords).Methods(http.MethodGet)
	router.HandleFunc("/keywords/{api_key}", g.handleSetKeywords).Methods(http.MethodPost)

	router.HandleFunc("/ttl/{api_key}", g.handleGetTTL).Methods(http.MethodGet)
	router.HandleFunc("/ttl/{api_key}", g.handleSetTTL).Methods(http.MethodPost)
	router.HandleFunc("/similarity/{api_key}", g.handleGetSimilarity).Methods(http.MethodGet)
	router.HandleFunc("/similarity/{api_key}", g.handleSetSimilarity).Methods(http.MethodPost)

	router.HandleFunc("/cache/stats", g.handleCacheStats).Methods(http.MethodGet)
	router.HandleFunc("/cache/invalidate/{api_key}", g.handleCacheInvalidate).Methods(http.MethodPost)
	router.HandleFunc("/cache/clear", g.handleCacheClear).Methods(http.MethodPost)

	router.HandleFunc("/health", g.handleHealth).Methods(http.MethodGet)
	if g.deps.Metrics != nil {
		router.Handle("/metrics", g.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	return router
}

func (g *Gateway) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !g.deps.Limiter.Allow(ip) {
			g.deps.Logger.Warnw("Rate limit exceeded", "client_ip", ip)
			writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED",
				"too many requests from this address, retry later")
			return
		}
		next(w, r)
	}
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
