// Package state persists per-request analytics and log records. Backends are
// interchangeable: an in-process store for single-node deployments and a
// Valkey store when records must survive the process.
package state

import (
	"context"
	"time"
)

// ProxyRecord is the append-only analytics row emitted for every terminal
// request state. Keys are referenced by opaque identifier only.
type ProxyRecord struct {
	ProxyID          string    `json:"proxy_id"`
	TenantScope      string    `json:"tenant_scope"`
	APIKeyID         string    `json:"api_key_id"`
	Model            string    `json:"model"`
	Temperature      float32   `json:"temperature"`
	CacheHit         bool      `json:"cache_hit"`
	Success          bool      `json:"success"`
	StatusCode       int       `json:"status_code"`
	ErrorCode        string    `json:"error_code,omitempty"`
	InputTokens      int32     `json:"input_tokens"`
	OutputTokens     int32     `json:"output_tokens"`
	TotalTokens      int32     `json:"total_tokens"`
	CostInput        float64   `json:"cost_input"`
	CostOutput       float64   `json:"cost_output"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	ClientIP         string    `json:"client_ip"`
	UserAgent        string    `json:"user_agent"`
	CreatedAt        time.Time `json:"created_at"`
}

// Manager stores and retrieves proxy records and the upstream's full
// normalized reply keyed by proxy id. Load methods return (nil, nil) for
// unknown ids.
type Manager interface {
	SaveProxyRecord(ctx context.Context, record *ProxyRecord) error
	LoadProxyRecord(ctx context.Context, proxyID string) (*ProxyRecord, error)
	SaveProviderRecord(ctx context.Context, proxyID string, payload []byte) error
	LoadProviderRecord(ctx context.Context, proxyID string) ([]byte, error)
}
