// Package tenancy derives tenant cache partitions and holds per-tenant
// proxy settings.
package tenancy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultTTL is the cache lifetime applied to tenants that never
	// configured one.
	DefaultTTL = 30 * 86400 * time.Second

	// DefaultSimilarityThreshold is the cosine score a cache candidate must
	// reach to count as a semantic hit.
	DefaultSimilarityThreshold = 0.89
)

// Scope derives the opaque cache partition key for a tenant: the first
// 16 hex characters of SHA-256(tenant_id). The core never holds the raw
// tenant identity beyond this point.
func Scope(tenantID string) string {
	sum := sha256.Sum256([]byte(tenantID))
	return hex.EncodeToString(sum[:])[:16]
}

// TenantSettings are the per-tenant knobs read on every cache operation.
type TenantSettings struct {
	TTL                 time.Duration `json:"ttl_seconds"`
	SimilarityThreshold float64       `json:"similarity_threshold"`
}

// Settings is a process-wide, read-mostly store of TenantSettings keyed by
// tenant scope. Entries live for the process lifetime.
type Settings struct {
	mu       sync.RWMutex
	byTenant map[string]TenantSettings
	defaults TenantSettings
}

func NewSettings() *Settings {
	return &Settings{
		byTenant: make(map[string]TenantSettings),
		defaults: TenantSettings{
			TTL:                 DefaultTTL,
			SimilarityThreshold: DefaultSimilarityThreshold,
		},
	}
}

// Get returns the tenant's settings, falling back to defaults for tenants
// that never configured anything.
func (s *Settings) Get(tenantScope string) TenantSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if settings, ok := s.byTenant[tenantScope]; ok {
		return settings
	}
	return s.defaults
}

// SimilarityThreshold satisfies the cache's threshold provider seam.
func (s *Settings) SimilarityThreshold(tenantScope string) float64 {
	return s.Get(tenantScope).SimilarityThreshold
}

func (s *Settings) SetTTL(tenantScope string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %v", ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.currentLocked(tenantScope)
	settings.TTL = ttl
	s.byTenant[tenantScope] = settings
	return nil
}

func (s *Settings) SetSimilarityThreshold(tenantScope string, threshold float64) error {
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("similarity threshold must be within [0, 1], got %v", threshold)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.currentLocked(tenantScope)
	settings.SimilarityThreshold = threshold
	s.byTenant[tenantScope] = settings
	return nil
}

func (s *Settings) currentLocked(tenantScope string) TenantSettings {
	if settings, ok := s.byTenant[tenantScope]; ok {
		return settings
	}
	return s.defaults
}
