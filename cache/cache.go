// Package cache implements the per-tenant semantic response cache: an entry
// arena keyed by fingerprint plus a tenant index scanned by cosine similarity.
package cache

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// DefaultMaxSize bounds the number of live entries unless configured
// otherwise.
const DefaultMaxSize = 1000

// Entry is one cached completion. CreatedAt is immutable after insert;
// AccessCount only ever grows.
type Entry struct {
	Key          string        `json:"key"`
	TenantScope  string        `json:"tenant_scope"`
	PromptText   string        `json:"prompt_text"`
	Embedding    []float32     `json:"embedding"`
	Response     []byte        `json:"response"`
	CreatedAt    time.Time     `json:"created_at"`
	TTL          time.Duration `json:"ttl"`
	AccessCount  int64         `json:"access_count"`
	LastAccessed time.Time     `json:"last_accessed"`
}

// LookupResult reports the outcome of a semantic scan. Similarity and
// CandidateCount are populated even on a miss for observability.
type LookupResult struct {
	Found          bool
	Entry          *Entry
	Similarity     float64
	CandidateCount int
	Duration       time.Duration
}

// ThresholdProvider supplies the per-tenant similarity threshold, read on
// every lookup.
type ThresholdProvider interface {
	SimilarityThreshold(tenantScope string) float64
}

// Stats are non-mutating observability counters.
type Stats struct {
	Size        int                     `json:"size"`
	Hits        int64                   `json:"hits"`
	Misses      int64                   `json:"misses"`
	Stores      int64                   `json:"stores"`
	Evictions   int64                   `json:"evictions"`
	Expirations int64                   `json:"expirations"`
	HitRate     float64                 `json:"hit_rate"`
	Tenants     map[string]*TenantStats `json:"tenants,omitempty"`
}

// TenantStats are the per-tenant slice of Stats.
type TenantStats struct {
	Entries int     `json:"entries"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// SemanticCache owns the entry arena and the tenant index. Reads take the
// shared lock; writes, access-stat updates and eviction take the exclusive
// lock. Entry map and index are always mutated together under the same
// critical section.
type SemanticCache struct {
	mu          sync.RWMutex
	entries     map[string]*Entry
	tenantIndex map[string][]string
	maxSize     int
	settings    ThresholdProvider
	clock       clock.Clock
	logger      *zap.SugaredLogger

	hits        int64
	misses      int64
	stores      int64
	evictions   int64
	expirations int64
	tenantHits  map[string]int64
	tenantMiss  map[string]int64
}

func NewSemanticCache(maxSize int, settings ThresholdProvider, logger *zap.SugaredLogger) *SemanticCache {
	return newSemanticCacheWithClock(maxSize, settings, logger, clock.New())
}

func newSemanticCacheWithClock(maxSize int, settings ThresholdProvider, logger *zap.SugaredLogger, clk clock.Clock) *SemanticCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &SemanticCache{
		entries:     make(map[string]*Entry),
		tenantIndex: make(map[string][]string),
		maxSize:     maxSize,
		settings:    settings,
		clock:       clk,
		logger:      logger,
		tenantHits:  make(map[string]int64),
		tenantMiss:  make(map[string]int64),
	}
}

// Put inserts or replaces the entry for fingerprint. Replacing keeps
// last-writer-wins semantics; the replacement is a fresh entry with a fresh
// CreatedAt. When the cache is full and the key is new, the globally
// least-recently-accessed entry is evicted after an opportunistic sweep of
// expired entries.
func (c *SemanticCache) Put(tenantScope, fingerprint, promptText string, embedding []float32, response []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %v", ttl)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("embedding must not be empty")
	}

	now := c.clock.Now()
	entry := &Entry{
		Key:          fingerprint,
		TenantScope:  tenantScope,
		PromptText:   promptText,
		Embedding:    embedding,
		Response:     response,
		CreatedAt:    now,
		TTL:          ttl,
		LastAccessed: now,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, exists := c.entries[fingerprint]; exists {
		// A replace may move the key to another tenant; reindex so the new
		// owner can find it and the old index holds no dangling key.
		if existing.TenantScope != tenantScope {
			c.removeLocked(fingerprint, existing.TenantScope)
			c.tenantIndex[tenantScope] = append(c.tenantIndex[tenantScope], fingerprint)
		}
	} else {
		if len(c.entries) >= c.maxSize {
			c.sweepExpiredLocked(now)
		}
		for len(c.entries) >= c.maxSize {
			c.evictLocked()
		}
		c.tenantIndex[tenantScope] = append(c.tenantIndex[tenantScope], fingerprint)
	}
	c.entries[fingerprint] = entry
	c.stores++
	return nil
}

// SemanticLookup scans the tenant's index for the best cosine match against
// query. The best score and candidate count are reported even on a miss.
// Entries found expired during the scan are purged afterwards.
func (c *SemanticCache) SemanticLookup(tenantScope string, query []float32) LookupResult {
	start := c.clock.Now()

	threshold := tenancyDefaultThreshold
	if c.settings != nil {
		threshold = c.settings.SimilarityThreshold(tenantScope)
	}

	c.mu.RLock()
	now := c.clock.Now()
	var best *Entry
	bestScore := math.Inf(-1)
	candidates := 0
	var stale []string

	for _, key := range c.tenantIndex[tenantScope] {
		entry, ok := c.entries[key]
		if !ok || entry.TenantScope != tenantScope {
			stale = append(stale, key)
			continue
		}
		if entry.Expired(now) {
			stale = append(stale, key)
			continue
		}
		candidates++
		score := CosineSimilarity(query, entry.Embedding)
		if score > bestScore {
			bestScore = score
			best = entry
		}
	}
	c.mu.RUnlock()

	if len(stale) > 0 {
		c.pruneTenant(tenantScope, stale)
	}

	result := LookupResult{
		CandidateCount: candidates,
		Duration:       c.clock.Now().Sub(start),
	}
	if candidates > 0 {
		result.Similarity = bestScore
	}
	if best != nil && bestScore >= threshold {
		result.Found = true
		result.Entry = best
	}

	c.mu.Lock()
	if result.Found {
		c.hits++
		c.tenantHits[tenantScope]++
	} else {
		c.misses++
		c.tenantMiss[tenantScope]++
	}
	c.mu.Unlock()

	return result
}

// Access records a confirmed hit on entry.
func (c *SemanticCache) Access(entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry.AccessCount++
	entry.LastAccessed = c.clock.Now()
}

// InvalidateTenant removes every entry belonging to the tenant and returns
// how many were removed.
func (c *SemanticCache) InvalidateTenant(tenantScope string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.tenantIndex[tenantScope]
	removed := 0
	for _, key := range keys {
		if _, ok := c.entries[key]; ok {
			delete(c.entries, key)
			removed++
		}
	}
	delete(c.tenantIndex, tenantScope)
	return removed
}

// Clear resets the whole cache, counters included.
func (c *SemanticCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Entry)
	c.tenantIndex = make(map[string][]string)
	c.hits, c.misses, c.stores, c.evictions, c.expirations = 0, 0, 0, 0, 0
	c.tenantHits = make(map[string]int64)
	c.tenantMiss = make(map[string]int64)
}

// Size returns the number of live entries.
func (c *SemanticCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the global and per-tenant counters.
func (c *SemanticCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		Size:        len(c.entries),
		Hits:        c.hits,
		Misses:      c.misses,
		Stores:      c.stores,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		Tenants:     make(map[string]*TenantStats),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	for scope := range c.tenantIndex {
		stats.Tenants[scope] = c.tenantStatsLocked(scope)
	}
	for scope := range c.tenantHits {
		if _, ok := stats.Tenants[scope]; !ok {
			stats.Tenants[scope] = c.tenantStatsLocked(scope)
		}
	}
	for scope := range c.tenantMiss {
		if _, ok := stats.Tenants[scope]; !ok {
			stats.Tenants[scope] = c.tenantStatsLocked(scope)
		}
	}
	return stats
}

// TenantStats returns the counters for a single tenant.
func (c *SemanticCache) TenantStats(tenantScope string) TenantStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.tenantStatsLocked(tenantScope)
}

func (c *SemanticCache) tenantStatsLocked(tenantScope string) *TenantStats {
	stats := &TenantStats{
		Entries: len(c.tenantIndex[tenantScope]),
		Hits:    c.tenantHits[tenantScope],
		Misses:  c.tenantMiss[tenantScope],
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Expired reports whether the entry has outlived its TTL at the given time.
func (e *Entry) Expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// pruneTenant removes keys that a scan found dead: missing, mis-scoped or
// expired. Re-verified under the exclusive lock since the shared lock was
// released in between.
func (c *SemanticCache) pruneTenant(tenantScope string, keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	dead := make(map[string]bool, len(keys))
	for _, key := range keys {
		entry, ok := c.entries[key]
		if !ok {
			dead[key] = true
			continue
		}
		if entry.TenantScope != tenantScope || entry.Expired(now) {
			dead[key] = true
			delete(c.entries, key)
			c.expirations++
		}
	}
	c.tenantIndex[tenantScope] = filterKeys(c.tenantIndex[tenantScope], dead)
	if len(c.tenantIndex[tenantScope]) == 0 {
		delete(c.tenantIndex, tenantScope)
	}
}

func (c *SemanticCache) sweepExpiredLocked(now time.Time) {
	for key, entry := range c.entries {
		if entry.Expired(now) {
			c.removeLocked(key, entry.TenantScope)
			c.expirations++
		}
	}
}

// evictLocked drops the globally least-recently-accessed entry. Ties break on
// the older CreatedAt, then on key order for a stable pick.
func (c *SemanticCache) evictLocked() {
	var victim *Entry
	for _, entry := range c.entries {
		if victim == nil || olderAccess(entry, victim) {
			victim = entry
		}
	}
	if victim == nil {
		return
	}
	c.removeLocked(victim.Key, victim.TenantScope)
	c.evictions++
	if c.logger != nil {
		c.logger.Debugw("Evicted cache entry", "key", victim.Key, "tenant_scope", victim.TenantScope)
	}
}

func olderAccess(a, b *Entry) bool {
	if !a.LastAccessed.Equal(b.LastAccessed) {
		return a.LastAccessed.Before(b.LastAccessed)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Key < b.Key
}

func (c *SemanticCache) removeLocked(key, tenantScope string) {
	delete(c.entries, key)
	c.tenantIndex[tenantScope] = filterKeys(c.tenantIndex[tenantScope], map[string]bool{key: true})
	if len(c.tenantIndex[tenantScope]) == 0 {
		delete(c.tenantIndex, tenantScope)
	}
}

func filterKeys(keys []string, dead map[string]bool) []string {
	kept := keys[:0]
	for _, key := range keys {
		if !dead[key] {
			kept = append(kept, key)
		}
	}
	return kept
}

// CosineSimilarity is (a·b)/(‖a‖·‖b‖), or -1 when either vector has zero
// norm or the dimensions differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// tenancyDefaultThreshold mirrors tenancy.DefaultSimilarityThreshold without
// importing the package, which would cycle through the settings seam.
const tenancyDefaultThreshold = 0.89

// Keys returns the tenant's index in stable order. Test helper grade, but
// exported because the admin stats endpoint reports it.
func (c *SemanticCache) Keys(tenantScope string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, len(c.tenantIndex[tenantScope]))
	copy(keys, c.tenantIndex[tenantScope])
	sort.Strings(keys)
	return keys
}
