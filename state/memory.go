package state

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Rough per-record map and bookkeeping overhead in bytes.
const recordOverhead = 256

type storedRecord struct {
	record   *ProxyRecord
	provider []byte
	storedAt time.Time
	size     int64
}

// MemoryManager keeps records in process memory with a byte budget and a
// retention window. Oldest records go first when the budget is exceeded.
type MemoryManager struct {
	mu        sync.RWMutex
	records   map[string]*storedRecord
	order     []string
	maxBytes  int64
	usage     int64
	retention time.Duration

	// Clock interface for time-related operations. Must use this to avoid
	// flakiness in tests.
	clock clock.Clock
}

// NewMemoryManager returns the manager and a stop function that halts the
// background retention sweep.
func NewMemoryManager(maxBytes int64, retention time.Duration) (*MemoryManager, func()) {
	return newMemoryManagerWithClock(maxBytes, retention, clock.New())
}

func newMemoryManagerWithClock(maxBytes int64, retention time.Duration, clk clock.Clock) (*MemoryManager, func()) {
	m := &MemoryManager{
		records:   make(map[string]*storedRecord),
		maxBytes:  maxBytes,
		retention: retention,
		clock:     clk,
	}
	stop := m.startCleanup(5 * time.Minute)
	return m, stop
}

func (m *MemoryManager) SaveProxyRecord(ctx context.Context, record *ProxyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.ensureLocked(record.ProxyID)
	m.usage -= stored.size
	stored.record = record
	stored.size = recordSize(stored)
	m.usage += stored.size
	m.evictLocked()
	return nil
}

func (m *MemoryManager) LoadProxyRecord(ctx context.Context, proxyID string) (*ProxyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.records[proxyID]
	if !ok || stored.record == nil || m.expired(stored) {
		return nil, nil
	}
	copied := *stored.record
	return &copied, nil
}

func (m *MemoryManager) SaveProviderRecord(ctx context.Context, proxyID string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.ensureLocked(proxyID)
	m.usage -= stored.size
	stored.provider = payload
	stored.size = recordSize(stored)
	m.usage += stored.size
	m.evictLocked()
	return nil
}

func (m *MemoryManager) LoadProviderRecord(ctx context.Context, proxyID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.records[proxyID]
	if !ok || stored.provider == nil || m.expired(stored) {
		return nil, nil
	}
	payload := make([]byte, len(stored.provider))
	copy(payload, stored.provider)
	return payload, nil
}

func (m *MemoryManager) ensureLocked(proxyID string) *storedRecord {
	if stored, ok := m.records[proxyID]; ok {
		return stored
	}
	stored := &storedRecord{storedAt: m.clock.Now()}
	m.records[proxyID] = stored
	m.order = append(m.order, proxyID)
	return stored
}

func (m *MemoryManager) expired(stored *storedRecord) bool {
	return m.retention > 0 && m.clock.Now().Sub(stored.storedAt) > m.retention
}

func (m *MemoryManager) evictLocked() {
	if m.maxBytes <= 0 {
		return
	}
	for m.usage > m.maxBytes && len(m.order) > 0 {
		oldest := m.order[0]
		m.order = m.order[1:]
		if stored, ok := m.records[oldest]; ok {
			m.usage -= stored.size
			delete(m.records, oldest)
		}
	}
}

func (m *MemoryManager) startCleanup(interval time.Duration) func() {
	ticker := m.clock.Ticker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				m.removeExpired()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (m *MemoryManager) removeExpired() {
	if m.retention <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.clock.Now().Add(-m.retention)
	kept := m.order[:0]
	for _, proxyID := range m.order {
		stored, ok := m.records[proxyID]
		if !ok {
			continue
		}
		if stored.storedAt.Before(cutoff) {
			m.usage -= stored.size
			delete(m.records, proxyID)
			continue
		}
		kept = append(kept, proxyID)
	}
	m.order = kept
}

func recordSize(stored *storedRecord) int64 {
	size := int64(recordOverhead + len(stored.provider))
	if stored.record != nil {
		size += int64(len(stored.record.ProxyID) + len(stored.record.TenantScope) +
			len(stored.record.APIKeyID) + len(stored.record.Model) +
			len(stored.record.ErrorCode) + len(stored.record.ClientIP) +
			len(stored.record.UserAgent))
	}
	return size
}
