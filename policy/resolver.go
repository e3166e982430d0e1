package policy

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Key and tenant states as reported by the external account store.
const (
	KeyStateEnabled  = "enabled"
	KeyStateDisabled = "disabled"

	TenantActive    = "active"
	TenantInactive  = "inactive"
	TenantSuspended = "suspended"
)

// KeyRecord is the resolved view of an API key. The core treats the resolver
// as a pure function over the external store and never owns this data.
type KeyRecord struct {
	ID           string    `json:"id"`
	Key          string    `json:"-"`
	Name         string    `json:"name"`
	State        string    `json:"state"`
	TenantID     string    `json:"tenant_id"`
	TenantStatus string    `json:"tenant_status"`
	LastUsed     time.Time `json:"last_used,omitempty"`
}

// Resolver looks an API key up in the external account store. Unknown keys
// resolve to (nil, nil); errors are store failures.
type Resolver interface {
	Resolve(ctx context.Context, apiKey string) (*KeyRecord, error)
}

// LastUsedRecorder is the optional write-back seam for key usage stamps.
type LastUsedRecorder interface {
	TouchLastUsed(ctx context.Context, keyID string, at time.Time) error
}

// MemoryResolver is an in-process Resolver, used at startup when no external
// account store is wired and throughout the tests.
type MemoryResolver struct {
	mu     sync.RWMutex
	byKey  map[string]*KeyRecord
	nextID int
}

func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{byKey: make(map[string]*KeyRecord)}
}

// Add registers a key record. The record's Key field is the lookup handle.
func (r *MemoryResolver) Add(record *KeyRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.ID == "" {
		r.nextID++
		record.ID = "key-" + strconv.Itoa(r.nextID)
	}
	r.byKey[record.Key] = record
}

func (r *MemoryResolver) Resolve(ctx context.Context, apiKey string) (*KeyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.byKey[apiKey]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (r *MemoryResolver) TouchLastUsed(ctx context.Context, keyID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, record := range r.byKey {
		if record.ID == keyID {
			record.LastUsed = at
			return nil
		}
	}
	return nil
}
