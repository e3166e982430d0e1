package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixedThreshold float64

func (f fixedThreshold) SimilarityThreshold(tenantScope string) float64 {
	return float64(f)
}

func newTestCache(t *testing.T, maxSize int, threshold float64) (*SemanticCache, *clock.Mock) {
	mockClock := clock.NewMock()
	cache := newSemanticCacheWithClock(
		maxSize, fixedThreshold(threshold), zaptest.NewLogger(t).Sugar(), mockClock)
	return cache, mockClock
}

func unitVector(index int) []float32 {
	vector := make([]float32, 8)
	vector[index] = 1
	return vector
}

func TestSemanticCache(t *testing.T) {
	t.Run("Put and exact lookup", func(t *testing.T) {
		cache, _ := newTestCache(t, 10, 0.9)

		err := cache.Put("tenant-a", "fp-1", "hello", unitVector(0), []byte(`{"ok":true}`), time.Hour)
		require.NoError(t, err)

		result := cache.SemanticLookup("tenant-a", unitVector(0))
		require.True(t, result.Found)
		assert.Equal(t, "fp-1", result.Entry.Key)
		assert.InDelta(t, 1.0, result.Similarity, 1e-9)
		assert.Equal(t, 1, result.CandidateCount)
	})

	t.Run("Rejects invalid inserts", func(t *testing.T) {
		cache, _ := newTestCache(t, 10, 0.9)

		assert.Error(t, cache.Put("tenant-a", "fp-1", "hello", unitVector(0), nil, 0))
		assert.Error(t, cache.Put("tenant-a", "fp-1", "hello", nil, nil, time.Hour))
		assert.Equal(t, 0, cache.Size())
	})

	t.Run("Miss below threshold still reports best score", func(t *testing.T) {
		cache, _ := newTestCache(t, 10, 0.99)

		require.NoError(t, cache.Put(
			"tenant-a", "fp-1", "hello", []float32{1, 1, 0, 0, 0, 0, 0, 0}, []byte(`{}`), time.Hour))

		result := cache.SemanticLookup("tenant-a", unitVector(0))
		assert.False(t, result.Found)
		assert.Nil(t, result.Entry)
		assert.Equal(t, 1, result.CandidateCount)
		assert.InDelta(t, 0.7071, result.Similarity, 1e-3)
	})

	t.Run("Tenant isolation", func(t *testing.T) {
		cache, _ := newTestCache(t, 10, 0.5)

		require.NoError(t, cache.Put("tenant-a", "fp-1", "hello", unitVector(0), []byte(`{}`), time.Hour))

		result := cache.SemanticLookup("tenant-b", unitVector(0))
		assert.False(t, result.Found)
		assert.Equal(t, 0, result.CandidateCount)
	})

	t.Run("Entries expire after TTL", func(t *testing.T) {
		cache, mockClock := newTestCache(t, 10, 0.5)

		require.NoError(t, cache.Put("tenant-a", "fp-1", "hello", unitVector(0), []byte(`{}`), time.Hour))

		mockClock.Add(time.Hour)
		result := cache.SemanticLookup("tenant-a", unitVector(0))
		assert.True(t, result.Found, "entry at exactly TTL should still be live")

		mockClock.Add(time.Second)
		result = cache.SemanticLookup("tenant-a", unitVector(0))
		assert.False(t, result.Found)
		assert.Equal(t, 0, cache.Size(), "expired entry should be pruned by the scan")
	})

	t.Run("Replacing a key refreshes the entry", func(t *testing.T) {
		cache, mockClock := newTestCache(t, 10, 0.5)

		require.NoError(t, cache.Put("tenant-a", "fp-1", "hello", unitVector(0), []byte(`v1`), time.Hour))
		mockClock.Add(30 * time.Minute)
		require.NoError(t, cache.Put("tenant-a", "fp-1", "hello", unitVector(0), []byte(`v2`), time.Hour))

		assert.Equal(t, 1, cache.Size())
		result := cache.SemanticLookup("tenant-a", unitVector(0))
		require.True(t, result.Found)
		assert.Equal(t, []byte(`v2`), result.Entry.Response)
		assert.Equal(t, mockClock.Now(), result.Entry.CreatedAt)
	})

	t.Run("Replacing a key under a new tenant reindexes it", func(t *testing.T) {
		cache, _ := newTestCache(t, 10, 0.5)

		require.NoError(t, cache.Put("tenant-a", "fp-1", "hello", unitVector(0), []byte(`a`), time.Hour))
		require.NoError(t, cache.Put("tenant-b", "fp-1", "hello", unitVector(0), []byte(`b`), time.Hour))

		assert.Equal(t, 1, cache.Size())
		assert.False(t, cache.SemanticLookup("tenant-a", unitVector(0)).Found)
		assert.Empty(t, cache.Keys("tenant-a"))

		result := cache.SemanticLookup("tenant-b", unitVector(0))
		require.True(t, result.Found)
		assert.Equal(t, []byte(`b`), result.Entry.Response)
	})

	t.Run("Evicts least recently accessed at capacity", func(t *testing.T) {
		cache, mockClock := newTestCache(t, 3, 0.5)

		for i := 0; i < 3; i++ {
			require.NoError(t, cache.Put(
				"tenant-a", fmt.Sprintf("fp-%d", i), "prompt", unitVector(i), []byte(`{}`), time.Hour))
			mockClock.Add(time.Minute)
		}

		// Touch fp-0 so fp-1 becomes the eviction victim.
		result := cache.SemanticLookup("tenant-a", unitVector(0))
		require.True(t, result.Found)
		cache.Access(result.Entry)
		mockClock.Add(time.Minute)

		require.NoError(t, cache.Put(
			"tenant-a", "fp-3", "prompt", unitVector(3), []byte(`{}`), time.Hour))

		assert.Equal(t, 3, cache.Size())
		assert.False(t, cache.SemanticLookup("tenant-a", unitVector(1)).Found)
		assert.True(t, cache.SemanticLookup("tenant-a", unitVector(0)).Found)
		assert.True(t, cache.SemanticLookup("tenant-a", unitVector(3)).Found)
		assert.Equal(t, int64(1), cache.Stats().Evictions)
	})

	t.Run("Eviction prefers expired entries", func(t *testing.T) {
		cache, mockClock := newTestCache(t, 2, 0.5)

		require.NoError(t, cache.Put("tenant-a", "fp-short", "prompt", unitVector(0), []byte(`{}`), time.Minute))
		require.NoError(t, cache.Put("tenant-a", "fp-long", "prompt", unitVector(1), []byte(`{}`), time.Hour))

		mockClock.Add(2 * time.Minute)
		require.NoError(t, cache.Put("tenant-a", "fp-new", "prompt", unitVector(2), []byte(`{}`), time.Hour))

		assert.True(t, cache.SemanticLookup("tenant-a", unitVector(1)).Found,
			"live entry must survive when an expired one could be swept instead")
		assert.True(t, cache.SemanticLookup("tenant-a", unitVector(2)).Found)
	})

	t.Run("Access bumps counters", func(t *testing.T) {
		cache, mockClock := newTestCache(t, 10, 0.5)

		require.NoError(t, cache.Put("tenant-a", "fp-1", "hello", unitVector(0), []byte(`{}`), time.Hour))
		result := cache.SemanticLookup("tenant-a", unitVector(0))
		require.True(t, result.Found)

		mockClock.Add(time.Minute)
		cache.Access(result.Entry)

		assert.Equal(t, int64(1), result.Entry.AccessCount)
		assert.Equal(t, mockClock.Now(), result.Entry.LastAccessed)
	})

	t.Run("InvalidateTenant removes only that tenant", func(t *testing.T) {
		cache, _ := newTestCache(t, 10, 0.5)

		require.NoError(t, cache.Put("tenant-a", "fp-a1", "p", unitVector(0), []byte(`{}`), time.Hour))
		require.NoError(t, cache.Put("tenant-a", "fp-a2", "p", unitVector(1), []byte(`{}`), time.Hour))
		require.NoError(t, cache.Put("tenant-b", "fp-b1", "p", unitVector(2), []byte(`{}`), time.Hour))

		removed := cache.InvalidateTenant("tenant-a")
		assert.Equal(t, 2, removed)
		assert.Equal(t, 1, cache.Size())
		assert.True(t, cache.SemanticLookup("tenant-b", unitVector(2)).Found)
	})

	t.Run("Clear resets entries and counters", func(t *testing.T) {
		cache, _ := newTestCache(t, 10, 0.5)

		require.NoError(t, cache.Put("tenant-a", "fp-1", "p", unitVector(0), []byte(`{}`), time.Hour))
		cache.SemanticLookup("tenant-a", unitVector(0))
		cache.Clear()

		stats := cache.Stats()
		assert.Equal(t, 0, stats.Size)
		assert.Equal(t, int64(0), stats.Hits)
		assert.Equal(t, int64(0), stats.Stores)
	})

	t.Run("Stats track hits and misses per tenant", func(t *testing.T) {
		cache, _ := newTestCache(t, 10, 0.5)

		require.NoError(t, cache.Put("tenant-a", "fp-1", "p", unitVector(0), []byte(`{}`), time.Hour))
		cache.SemanticLookup("tenant-a", unitVector(0))
		cache.SemanticLookup("tenant-a", unitVector(5))
		cache.SemanticLookup("tenant-b", unitVector(0))

		stats := cache.Stats()
		assert.Equal(t, int64(1), stats.Hits)
		assert.Equal(t, int64(2), stats.Misses)
		assert.InDelta(t, 1.0/3.0, stats.HitRate, 1e-9)

		tenantA := cache.TenantStats("tenant-a")
		assert.Equal(t, 1, tenantA.Entries)
		assert.Equal(t, int64(1), tenantA.Hits)
		assert.Equal(t, int64(1), tenantA.Misses)
	})
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, -1},
		{"dimension mismatch", []float32{1, 0}, []float32{1, 0, 0}, -1},
		{"empty", nil, nil, -1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.InDelta(t, test.expected, CosineSimilarity(test.a, test.b), 1e-9)
		})
	}
}
