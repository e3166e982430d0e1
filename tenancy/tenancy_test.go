package tenancy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope(t *testing.T) {
	t.Run("is stable and sixteen hex characters", func(t *testing.T) {
		scope := Scope("tenant-1")
		assert.Len(t, scope, 16)
		assert.Equal(t, scope, Scope("tenant-1"))
		assert.Regexp(t, "^[0-9a-f]{16}$", scope)
	})

	t.Run("different tenants get different scopes", func(t *testing.T) {
		assert.NotEqual(t, Scope("tenant-1"), Scope("tenant-2"))
	})
}

func TestSettings(t *testing.T) {
	t.Run("defaults apply to unknown tenants", func(t *testing.T) {
		settings := NewSettings()
		got := settings.Get("unknown")
		assert.Equal(t, DefaultTTL, got.TTL)
		assert.Equal(t, DefaultSimilarityThreshold, got.SimilarityThreshold)
	})

	t.Run("set TTL keeps the threshold", func(t *testing.T) {
		settings := NewSettings()
		require.NoError(t, settings.SetTTL("scope-1", time.Hour))

		got := settings.Get("scope-1")
		assert.Equal(t, time.Hour, got.TTL)
		assert.Equal(t, DefaultSimilarityThreshold, got.SimilarityThreshold)
	})

	t.Run("set threshold keeps the TTL", func(t *testing.T) {
		settings := NewSettings()
		require.NoError(t, settings.SetTTL("scope-1", time.Hour))
		require.NoError(t, settings.SetSimilarityThreshold("scope-1", 0.95))

		got := settings.Get("scope-1")
		assert.Equal(t, time.Hour, got.TTL)
		assert.Equal(t, 0.95, got.SimilarityThreshold)
	})

	t.Run("rejects non-positive TTL", func(t *testing.T) {
		settings := NewSettings()
		assert.Error(t, settings.SetTTL("scope-1", 0))
		assert.Error(t, settings.SetTTL("scope-1", -time.Second))
	})

	t.Run("rejects thresholds outside the unit interval", func(t *testing.T) {
		settings := NewSettings()
		assert.Error(t, settings.SetSimilarityThreshold("scope-1", -0.1))
		assert.Error(t, settings.SetSimilarityThreshold("scope-1", 1.1))
		assert.NoError(t, settings.SetSimilarityThreshold("scope-1", 0))
		assert.NoError(t, settings.SetSimilarityThreshold("scope-1", 1))
	})

	t.Run("tenants are independent", func(t *testing.T) {
		settings := NewSettings()
		require.NoError(t, settings.SetTTL("scope-1", time.Hour))
		assert.Equal(t, DefaultTTL, settings.Get("scope-2").TTL)
	})

	t.Run("threshold provider seam", func(t *testing.T) {
		settings := NewSettings()
		require.NoError(t, settings.SetSimilarityThreshold("scope-1", 0.5))
		assert.Equal(t, 0.5, settings.SimilarityThreshold("scope-1"))
		assert.Equal(t, DefaultSimilarityThreshold, settings.SimilarityThreshold("scope-2"))
	})
}
