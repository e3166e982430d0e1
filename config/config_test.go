package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLoadConfig(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), zaptest.NewLogger(t).Sugar())
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.False(t, cfg.ProductionMode)
		assert.Equal(t, "https://api.openai.com/v1", cfg.UpstreamBaseURL)
		assert.Equal(t, 1000, cfg.CacheMaxEntries)
		assert.Equal(t, 100, cfg.RateLimitPerMinute)
	})

	t.Run("yaml overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
port: 9090
production_mode: true
cache_max_entries: 50
upstream_base_url: http://localhost:1234/v1
api_keys:
  - key: tk-seeded-key-001
    tenant_id: tenant-1
`), 0o644))

		cfg, err := LoadConfig(path, zaptest.NewLogger(t).Sugar())
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Port)
		assert.True(t, cfg.ProductionMode)
		assert.Equal(t, 50, cfg.CacheMaxEntries)
		assert.Equal(t, "http://localhost:1234/v1", cfg.UpstreamBaseURL)
		require.Len(t, cfg.ApiKeys, 1)
		assert.Equal(t, "tk-seeded-key-001", cfg.ApiKeys[0].Key)
		assert.Equal(t, "tenant-1", cfg.ApiKeys[0].TenantId)
	})

	t.Run("environment overrides yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("port: 9090\n"), 0o644))

		t.Setenv("PORT", "7070")
		t.Setenv("OPENAI_API_KEY", "sk-from-env")

		cfg, err := LoadConfig(path, zaptest.NewLogger(t).Sugar())
		require.NoError(t, err)

		assert.Equal(t, 7070, cfg.Port)
		assert.Equal(t, "sk-from-env", cfg.UpstreamApiKey)
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("port: [not a port\n"), 0o644))

		_, err := LoadConfig(path, zaptest.NewLogger(t).Sugar())
		assert.Error(t, err)
	})
}
