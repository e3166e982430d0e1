package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/akuchlous/tokengard-mvp-sub000/utils/env"
)

// Config represents the full application configuration.
type Config struct {
	// Port to listen for incoming requests.
	Port int `yaml:"port"`

	// ProductionMode disables destructive admin endpoints such as cache clear.
	ProductionMode bool `yaml:"production_mode"`

	// AdminToken is the confirmation value destructive admin requests must
	// present. Never set via YAML in production; use the environment.
	AdminToken string `yaml:"admin_token"`

	// Valkey (open-source version of Redis) endpoint to persist analytics
	// records. E.g., localhost:6379. Empty keeps records in process memory.
	ValkeyEndpoint string `yaml:"valkey_endpoint"`

	// Base URL of the OpenAI-compatible upstream provider.
	UpstreamBaseURL string `yaml:"upstream_base_url"`

	// API key to access the upstream provider.
	UpstreamApiKey string `yaml:"upstream_api_key"`

	// Upstream request timeout in seconds.
	UpstreamTimeoutSeconds int `yaml:"upstream_timeout_seconds"`

	// Maximum number of live semantic cache entries.
	CacheMaxEntries int `yaml:"cache_max_entries"`

	// Per-IP request floor per minute on the proxy endpoints.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`

	// How long analytics records are retained, in hours.
	RecordRetentionHours int `yaml:"record_retention_hours"`

	// Byte budget for the in-memory record store.
	RecordMaxBytes int64 `yaml:"record_max_bytes"`

	// Analytics recorder worker count and queue depth.
	RecorderWorkers   int `yaml:"recorder_workers"`
	RecorderQueueSize int `yaml:"recorder_queue_size"`

	// API keys to seed the in-process resolver with at startup. Deployments
	// with an external account store leave this empty.
	ApiKeys []KeyConfig `yaml:"api_keys"`
}

// KeyConfig is one seeded API key. State defaults to enabled and
// TenantStatus to active when omitted.
type KeyConfig struct {
	Key          string `yaml:"key"`
	Name         string `yaml:"name"`
	State        string `yaml:"state"`
	TenantId     string `yaml:"tenant_id"`
	TenantStatus string `yaml:"tenant_status"`
}

// LoadConfig loads the configuration from the specified path. A missing file
// is not an error; defaults plus environment variables apply.
func LoadConfig(path string, logger *zap.SugaredLogger) (*Config, error) {
	config := Config{
		Port:                   8080,
		UpstreamBaseURL:        "https://api.openai.com/v1",
		UpstreamTimeoutSeconds: 60,
		CacheMaxEntries:        1000,
		RateLimitPerMinute:     100,
		RecordRetentionHours:   72,
		RecordMaxBytes:         64 << 20,
		RecorderWorkers:        2,
		RecorderQueueSize:      1024,
	}

	configSource := env.OptionalStringVariable("CONFIG_SOURCE", path)
	configData, err := os.ReadFile(configSource)
	switch {
	case err == nil:
		logger.Infow("Loading local config", "path", configSource)
		// Overrides config with the YAML data.
		if err := yaml.Unmarshal(configData, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %v", err)
		}
	case os.IsNotExist(err):
		logger.Infow("Config file not found, using defaults", "path", configSource)
	default:
		return nil, fmt.Errorf("failed to read config: %v", err)
	}

	// Overrides config with environment variables.
	// Therefore, the values from the environment variables precede the values from the YAML file.
	config.Port = env.OptionalIntVariable("PORT", config.Port)
	config.ProductionMode = env.OptionalBoolVariable("PRODUCTION_MODE", config.ProductionMode)
	config.AdminToken = env.OptionalStringVariable("ADMIN_TOKEN", config.AdminToken)
	config.ValkeyEndpoint = env.OptionalStringVariable("VALKEY_ENDPOINT", config.ValkeyEndpoint)
	config.UpstreamBaseURL = env.OptionalStringVariable("UPSTREAM_BASE_URL", config.UpstreamBaseURL)
	config.UpstreamApiKey = env.OptionalStringVariable("OPENAI_API_KEY", config.UpstreamApiKey)
	config.UpstreamTimeoutSeconds = env.OptionalIntVariable("UPSTREAM_TIMEOUT_SECONDS", config.UpstreamTimeoutSeconds)
	config.CacheMaxEntries = env.OptionalIntVariable("CACHE_MAX_ENTRIES", config.CacheMaxEntries)
	config.RateLimitPerMinute = env.OptionalIntVariable("RATE_LIMIT_PER_MINUTE", config.RateLimitPerMinute)
	config.RecordRetentionHours = env.OptionalIntVariable("RECORD_RETENTION_HOURS", config.RecordRetentionHours)

	return &config, nil
}
