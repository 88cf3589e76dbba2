package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	// Test default configuration
	cfg := Load()

	// Check default values
	if cfg.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Port)
	}

	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("Expected default cache TTL 5m, got %v", cfg.CacheTTL)
	}

	if !cfg.CacheEnabled {
		t.Error("Expected default CacheEnabled to be true")
	}

	if cfg.PollInterval != 15*time.Minute {
		t.Errorf("Expected default poll interval 15m, got %v", cfg.PollInterval)
	}

	if cfg.DuplicateWindow != 48*time.Hour {
		t.Errorf("Expected default duplicate window 48h, got %v", cfg.DuplicateWindow)
	}

	if cfg.MaxContentLength != 50000 {
		t.Errorf("Expected default MaxContentLength 50000, got %d", cfg.MaxContentLength)
	}

	if cfg.MaxArticleAge != 30*24*time.Hour {
		t.Errorf("Expected default article age 30 days, got %v", cfg.MaxArticleAge)
	}

	if cfg.MaintenanceInterval != 24*time.Hour {
		t.Errorf("Expected default maintenance interval 24h, got %v", cfg.MaintenanceInterval)
	}

	if !cfg.EnableSwagger {
		t.Error("Expected default EnableSwagger to be true")
	}

	if cfg.Sync.Interval != 5*time.Minute {
		t.Errorf("Expected default sync interval 5m, got %v", cfg.Sync.Interval)
	}

	if cfg.Sync.BatchSize != 50 {
		t.Errorf("Expected default sync batch size 50, got %d", cfg.Sync.BatchSize)
	}

	if cfg.Sync.MaxRetries != 3 {
		t.Errorf("Expected default sync max retries 3, got %d", cfg.Sync.MaxRetries)
	}

	if cfg.Sync.RetryBackoff != 500*time.Millisecond {
		t.Errorf("Expected default sync retry backoff 500ms, got %v", cfg.Sync.RetryBackoff)
	}

	if cfg.Sync.RetryMaxDelay != 5*time.Second {
		t.Errorf("Expected default sync retry max delay 5s, got %v", cfg.Sync.RetryMaxDelay)
	}

	if cfg.Warm.Interval != 10*time.Minute {
		t.Errorf("Expected default warm interval 10m, got %v", cfg.Warm.Interval)
	}

	if cfg.Warm.SymbolLimit != 10 {
		t.Errorf("Expected default warm symbol limit 10, got %d", cfg.Warm.SymbolLimit)
	}

	if cfg.Enrich.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("Expected default OpenAI URL, got %s", cfg.Enrich.BaseURL)
	}

	if cfg.Enrich.BatchSize != 10 {
		t.Errorf("Expected default enrich batch size 10, got %d", cfg.Enrich.BatchSize)
	}

	// No API key in the environment means enrichment stays off
	if cfg.EnrichmentEnabled() {
		t.Error("Expected enrichment disabled without an API key")
	}

	if cfg.AlpacaEnabled() {
		t.Error("Expected Alpaca source disabled without credentials")
	}

	// Default feeds should be present when nothing is configured
	if len(cfg.RSSFeeds) == 0 {
		t.Error("Expected default RSS feeds to be configured")
	}
}

func TestLoadConfig_EnvironmentVariables(t *testing.T) {
	// Set environment variables
	os.Setenv("PORT", "9090")
	os.Setenv("CACHE_TTL", "30m")
	os.Setenv("CACHE_ENABLED", "false")
	os.Setenv("POLL_INTERVAL", "30m")
	os.Setenv("DUP_WINDOW", "24h")
	os.Setenv("MAX_CONTENT_LENGTH", "5000")
	os.Setenv("MAX_ARTICLE_AGE", "48h")
	os.Setenv("SYNC_INTERVAL", "1m")
	os.Setenv("SYNC_BATCH_SIZE", "25")
	os.Setenv("SYNC_MAX_RETRIES", "5")
	os.Setenv("ENABLE_SWAGGER", "false")

	defer func() {
		os.Unsetenv("PORT")
		os.Unsetenv("CACHE_TTL")
		os.Unsetenv("CACHE_ENABLED")
		os.Unsetenv("POLL_INTERVAL")
		os.Unsetenv("DUP_WINDOW")
		os.Unsetenv("MAX_CONTENT_LENGTH")
		os.Unsetenv("MAX_ARTICLE_AGE")
		os.Unsetenv("SYNC_INTERVAL")
		os.Unsetenv("SYNC_BATCH_SIZE")
		os.Unsetenv("SYNC_MAX_RETRIES")
		os.Unsetenv("ENABLE_SWAGGER")
	}()

	cfg := Load()

	// Check that environment variables are respected
	if cfg.Port != 9090 {
		t.Errorf("Expected port 9090 from env, got %d", cfg.Port)
	}

	if cfg.CacheTTL != 30*time.Minute {
		t.Errorf("Expected cache TTL 30m from env, got %v", cfg.CacheTTL)
	}

	if cfg.CacheEnabled {
		t.Error("Expected CacheEnabled false from env")
	}

	if cfg.PollInterval != 30*time.Minute {
		t.Errorf("Expected poll interval 30m from env, got %v", cfg.PollInterval)
	}

	if cfg.DuplicateWindow != 24*time.Hour {
		t.Errorf("Expected duplicate window 24h from env, got %v", cfg.DuplicateWindow)
	}

	if cfg.MaxContentLength != 5000 {
		t.Errorf("Expected MaxContentLength 5000 from env, got %d", cfg.MaxContentLength)
	}

	if cfg.MaxArticleAge != 48*time.Hour {
		t.Errorf("Expected article age 48h from env, got %v", cfg.MaxArticleAge)
	}

	if cfg.Sync.Interval != time.Minute {
		t.Errorf("Expected sync interval 1m from env, got %v", cfg.Sync.Interval)
	}

	if cfg.Sync.BatchSize != 25 {
		t.Errorf("Expected sync batch size 25 from env, got %d", cfg.Sync.BatchSize)
	}

	if cfg.Sync.MaxRetries != 5 {
		t.Errorf("Expected sync max retries 5 from env, got %d", cfg.Sync.MaxRetries)
	}

	if cfg.EnableSwagger {
		t.Error("Expected EnableSwagger false from env")
	}
}

func TestLoadConfig_RSSFeeds(t *testing.T) {
	// Set RSS feed environment variables
	os.Setenv("RSS_FEED_REUTERS", "https://example.com/reuters.rss")
	os.Setenv("RSS_FEED_BLOOMBERG", "https://example.com/bloomberg.rss")

	defer func() {
		os.Unsetenv("RSS_FEED_REUTERS")
		os.Unsetenv("RSS_FEED_BLOOMBERG")
	}()

	cfg := Load()

	// Check that feeds are loaded and defaults are not used
	if len(cfg.RSSFeeds) != 2 {
		t.Errorf("Expected 2 RSS feeds, got %d", len(cfg.RSSFeeds))
	}

	url, exists := cfg.RSSFeeds["reuters"]
	if !exists {
		t.Error("Expected reuters feed to exist")
	}
	if url != "https://example.com/reuters.rss" {
		t.Errorf("Expected reuters URL, got %s", url)
	}

	url, exists = cfg.RSSFeeds["bloomberg"]
	if !exists {
		t.Error("Expected bloomberg feed to exist")
	}
	if url != "https://example.com/bloomberg.rss" {
		t.Errorf("Expected bloomberg URL, got %s", url)
	}
}

func TestLoadConfig_AlpacaCredentials(t *testing.T) {
	os.Setenv("ALPACA_API_KEY", "test-key")
	os.Setenv("ALPACA_API_SECRET", "test-secret")
	os.Setenv("ALPACA_SYMBOLS", "AAPL, MSFT ,TSLA")

	defer func() {
		os.Unsetenv("ALPACA_API_KEY")
		os.Unsetenv("ALPACA_API_SECRET")
		os.Unsetenv("ALPACA_SYMBOLS")
	}()

	cfg := Load()

	if !cfg.AlpacaEnabled() {
		t.Error("Expected Alpaca source enabled with credentials")
	}

	if len(cfg.Alpaca.Symbols) != 3 {
		t.Fatalf("Expected 3 symbols, got %d", len(cfg.Alpaca.Symbols))
	}

	// Symbols should be trimmed
	if cfg.Alpaca.Symbols[1] != "MSFT" {
		t.Errorf("Expected trimmed symbol MSFT, got '%s'", cfg.Alpaca.Symbols[1])
	}
}

func TestConfigValidate(t *testing.T) {
	// Defaults from Load() must always validate
	if err := Load().Validate(); err != nil {
		t.Fatalf("Expected default config to validate, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Port = 0 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"negative duplicate window", func(c *Config) { c.DuplicateWindow = -time.Hour }},
		{"zero sync interval", func(c *Config) { c.Sync.Interval = 0 }},
		{"zero sync batch size", func(c *Config) { c.Sync.BatchSize = 0 }},
		{"zero sync max retries", func(c *Config) { c.Sync.MaxRetries = 0 }},
		{"zero retry backoff", func(c *Config) { c.Sync.RetryBackoff = 0 }},
		{"zero warm interval", func(c *Config) { c.Warm.Interval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation error for %s", tt.name)
			}
		})
	}
}

func TestConfigValidate_Enrichment(t *testing.T) {
	// Enrichment settings are only checked when the worker can run
	cfg := Load()
	cfg.Enrich.Interval = 0
	cfg.Enrich.BatchSize = 0

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected enrich settings ignored while disabled, got %v", err)
	}

	cfg.Enrich.Enabled = true
	cfg.Enrich.APIKey = "sk-test"

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for zero enrich interval")
	}

	cfg.Enrich.Interval = time.Minute
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for zero enrich batch size")
	}

	cfg.Enrich.BatchSize = 10
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid enrich config to pass, got %v", err)
	}
}

func TestLoadConfig_EnrichmentEnabled(t *testing.T) {
	os.Setenv("OPENAI_API_KEY", "sk-test")

	defer os.Unsetenv("OPENAI_API_KEY")

	cfg := Load()

	if !cfg.EnrichmentEnabled() {
		t.Error("Expected enrichment enabled with an API key")
	}

	// Explicit disable wins over a configured key
	os.Setenv("ENRICH_ENABLED", "false")
	defer os.Unsetenv("ENRICH_ENABLED")

	cfg = Load()
	if cfg.EnrichmentEnabled() {
		t.Error("Expected enrichment disabled when ENRICH_ENABLED=false")
	}
}
