package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SecurityConfig represents security configuration
type SecurityConfig struct {
	EnableRateLimit       bool
	RateLimitPerSecond    float64
	RateLimitBurst        int
	EnableCORS            bool
	AllowedOrigins        []string
	EnableSecurityHeaders bool
	MaxRequestSize        int64
	EnableRequestID       bool
}

// AlpacaConfig represents credentials and symbols for the Alpaca news source
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	Symbols   []string
}

// SyncConfig controls the buffer-to-search sync pass
type SyncConfig struct {
	Interval      time.Duration
	BatchSize     int
	MaxRetries    int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
}

// WarmConfig controls the cache warming loop
type WarmConfig struct {
	Interval    time.Duration
	Queries     []string
	SymbolLimit int
}

// EnrichConfig controls the AI enrichment worker
type EnrichConfig struct {
	Enabled        bool
	APIKey         string
	BaseURL        string
	Model          string
	Interval       time.Duration
	BatchSize      int
	RequestTimeout time.Duration
	RatePerSecond  float64
	RateBurst      int
}

type Config struct {
	Port                int
	DataDir             string
	LogLevel            string
	CacheTTL            time.Duration
	CacheEnabled        bool
	PollInterval        time.Duration
	RSSFeeds            map[string]string
	Alpaca              AlpacaConfig
	DuplicateWindow     time.Duration
	MaxContentLength    int
	MaxArticleAge       time.Duration
	MaintenanceInterval time.Duration
	Sync                SyncConfig
	Warm                WarmConfig
	Enrich              EnrichConfig
	EnableSwagger       bool
	Security            SecurityConfig
}

func Load() *Config {
	port := getEnvAsInt("PORT", 8080)
	dataDir := getEnv("DATA_DIR", "./data")
	logLevel := getEnv("LOG_LEVEL", "info")
	cacheTTL := getEnvAsDuration("CACHE_TTL", 5*time.Minute)
	cacheEnabled := getEnvAsBool("CACHE_ENABLED", true)
	pollInterval := getEnvAsDuration("POLL_INTERVAL", 15*time.Minute)
	duplicateWindow := getEnvAsDuration("DUP_WINDOW", 48*time.Hour)
	maxContentLength := getEnvAsInt("MAX_CONTENT_LENGTH", 50000)
	maxArticleAge := getEnvAsDuration("MAX_ARTICLE_AGE", 30*24*time.Hour)
	maintenanceInterval := getEnvAsDuration("MAINTENANCE_INTERVAL", 24*time.Hour)
	enableSwagger := getEnvAsBool("ENABLE_SWAGGER", true)

	// Load RSS feeds from environment variables
	feeds := loadRSSFeedsFromEnv()

	// If no feeds configured via env, use defaults
	if len(feeds) == 0 {
		feeds = getDefaultFeeds()
	}

	return &Config{
		Port:                port,
		DataDir:             dataDir,
		LogLevel:            logLevel,
		CacheTTL:            cacheTTL,
		CacheEnabled:        cacheEnabled,
		PollInterval:        pollInterval,
		RSSFeeds:            feeds,
		Alpaca:              loadAlpacaConfig(),
		DuplicateWindow:     duplicateWindow,
		MaxContentLength:    maxContentLength,
		MaxArticleAge:       maxArticleAge,
		MaintenanceInterval: maintenanceInterval,
		Sync:                loadSyncConfig(),
		Warm:                loadWarmConfig(),
		Enrich:              loadEnrichConfig(),
		EnableSwagger:       enableSwagger,
		Security:            loadSecurityConfig(),
	}
}

// Validate rejects configurations the background loops cannot run with
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.DuplicateWindow <= 0 {
		return fmt.Errorf("duplicate window must be positive, got %v", c.DuplicateWindow)
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %v", c.Sync.Interval)
	}
	if c.Sync.BatchSize < 1 {
		return fmt.Errorf("sync batch size must be at least 1, got %d", c.Sync.BatchSize)
	}
	if c.Sync.MaxRetries < 1 {
		return fmt.Errorf("sync max retries must be at least 1, got %d", c.Sync.MaxRetries)
	}
	if c.Sync.RetryBackoff <= 0 {
		return fmt.Errorf("sync retry backoff must be positive, got %v", c.Sync.RetryBackoff)
	}
	if c.Warm.Interval <= 0 {
		return fmt.Errorf("warm interval must be positive, got %v", c.Warm.Interval)
	}
	if c.EnrichmentEnabled() {
		if c.Enrich.Interval <= 0 {
			return fmt.Errorf("enrich interval must be positive, got %v", c.Enrich.Interval)
		}
		if c.Enrich.BatchSize < 1 {
			return fmt.Errorf("enrich batch size must be at least 1, got %d", c.Enrich.BatchSize)
		}
	}
	return nil
}

// AlpacaEnabled reports whether the Alpaca news source has credentials
func (c *Config) AlpacaEnabled() bool {
	return c.Alpaca.APIKey != "" && c.Alpaca.APISecret != ""
}

// EnrichmentEnabled reports whether the AI enrichment worker can run
func (c *Config) EnrichmentEnabled() bool {
	return c.Enrich.Enabled && c.Enrich.APIKey != ""
}

func loadSecurityConfig() SecurityConfig {
	return SecurityConfig{
		EnableRateLimit:       getEnvAsBool("ENABLE_RATE_LIMIT", true),
		RateLimitPerSecond:    getEnvAsFloat("RATE_LIMIT_PER_SECOND", 10.0),
		RateLimitBurst:        getEnvAsInt("RATE_LIMIT_BURST", 20),
		EnableCORS:            getEnvAsBool("ENABLE_CORS", true),
		AllowedOrigins:        getEnvAsStringSlice("ALLOWED_ORIGINS", []string{"*"}),
		EnableSecurityHeaders: getEnvAsBool("ENABLE_SECURITY_HEADERS", true),
		MaxRequestSize:        getEnvAsInt64("MAX_REQUEST_SIZE", 10<<20), // 10MB
		EnableRequestID:       getEnvAsBool("ENABLE_REQUEST_ID", true),
	}
}

func loadAlpacaConfig() AlpacaConfig {
	return AlpacaConfig{
		APIKey:    getEnv("ALPACA_API_KEY", ""),
		APISecret: getEnv("ALPACA_API_SECRET", ""),
		Symbols:   getEnvAsStringSlice("ALPACA_SYMBOLS", []string{}),
	}
}

func loadSyncConfig() SyncConfig {
	return SyncConfig{
		Interval:      getEnvAsDuration("SYNC_INTERVAL", 5*time.Minute),
		BatchSize:     getEnvAsInt("SYNC_BATCH_SIZE", 50),
		MaxRetries:    getEnvAsInt("SYNC_MAX_RETRIES", 3),
		RetryBackoff:  getEnvAsDuration("SYNC_RETRY_BACKOFF", 500*time.Millisecond),
		RetryMaxDelay: getEnvAsDuration("SYNC_RETRY_MAX_DELAY", 5*time.Second),
	}
}

func loadWarmConfig() WarmConfig {
	return WarmConfig{
		Interval:    getEnvAsDuration("WARM_INTERVAL", 10*time.Minute),
		Queries:     getEnvAsStringSlice("WARM_QUERIES", []string{"earnings", "fed", "inflation"}),
		SymbolLimit: getEnvAsInt("WARM_SYMBOL_LIMIT", 10),
	}
}

func loadEnrichConfig() EnrichConfig {
	return EnrichConfig{
		Enabled:        getEnvAsBool("ENRICH_ENABLED", true),
		APIKey:         getEnv("OPENAI_API_KEY", ""),
		BaseURL:        getEnv("OPENAI_URL", "https://api.openai.com/v1"),
		Model:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		Interval:       getEnvAsDuration("ENRICH_INTERVAL", 2*time.Minute),
		BatchSize:      getEnvAsInt("ENRICH_BATCH_SIZE", 10),
		RequestTimeout: getEnvAsDuration("ENRICH_TIMEOUT", 30*time.Second),
		RatePerSecond:  getEnvAsFloat("ENRICH_RATE", 1.0),
		RateBurst:      getEnvAsInt("ENRICH_RATE_BURST", 1),
	}
}

func loadRSSFeedsFromEnv() map[string]string {
	feeds := make(map[string]string)

	// Look for RSS_FEED_* environment variables
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "RSS_FEED_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) != 2 {
				continue
			}

			// Parse source name from RSS_FEED_<SOURCE_NAME>
			sourceName := strings.TrimPrefix(parts[0], "RSS_FEED_")
			sourceName = strings.ToLower(sourceName)

			url := strings.TrimSpace(parts[1])
			if url == "" {
				continue
			}

			feeds[sourceName] = url
		}
	}

	return feeds
}

func getDefaultFeeds() map[string]string {
	return map[string]string{
		"yahoo-finance": "https://finance.yahoo.com/news/rssindex",
		"cnbc":          "https://www.cnbc.com/id/100003114/device/rss/rss.html",
		"marketwatch":   "https://feeds.content.dowjones.io/public/rss/mw_topstories",
	}
}

func getEnv(key string, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		items := strings.Split(val, ",")
		for i := range items {
			items[i] = strings.TrimSpace(items[i])
		}
		return items
	}
	return defaultVal
}
