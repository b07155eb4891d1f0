package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/liamashdown/whaletracker/internal/secrets"
	"github.com/liamashdown/whaletracker/internal/whale"
)

// Config holds all application configuration
type Config struct {
	// Environment
	Environment string
	LogLevel    string

	// Explorer API
	ExplorerBaseURL       string
	ExplorerAPIKey        string
	ChainID               string
	RequestTimeout        time.Duration
	ForceMockData         bool
	UpstreamRecoveryProbe bool

	// Whale tiers
	Thresholds     whale.Thresholds
	ThresholdsFile string

	// Rate limits
	RateLimitPerMinute  int
	RateLimitMinSpacing time.Duration

	// Cache
	CacheTTL  time.Duration
	RedisAddr string

	// Mock data; 0 seeds from the clock
	MockSeed int64

	// Database (optional alert ledger)
	DatabaseDSN         string
	DatabaseMaxConns    int
	DatabaseMaxIdleTime time.Duration

	// Alerts
	AlertMode          string // comma-separated: log, discord, smtp
	AlertPollInterval  time.Duration
	AlertCooldownMins  int
	DiscordWebhookURLs []string
	SMTPHost           string
	SMTPPort           int
	SMTPUser           string
	SMTPPassword       string
	SMTPFrom           string
	SMTPTo             []string

	// HTTP API, health and metrics
	HTTPPort int
}

// Load reads configuration from the environment, an optional .env file and
// an optional thresholds YAML file, then validates it
func Load() (*Config, error) {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	defaults := whale.DefaultThresholds()
	cfg := &Config{
		Environment:           getEnv("ENVIRONMENT", "production"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		ExplorerBaseURL:       strings.TrimRight(getEnv("EXPLORER_BASE_URL", "https://api.chainbase.online/v1"), "/"),
		ExplorerAPIKey:        secrets.GetOptionalSecret("EXPLORER_API_KEY", ""),
		ChainID:               getEnv("CHAIN_ID", "1"),
		RequestTimeout:        time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 10)) * time.Second,
		ForceMockData:         getEnvBool("FORCE_MOCK_DATA", false),
		UpstreamRecoveryProbe: getEnvBool("UPSTREAM_RECOVERY_PROBE", false),
		Thresholds: whale.Thresholds{
			Mega:       getEnvFloat("WHALE_THRESHOLD_MEGA", defaults.Mega),
			Large:      getEnvFloat("WHALE_THRESHOLD_LARGE", defaults.Large),
			Medium:     getEnvFloat("WHALE_THRESHOLD_MEDIUM", defaults.Medium),
			Small:      getEnvFloat("WHALE_THRESHOLD_SMALL", defaults.Small),
			MinWhaleTx: getEnvFloat("MIN_WHALE_TX_USD", defaults.MinWhaleTx),
		},
		ThresholdsFile:      getEnv("WHALE_THRESHOLDS_FILE", ""),
		RateLimitPerMinute:  getEnvInt("RATE_LIMIT_PER_MINUTE", 45),
		RateLimitMinSpacing: time.Duration(getEnvInt("RATE_LIMIT_MIN_SPACING_MS", 1500)) * time.Millisecond,
		CacheTTL:            time.Duration(getEnvInt("CACHE_TTL_SEC", 60)) * time.Second,
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		MockSeed:            int64(getEnvInt("MOCK_SEED", 0)),
		DatabaseDSN:         secrets.GetOptionalSecret("DATABASE_DSN", ""),
		DatabaseMaxConns:    getEnvInt("DATABASE_MAX_CONNS", 10),
		DatabaseMaxIdleTime: time.Duration(getEnvInt("DATABASE_MAX_IDLE_TIME_MINS", 5)) * time.Minute,
		AlertMode:           getEnv("ALERT_MODE", "log"),
		AlertPollInterval:   time.Duration(getEnvInt("ALERT_POLL_INTERVAL_SEC", 120)) * time.Second,
		AlertCooldownMins:   getEnvInt("ALERT_COOLDOWN_MINS", 60),
		DiscordWebhookURLs:  secrets.GetSecretList("DISCORD_WEBHOOK_URLS"),
		SMTPHost:            getEnv("SMTP_HOST", ""),
		SMTPPort:            getEnvInt("SMTP_PORT", 587),
		SMTPUser:            getEnv("SMTP_USER", ""),
		SMTPPassword:        secrets.GetOptionalSecret("SMTP_PASSWORD", ""),
		SMTPFrom:            getEnv("SMTP_FROM", "whaletracker@example.com"),
		SMTPTo:              parseCSV(getEnv("SMTP_TO", "")),
		HTTPPort:            getEnvInt("HTTP_PORT", 8080),
	}

	if cfg.ThresholdsFile != "" {
		if err := cfg.loadThresholdsFile(cfg.ThresholdsFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadThresholdsFile overlays the tiers present in a YAML file onto the env values
func (c *Config) loadThresholdsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read thresholds file: %w", err)
	}
	var u whale.ThresholdsUpdate
	if err := yaml.Unmarshal(data, &u); err != nil {
		return fmt.Errorf("parse thresholds file %s: %w", path, err)
	}
	c.Thresholds = c.Thresholds.Apply(u)
	return nil
}

// MockOnly reports whether the upstream API must never be called
func (c *Config) MockOnly() bool {
	return c.ForceMockData || c.ExplorerAPIKey == ""
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if c.ExplorerBaseURL == "" {
		return fmt.Errorf("EXPLORER_BASE_URL must not be empty")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.RateLimitPerMinute)
	}
	if c.RateLimitMinSpacing < 0 {
		return fmt.Errorf("RATE_LIMIT_MIN_SPACING_MS must not be negative")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SEC must be positive")
	}
	if c.AlertPollInterval <= 0 {
		return fmt.Errorf("ALERT_POLL_INTERVAL_SEC must be positive")
	}

	hasDiscord := false
	hasSMTP := false
	for _, mode := range strings.Split(c.AlertMode, ",") {
		switch strings.TrimSpace(mode) {
		case "log":
		case "discord":
			hasDiscord = true
		case "smtp":
			hasSMTP = true
		default:
			return fmt.Errorf("invalid ALERT_MODE value: %s (valid values: log, discord, smtp)", mode)
		}
	}

	if hasDiscord && len(c.DiscordWebhookURLs) == 0 {
		return fmt.Errorf("DISCORD_WEBHOOK_URLS is required when discord is in ALERT_MODE")
	}
	if hasSMTP && (c.SMTPHost == "" || len(c.SMTPTo) == 0) {
		return fmt.Errorf("SMTP_HOST and SMTP_TO are required when smtp is in ALERT_MODE")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseCSV(s string) []string {
	var result []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
