package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string

	// VaultKey is the decoded 32-byte AES key used for token encryption at rest.
	VaultKey []byte

	GoogleClientID     string
	GoogleClientSecret string

	IMAPServerAddr string

	AIProvider   string
	GeminiAPIKey string
	OpenAIAPIKey string

	GoogleProjectID   string
	ChangeFeedTopic   string
	GoogleCredentials string
	BlobBucket        string

	FetchInterval   time.Duration
	ForceCheckpoint bool
	AuditTTL        time.Duration
	AuditSweepEvery time.Duration

	LogFormat string
	LogLevel  string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	fetchInterval := time.Hour
	if v := os.Getenv("FETCH_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			fetchInterval = parsed
		}
	}

	auditTTL := 7 * 24 * time.Hour
	if v := os.Getenv("AUDIT_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			auditTTL = time.Duration(secs) * time.Second
		}
	}

	key, err := base64.StdEncoding.DecodeString(os.Getenv("VAULT_KEY"))
	if err != nil {
		return nil, fmt.Errorf("VAULT_KEY is not valid base64: %w", err)
	}

	cfg := &Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		VaultKey:           key,
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		IMAPServerAddr:     os.Getenv("IMAP_SERVER_ADDR"),
		AIProvider:         getEnv("AI_PROVIDER", "auto"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		GoogleProjectID:    os.Getenv("GOOGLE_PROJECT_ID"),
		ChangeFeedTopic:    getEnv("CHANGE_FEED_TOPIC", "family-item-changes"),
		GoogleCredentials:  os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		BlobBucket:         os.Getenv("BLOB_BUCKET"),
		FetchInterval:      fetchInterval,
		ForceCheckpoint:    os.Getenv("FORCE_CHECKPOINT") == "true",
		AuditTTL:           auditTTL,
		AuditSweepEvery:    time.Hour,
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate rejects configurations the worker cannot run with. A worker with a
// bad vault key or no AI credentials must fail at startup, not run degraded.
func (c *Config) validate() error {
	if len(c.VaultKey) != 32 {
		return fmt.Errorf("VAULT_KEY must decode to exactly 32 bytes, got %d", len(c.VaultKey))
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.GeminiAPIKey == "" && c.OpenAIAPIKey == "" {
		return fmt.Errorf("at least one of GEMINI_API_KEY or OPENAI_API_KEY is required")
	}
	if c.BlobBucket == "" {
		return fmt.Errorf("BLOB_BUCKET is required")
	}
	if c.GoogleProjectID == "" {
		return fmt.Errorf("GOOGLE_PROJECT_ID is required")
	}
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be configured together")
	}
	if c.GoogleClientID == "" && c.IMAPServerAddr == "" {
		return fmt.Errorf("no mail provider configured: set GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET or IMAP_SERVER_ADDR")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
