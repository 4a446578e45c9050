package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	AllowedOrigins string
	ServiceToken   string

	DatabaseURL string

	CatalogPath        string
	RecentHistoryLimit int
	Location           *time.Location
	RollupHour         uint
	RollupMinute       uint

	LogLevel  string
	LogFormat string

	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2Bucket          string
	CDNBaseURL        string
	IconURLTTL        time.Duration
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "5200"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		ServiceToken:   os.Getenv("GATEWAY_SERVICE_TOKEN"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		CatalogPath: os.Getenv("CATALOG_PATH"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		R2AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
		R2Bucket:          os.Getenv("R2_BUCKET_NAME"),
		CDNBaseURL:        os.Getenv("CDN_BASE_URL"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL environment variable not set")
	}
	if cfg.ServiceToken == "" {
		return nil, errors.New("GATEWAY_SERVICE_TOKEN environment variable not set")
	}

	var err error
	cfg.RecentHistoryLimit, err = strconv.Atoi(getEnv("RECENT_HISTORY_LIMIT", "10"))
	if err != nil || cfg.RecentHistoryLimit <= 0 {
		return nil, fmt.Errorf("invalid RECENT_HISTORY_LIMIT %q", os.Getenv("RECENT_HISTORY_LIMIT"))
	}

	cfg.Location, err = time.LoadLocation(getEnv("TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	cfg.RollupHour, cfg.RollupMinute, err = parseClock(getEnv("STREAK_ROLLUP_AT", "00:05"))
	if err != nil {
		return nil, fmt.Errorf("invalid STREAK_ROLLUP_AT: %w", err)
	}

	cfg.IconURLTTL, err = time.ParseDuration(getEnv("ICON_URL_TTL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid ICON_URL_TTL: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// parseClock parses "HH:MM" (24h).
func parseClock(s string) (uint, uint, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil || h > 23 {
		return 0, 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil || m > 59 {
		return 0, 0, fmt.Errorf("bad minute in %q", s)
	}
	return uint(h), uint(m), nil
}
