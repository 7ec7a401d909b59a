package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Places provider
	PlacesAPIKey          string
	PlacesEndpoint        string
	PlacesTypes           string
	PlacesTimeout         time.Duration
	PlacesBreakerFailures int
	PlacesBreakerTimeout  time.Duration

	// Events
	NATSURL       string
	EventsSubject string

	// Rate Limit
	RateLimitGeneral int
	RateLimitSearch  int
	SignUpRateLimit  int // 1時間あたりのIPごとのサインアップ回数

	// Notifications
	NotificationRetentionDays int
	CleanupInterval           time.Duration

	// Server
	ServerPort string
	BaseURL    string
	StaticURL  string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// LoadDotEnv は.envファイルを環境変数に読み込む。
// 既に設定済みの環境変数は上書きしない。ファイルが存在しない場合は何もしない。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.PlacesAPIKey = os.Getenv("PLACES_API_KEY")
	if cfg.PlacesAPIKey == "" {
		missing = append(missing, "PLACES_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.PlacesEndpoint = getEnvString("PLACES_ENDPOINT", "https://maps.googleapis.com/maps/api/place/nearbysearch/json")
	cfg.PlacesTypes = getEnvString("PLACES_TYPES", "")
	cfg.PlacesTimeout = getEnvDuration("PLACES_TIMEOUT", 10*time.Second)
	cfg.PlacesBreakerFailures = getEnvInt("PLACES_BREAKER_FAILURES", 5)
	cfg.PlacesBreakerTimeout = getEnvDuration("PLACES_BREAKER_TIMEOUT", 30*time.Second)
	cfg.NATSURL = getEnvString("NATS_URL", "")
	cfg.EventsSubject = getEnvString("EVENTS_SUBJECT", "checkin.created")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSearch = getEnvInt("RATE_LIMIT_SEARCH", 10)
	cfg.SignUpRateLimit = getEnvInt("RATE_LIMIT_SIGNUP", 10)
	cfg.NotificationRetentionDays = getEnvInt("NOTIFICATION_RETENTION_DAYS", 0)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.StaticURL = getEnvString("STATIC_URL", "/static/")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	if cfg.NotificationRetentionDays < 0 {
		return nil, fmt.Errorf("NOTIFICATION_RETENTION_DAYS must not be negative: %d", cfg.NotificationRetentionDays)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
