package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Identity provider
	IdentityAPIKey   string
	IdentityBaseURL  string
	IdentityTokenURL string

	// REST store
	StoreBaseURL string

	// Media host
	MediaBaseURL       string
	MediaCloudName     string
	MediaImagePreset   string
	MediaAudioPreset   string
	MediaMaxUploadSize int64

	// Access
	AdminEmails []string

	// Session
	SessionMaxAge          int
	SessionSettleWait      time.Duration
	SessionIdleTTL         time.Duration
	SessionCleanupInterval time.Duration

	// Outbound HTTP
	HTTPClientTimeout time.Duration

	// Rate Limit
	RateLimitAuth int

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string
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

	cfg.IdentityAPIKey = os.Getenv("IDENTITY_API_KEY")
	if cfg.IdentityAPIKey == "" {
		missing = append(missing, "IDENTITY_API_KEY")
	}

	cfg.MediaCloudName = os.Getenv("MEDIA_CLOUD_NAME")
	if cfg.MediaCloudName == "" {
		missing = append(missing, "MEDIA_CLOUD_NAME")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.IdentityBaseURL = getEnvString("IDENTITY_BASE_URL", "https://identitytoolkit.googleapis.com/v1")
	cfg.IdentityTokenURL = getEnvString("IDENTITY_TOKEN_URL", "https://securetoken.googleapis.com/v1/token")
	cfg.StoreBaseURL = strings.TrimRight(getEnvString("STORE_BASE_URL", "http://localhost:5000"), "/")
	cfg.MediaBaseURL = strings.TrimRight(getEnvString("MEDIA_BASE_URL", "https://api.cloudinary.com/v1_1"), "/")
	cfg.MediaImagePreset = getEnvString("MEDIA_IMAGE_PRESET", "musify_images")
	cfg.MediaAudioPreset = getEnvString("MEDIA_AUDIO_PRESET", "musify_audio")
	cfg.MediaMaxUploadSize = getEnvInt64("MEDIA_MAX_UPLOAD_SIZE", 50<<20)
	cfg.AdminEmails = getEnvList("ADMIN_EMAILS")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionSettleWait = getEnvDuration("SESSION_SETTLE_WAIT", 2*time.Second)
	cfg.SessionIdleTTL = getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.HTTPClientTimeout = getEnvDuration("HTTP_CLIENT_TIMEOUT", 30*time.Second)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getEnvList はカンマ区切りの環境変数を空要素を除いたスライスとして返す。
// 各要素の前後の空白のみ除去し、大文字小文字は変換しない。
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
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
