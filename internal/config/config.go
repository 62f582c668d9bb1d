package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the web frontend and its optional backends.
type Config struct {
	APIBaseURL        string
	ListenAddr        string
	RequestTimeout    time.Duration
	DefaultGateway    string
	CookieSecure      bool
	SessionCookieName string
	SessionTTL        time.Duration
	LogLevel          string
	MySQLDSN          string
	RedisURL          string
	S3Endpoint        string
	S3Region          string
	S3AccessKey       string
	S3SecretKey       string
	S3Bucket          string
	S3PublicBaseURL   string
	S3UsePathStyle    bool
	S3Prefix          string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		APIBaseURL:        normalizeBaseURL(os.Getenv("API_BASE_URL")),
		ListenAddr:        getEnv("LISTEN_ADDR", ":3000"),
		RequestTimeout:    time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 30)),
		DefaultGateway:    strings.ToLower(getEnv("DEFAULT_GATEWAY", "paystack")),
		CookieSecure:      getBool("COOKIE_SECURE", false),
		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "token"),
		SessionTTL:        time.Hour * time.Duration(getInt("SESSION_TTL_HOURS", 24*7)),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		MySQLDSN:          os.Getenv("MYSQL_DSN"),
		RedisURL:          os.Getenv("REDIS_URL"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3Region:          os.Getenv("S3_REGION"),
		S3AccessKey:       os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:       os.Getenv("S3_SECRET_KEY"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:   os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:    getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:          getEnv("S3_PREFIX", "exports"),
	}

	var missing []string
	if cfg.APIBaseURL == "" {
		missing = append(missing, "API_BASE_URL")
	}
	if cfg.S3Bucket != "" {
		if cfg.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if cfg.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if cfg.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if cfg.S3PublicBaseURL == "" {
			missing = append(missing, "S3_PUBLIC_BASE_URL")
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}
	if cfg.DefaultGateway != "stripe" && cfg.DefaultGateway != "paystack" {
		return Config{}, fmt.Errorf("unsupported DEFAULT_GATEWAY: %s", cfg.DefaultGateway)
	}

	return cfg, nil
}

// ExportsEnabled reports whether S3 credentials were supplied.
func (c Config) ExportsEnabled() bool {
	return c.S3Bucket != ""
}

// normalizeBaseURL defaults the scheme to https and strips the trailing slash so
// endpoint paths can be appended verbatim.
func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if parsed.Scheme == "" {
		parsed, err = url.Parse("https://" + raw)
		if err != nil {
			return ""
		}
	}
	if parsed.Host == "" {
		return ""
	}

	return strings.TrimRight(parsed.String(), "/")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// loadEnvFile applies the first env file found; having none is fine.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
