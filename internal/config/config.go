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

// Config aggregates runtime configuration for the generation service and the
// account layer.
type Config struct {
	HTTPListenAddr string
	MySQLDSN       string

	StabilityAPIKey  string
	StabilityBaseURL string
	DefaultEngineID  string
	RequestTimeout   time.Duration

	ImageCreditCost int
	EditCreditCost  int
	VideoCreditCost int
	StartingCredits int

	RateLimitPerSecond int
	RateLimitBurst     int

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	const defaultStabilityBaseURL = "https://api.stability.ai"

	cfg := Config{
		HTTPListenAddr:     getEnv("HTTP_LISTEN_ADDR", ":8000"),
		MySQLDSN:           os.Getenv("MYSQL_DSN"),
		StabilityAPIKey:    os.Getenv("STABILITY_API_KEY"),
		StabilityBaseURL:   normalizeStabilityBaseURL(getEnv("STABILITY_BASE_URL", defaultStabilityBaseURL), defaultStabilityBaseURL),
		DefaultEngineID:    getEnv("STABILITY_ENGINE_ID", "stable-diffusion-xl-1024-v1-0"),
		RequestTimeout:     time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 300)),
		ImageCreditCost:    getInt("IMAGE_CREDIT_COST", 1),
		EditCreditCost:     getInt("EDIT_CREDIT_COST", 2),
		VideoCreditCost:    getInt("VIDEO_CREDIT_COST", 10),
		StartingCredits:    getInt("STARTING_CREDITS", 10),
		RateLimitPerSecond: getInt("RATE_LIMIT_PER_SECOND", 5),
		RateLimitBurst:     getInt("RATE_LIMIT_BURST", 10),
		S3Endpoint:         getEnv("S3_ENDPOINT", ""),
		S3Region:           os.Getenv("S3_REGION"),
		S3AccessKey:        os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:        os.Getenv("S3_SECRET_KEY"),
		S3Bucket:           os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:    os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:     getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:           getEnv("S3_PREFIX", ""),
	}

	var missing []string
	if cfg.StabilityAPIKey == "" {
		missing = append(missing, "STABILITY_API_KEY")
	}
	if cfg.S3Region == "" {
		missing = append(missing, "S3_REGION")
	}
	if cfg.S3AccessKey == "" {
		missing = append(missing, "S3_ACCESS_KEY")
	}
	if cfg.S3SecretKey == "" {
		missing = append(missing, "S3_SECRET_KEY")
	}
	if cfg.S3Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if cfg.S3PublicBaseURL == "" {
		missing = append(missing, "S3_PUBLIC_BASE_URL")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

// normalizeStabilityBaseURL ensures we always hit the API host. Some docs link
// the root stability.ai domain, which returns HTML instead of JSON.
func normalizeStabilityBaseURL(raw string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fallback
	}

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		parsed.Host = parsed.Path
		parsed.Path = ""
	}

	if parsed.Host == "stability.ai" {
		parsed.Host = "api.stability.ai"
	}

	return parsed.String()
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
	if err != nil {
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
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
