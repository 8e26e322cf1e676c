// Package config loads runtime settings from the environment, shared by every
// touchline subcommand.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/logging"
	"github.com/joho/godotenv"
)

type Config struct {
	// Storage
	DatabaseURL string
	RedisURL    string

	// HTTP surface
	HTTPAddr     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Fetching
	UserAgent        string
	FetchMinInterval time.Duration
	FetchTimeout     time.Duration
	FetchRetries     int
	PageCacheTTL     time.Duration
	BrowserHeadless  bool
	ChromePath       string

	// Batch
	BackfillWorkers int
	ContinueOnError bool
	EventStream     string

	LogLevel logging.Level
}

// LoadDotEnv reads .env files when present. Missing files are not an error.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// Load reads configuration from environment variables with defaults suitable
// for a polite single-host scraper.
func Load() (*Config, error) {
	minInterval, err := envDuration("FETCH_MIN_INTERVAL", 6*time.Second)
	if err != nil {
		return nil, err
	}
	timeout, err := envDuration("FETCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return nil, crerr.New("FETCH_TIMEOUT must be > 0")
	}
	retries, err := envInt("FETCH_RETRIES", 2)
	if err != nil {
		return nil, err
	}
	if retries < 0 {
		return nil, crerr.New("FETCH_RETRIES must be >= 0")
	}
	cacheTTL, err := envDuration("PAGE_CACHE_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	headless, err := envBool("BROWSER_HEADLESS", true)
	if err != nil {
		return nil, err
	}
	workers, err := envInt("BACKFILL_WORKERS", 2)
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		return nil, crerr.New("BACKFILL_WORKERS must be >= 1")
	}
	continueOnError, err := envBool("BACKFILL_CONTINUE_ON_ERROR", true)
	if err != nil {
		return nil, err
	}
	readTimeout, err := envDuration("HTTP_READ_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	writeTimeout, err := envDuration("HTTP_WRITE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	return &Config{
		DatabaseURL: envOr("DATABASE_URL", ""),
		RedisURL:    envOr("REDIS_URL", ""),

		HTTPAddr:     envOr("HTTP_ADDR", ":8080"),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,

		UserAgent:        envOr("USER_AGENT", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"),
		FetchMinInterval: minInterval,
		FetchTimeout:     timeout,
		FetchRetries:     retries,
		PageCacheTTL:     cacheTTL,
		BrowserHeadless:  headless,
		ChromePath:       envOr("CHROME_PATH", ""),

		BackfillWorkers: workers,
		ContinueOnError: continueOnError,
		EventStream:     envOr("EVENT_STREAM", "touchline:records"),

		LogLevel: logging.ParseLevel(envOr("LOG_LEVEL", "info")),
	}, nil
}

// RequireDatabase fails when DATABASE_URL is unset, for commands that persist.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return crerr.New("DATABASE_URL must be set")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, crerr.Wrapf(err, "parse %s", key)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, crerr.Wrapf(err, "parse %s", key)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, crerr.Wrapf(err, "parse %s", key)
	}
	if d < 0 {
		return 0, crerr.Newf("%s must be >= 0", key)
	}
	return d, nil
}
