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

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

// Config holds runtime configuration for the API server and operator tooling.
type Config struct {
	Env  string
	Port string

	StorageBackend     string
	IdempotencyBackend string
	DatabaseURL        string
	SQLitePath         string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// IdempotencyLockTTL is how long a lock is honored before another request may take
	// the record over. Negative disables takeover.
	IdempotencyLockTTL time.Duration

	// CompleteRateLimitCapacity of zero disables the per-cart limit on cart completion.
	CompleteRateLimitCapacity int
	CompleteRateLimitRefill   float64

	PaymentProviders []string

	Admin AdminAuthConfig
}

func (c Config) IsDev() bool { return c.Env == "dev" }

// LoadDotEnv loads variables from the given files (".env" by default) without
// overriding ones already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables and validates backend combinations
// and admin authentication.
func Load() (Config, error) {
	cfg, err := LoadStorage()
	if err != nil {
		return Config{}, err
	}
	if cfg.Admin, err = LoadAdminAuthConfigFromEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Admin.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadStorage is Load without admin authentication, for operator tooling.
func LoadStorage() (Config, error) {
	storage := strings.ToLower(getEnv("STORAGE_BACKEND", BackendMemory))
	cfg := Config{
		Env:                getEnv("APP_ENV", "prod"),
		Port:               getEnv("PORT", "8080"),
		StorageBackend:     storage,
		IdempotencyBackend: strings.ToLower(getEnv("IDEMPOTENCY_BACKEND", storage)),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         getEnv("SQLITE_PATH", "idempotency.db"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		PaymentProviders:   getEnvList("PAYMENT_PROVIDERS", []string{"manual"}),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyLockTTL, err = getEnvDuration("IDEMPOTENCY_LOCK_TTL", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.CompleteRateLimitCapacity, err = getEnvInt("COMPLETE_RATE_LIMIT_CAPACITY", 0); err != nil {
		return Config{}, err
	}
	if cfg.CompleteRateLimitRefill, err = getEnvFloat("COMPLETE_RATE_LIMIT_REFILL_PER_SEC", 1); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks backend settings. Admin authentication is validated separately.
func (c Config) Validate() error {
	switch c.StorageBackend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be memory or postgres, got %q", c.StorageBackend)
	}
	switch c.IdempotencyBackend {
	case BackendMemory, BackendSQLite, BackendRedis:
	case BackendPostgres:
		// Stages write through the same transaction as the record.
		if c.StorageBackend != BackendPostgres {
			return errors.New("IDEMPOTENCY_BACKEND=postgres requires STORAGE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("IDEMPOTENCY_BACKEND must be memory, postgres, sqlite or redis, got %q", c.IdempotencyBackend)
	}
	if c.StorageBackend == BackendPostgres && c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required when STORAGE_BACKEND=postgres")
	}
	if c.IdempotencyBackend == BackendSQLite && c.SQLitePath == "" {
		return errors.New("SQLITE_PATH is required when IDEMPOTENCY_BACKEND=sqlite")
	}
	if c.CompleteRateLimitCapacity < 0 || c.CompleteRateLimitRefill <= 0 {
		return errors.New("COMPLETE_RATE_LIMIT_CAPACITY must be >= 0 and COMPLETE_RATE_LIMIT_REFILL_PER_SEC > 0")
	}
	if len(c.PaymentProviders) == 0 {
		return errors.New("PAYMENT_PROVIDERS must list at least one provider")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return i, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (e.g. 30s): %w", key, err)
	}
	return d, nil
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
