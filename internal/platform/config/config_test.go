package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if cfg.StorageBackend != BackendMemory || cfg.IdempotencyBackend != BackendMemory {
		t.Fatalf("backends=%q/%q", cfg.StorageBackend, cfg.IdempotencyBackend)
	}
	if cfg.IdempotencyLockTTL != 60*time.Second || cfg.Port != "8080" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if len(cfg.PaymentProviders) != 1 || cfg.PaymentProviders[0] != "manual" {
		t.Fatalf("providers=%v", cfg.PaymentProviders)
	}
}

func TestLoad_IdempotencyBackendFollowsStorage(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", testSecret)
	t.Setenv("STORAGE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/storefront")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if cfg.IdempotencyBackend != BackendPostgres {
		t.Fatalf("IdempotencyBackend=%q", cfg.IdempotencyBackend)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{name: "postgres idempotency on memory storage", env: map[string]string{"IDEMPOTENCY_BACKEND": "postgres"}},
		{name: "postgres without dsn", env: map[string]string{"STORAGE_BACKEND": "postgres"}},
		{name: "unknown backend", env: map[string]string{"IDEMPOTENCY_BACKEND": "etcd"}},
		{name: "bad ttl", env: map[string]string{"IDEMPOTENCY_LOCK_TTL": "soon"}},
		{name: "bad redis db", env: map[string]string{"REDIS_DB": "one"}},
		{name: "short secret", env: map[string]string{"ADMIN_JWT_SECRET": "short"}},
		{name: "unknown auth mode", env: map[string]string{"AUTH_MODE": "basic"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ADMIN_JWT_SECRET", testSecret)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoad_DevAuthNeedsNoSecret(t *testing.T) {
	t.Setenv("AUTH_MODE", "dev")
	t.Setenv("ADMIN_JWT_SECRET", "")

	if _, err := Load(); err != nil {
		t.Fatalf("Load() err=%v", err)
	}
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("PORT=9999\nREDIS_ADDR=redis:6379\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("PORT", "7000")
	t.Setenv("REDIS_ADDR", "")
	os.Unsetenv("REDIS_ADDR")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() err=%v", err)
	}
	if got := os.Getenv("PORT"); got != "7000" {
		t.Fatalf("PORT=%q", got)
	}
	if got := os.Getenv("REDIS_ADDR"); got != "redis:6379" {
		t.Fatalf("REDIS_ADDR=%q", got)
	}
}

func TestLoadStorage_IgnoresAdminAuth(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", "")
	t.Setenv("IDEMPOTENCY_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/idem.db")

	cfg, err := LoadStorage()
	if err != nil {
		t.Fatalf("LoadStorage() err=%v", err)
	}
	if cfg.IdempotencyBackend != BackendSQLite || cfg.SQLitePath != "/tmp/idem.db" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if _, err := Load(); err == nil {
		t.Fatalf("Load() should require ADMIN_JWT_SECRET")
	}
}
