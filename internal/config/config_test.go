package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	for _, k := range []string{"CARE_HTTP_ADDR", "CARE_STORE", "CARE_TOKEN_TTL", "CARE_RATE_BURST", "CARE_CORS_ORIGINS"} {
		t.Setenv(k, "")
	}
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr != ":9090" || cfg.Store != StoreMemory {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.TokenTTL != time.Hour || cfg.RateBurst != 20 || cfg.RatePerSec != 10 {
		t.Fatalf("unexpected limits: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 0 {
		t.Fatalf("unexpected origins: %v", cfg.CORSOrigins)
	}
}

func TestOverridesAndValidation(t *testing.T) {
	t.Setenv("CARE_STORE", "SQLite")
	t.Setenv("CARE_TOKEN_TTL", "15m")
	t.Setenv("CARE_CORS_ORIGINS", "https://a.example, ,https://b.example")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Store != StoreSQLite || cfg.TokenTTL != 15*time.Minute || len(cfg.CORSOrigins) != 2 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}

	tests := []struct {
		name, key, value string
	}{
		{"unknown store", "CARE_STORE", "mongo"},
		{"postgres without dsn", "CARE_STORE", "postgres"},
		{"bad ttl", "CARE_TOKEN_TTL", "soon"},
		{"negative burst", "CARE_RATE_BURST", "-1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("CARE_STORE", "memory")
			t.Setenv("CARE_PG_DSN", "")
			t.Setenv("CARE_TOKEN_TTL", "")
			t.Setenv(tc.key, tc.value)
			if _, err := FromEnv(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.value)
			}
		})
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CARE_GRPC_ADDR=:7777\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	// godotenv never overrides variables that are already set, so start unset
	t.Setenv("CARE_GRPC_ADDR", "")
	os.Unsetenv("CARE_GRPC_ADDR")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":7777" {
		t.Fatalf("expected .env value, got %q", cfg.GRPCAddr)
	}
}
