// Package config reads process settings from the environment, optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"kinhelp.org/internal/obs"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string

	Store      string
	PGDSN      string
	SQLitePath string

	RedisAddr string
	RedisPass string

	AuthSecret       string
	TokenTTL         time.Duration
	TokenClientHash  string
	RateBurst        int
	RatePerSec       int
	CORSOrigins      []string
	MaxBodyBytes     int64
	StreamBufferSize int
}

// Load applies .env (when present) and reads CARE_* variables.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		obs.Logger().Info("no .env file found, relying on process environment")
	}
	return FromEnv()
}

// FromEnv reads configuration from the current environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:        getEnv("CARE_HTTP_ADDR", ":8080"),
		GRPCAddr:        getEnv("CARE_GRPC_ADDR", ":9090"),
		Store:           strings.ToLower(getEnv("CARE_STORE", StoreMemory)),
		PGDSN:           os.Getenv("CARE_PG_DSN"),
		SQLitePath:      getEnv("CARE_SQLITE_PATH", "kinhelp.db"),
		RedisAddr:       os.Getenv("CARE_REDIS_ADDR"),
		RedisPass:       os.Getenv("CARE_REDIS_PASS"),
		AuthSecret:      os.Getenv("CARE_AUTH_SECRET"),
		TokenClientHash: os.Getenv("CARE_TOKEN_CLIENT_HASH"),
		CORSOrigins:     splitList(os.Getenv("CARE_CORS_ORIGINS")),
	}

	var err error
	if cfg.TokenTTL, err = durationEnv("CARE_TOKEN_TTL", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.RateBurst, err = intEnv("CARE_RATE_BURST", 20); err != nil {
		return Config{}, err
	}
	if cfg.RatePerSec, err = intEnv("CARE_RATE_PER_SEC", 10); err != nil {
		return Config{}, err
	}
	maxBody, err := intEnv("CARE_MAX_BODY_BYTES", 1<<20)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxBodyBytes = int64(maxBody)
	if cfg.StreamBufferSize, err = intEnv("CARE_STREAM_BUFFER", 16); err != nil {
		return Config{}, err
	}

	switch cfg.Store {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if cfg.PGDSN == "" {
			return Config{}, fmt.Errorf("CARE_STORE=postgres requires CARE_PG_DSN")
		}
	default:
		return Config{}, fmt.Errorf("CARE_STORE: unknown store %q", cfg.Store)
	}
	return cfg, nil
}

// Fields renders the non-secret settings for a startup log line.
func (c Config) Fields() []zap.Field {
	return []zap.Field{
		zap.String("http_addr", c.HTTPAddr),
		zap.String("grpc_addr", c.GRPCAddr),
		zap.String("store", c.Store),
		zap.Bool("redis", c.RedisAddr != ""),
		zap.Duration("token_ttl", c.TokenTTL),
		zap.Int("rate_burst", c.RateBurst),
		zap.Int("rate_per_sec", c.RatePerSec),
		zap.Strings("cors_origins", c.CORSOrigins),
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s: expected a positive integer, got %q", key, raw)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: expected a positive duration, got %q", key, raw)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
