// Package config builds runtime configuration from environment variables
// so main stays lean. Policy values (risk thresholds, retry bounds, tick
// cadence) live here rather than inline in the services.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// StoreBackend selects the document-store implementation.
type StoreBackend string

const (
	StoreFile     StoreBackend = "file"
	StoreRedis    StoreBackend = "redis"
	StorePostgres StoreBackend = "postgres"
)

// Config captures everything the server needs at startup.
type Config struct {
	Addr string

	Store       StoreBackend
	DataDir     string
	RedisURL    string
	PostgresDSN string

	KafkaBrokers []string
	KafkaTopic   string

	TickInterval  time.Duration
	LeaseTTL      time.Duration
	CollabTimeout time.Duration

	MaxAttempts int
	BackoffBase time.Duration

	// Risk thresholds: score > High is HIGH, score > Medium is MEDIUM,
	// anything else is LOW.
	RiskMediumThreshold float64
	RiskHighThreshold   float64

	TickWorkers int
}

// FromEnv reads ARCPAY_* variables, falling back to development defaults.
func FromEnv() Config {
	return Config{
		Addr: envString("ARCPAY_ADDR", ":8080"),

		Store:       StoreBackend(envString("ARCPAY_STORE", string(StoreFile))),
		DataDir:     envString("ARCPAY_DATA_DIR", "./data"),
		RedisURL:    os.Getenv("ARCPAY_REDIS_URL"),
		PostgresDSN: os.Getenv("ARCPAY_POSTGRES_DSN"),

		KafkaBrokers: envList("ARCPAY_KAFKA_BROKERS"),
		KafkaTopic:   envString("ARCPAY_KAFKA_TOPIC", "arcpay.payment-events"),

		TickInterval:  envDuration("ARCPAY_TICK_INTERVAL", 30*time.Second),
		LeaseTTL:      envDuration("ARCPAY_LEASE_TTL", 5*time.Minute),
		CollabTimeout: envDuration("ARCPAY_COLLAB_TIMEOUT", 10*time.Second),

		MaxAttempts: envInt("ARCPAY_MAX_ATTEMPTS", 3),
		BackoffBase: envDuration("ARCPAY_RETRY_BACKOFF", time.Minute),

		RiskMediumThreshold: envFloat("ARCPAY_RISK_MEDIUM", 0.6),
		RiskHighThreshold:   envFloat("ARCPAY_RISK_HIGH", 0.85),

		TickWorkers: envInt("ARCPAY_TICK_WORKERS", 4),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
