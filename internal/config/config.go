package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the AgentFront edge proxy.
// Everything is read once at startup; handlers treat it as read-only.
type Config struct {
	Port      int
	Version   string
	Database  DatabaseConfig
	KV        KVConfig
	Upstream  UpstreamConfig
	Admin     AdminConfig
	Telemetry TelemetryConfig
}

type DatabaseConfig struct {
	// Path is the SQLite database file for instance configuration.
	Path string
}

type KVConfig struct {
	// Path is the SQLite file backing the expiring key-value store.
	// Empty means an in-memory store (counters and sessions do not
	// survive a restart).
	Path string
}

type UpstreamConfig struct {
	// APIHost is the TypingMind API base URL.
	APIHost string
	// APIKey is the process-wide default credential, used when an
	// instance carries no override.
	APIKey string
	// Timeout is the deadline attached to each upstream call.
	Timeout time.Duration
}

type AdminConfig struct {
	// Password guards the admin surface. Empty means admin is not
	// configured and every login fails with a 500.
	Password string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("AGENTFRONT_PORT", 8080),
		Version: envStr("AGENTFRONT_VERSION", "0.2.0"),
		Database: DatabaseConfig{
			Path: envStr("AGENTFRONT_DB_PATH", "agentfront.db"),
		},
		KV: KVConfig{
			Path: envStr("AGENTFRONT_KV_PATH", ""),
		},
		Upstream: UpstreamConfig{
			APIHost: envStr("TYPINGMIND_API_HOST", "https://api.typingmind.com"),
			APIKey:  envStr("TYPINGMIND_API_KEY", ""),
			Timeout: envDuration("TYPINGMIND_TIMEOUT", 30*time.Second),
		},
		Admin: AdminConfig{
			Password: envStr("ADMIN_PASSWORD", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "agentfront"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
