// Package config loads control plane settings from the environment.
//
// Runtime-tunable settings (ports, log level, rate limits) live in the
// database and are managed through the admin API; this package covers only
// what must be known before the database is open.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds process-level configuration resolved at startup.
type Config struct {
	// DatabasePath is the SQLite file path.
	DatabasePath string
	// DataDir holds generated artifacts, notably the daemon config written
	// on hot reload.
	DataDir string
	// ProxyConfigPath is where the daemon config is written before start.
	ProxyConfigPath string
	// ProxyManagementURL is the base URL of the daemon's management API.
	ProxyManagementURL string
	// ManagementKey authenticates control plane calls to the daemon.
	ManagementKey string
	// BinaryPath is the daemon executable spawned by proxy start.
	BinaryPath string
	// Port is the admin/relay listen port.
	Port int
	// AdminPassword seeds the admin password hash on first run. Empty once
	// the hash exists in the database.
	AdminPassword string
	// OTLPEndpoint enables tracing when non-empty.
	OTLPEndpoint string
	// TraceSampleRate is the trace sampling ratio, 0.0 to 1.0.
	TraceSampleRate float64
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:       envOr("DATABASE_PATH", "proxypal.db"),
		DataDir:            envOr("DATA_DIR", "/data"),
		ProxyConfigPath:    envOr("PROXY_CONFIG_PATH", "./proxy-config.yaml"),
		ProxyManagementURL: envOr("PROXY_MANAGEMENT_URL", "http://127.0.0.1:8317"),
		ManagementKey:      envOr("MANAGEMENT_KEY", "proxypal-mgmt-key"),
		BinaryPath:         envOr("CLIPROXY_BINARY_PATH", "cliproxyapi"),
		AdminPassword:      os.Getenv("ADMIN_PASSWORD"),
		OTLPEndpoint:       os.Getenv("OTLP_ENDPOINT"),
		TraceSampleRate:    1.0,
	}

	port, err := intEnv("PORT", 3000)
	if err != nil {
		return nil, err
	}
	cfg.Port = port

	if v := os.Getenv("TRACE_SAMPLE_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse TRACE_SAMPLE_RATE: %w", err)
		}
		cfg.TraceSampleRate = rate
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}
