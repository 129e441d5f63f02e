package config

import "testing"

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_PATH", "DATA_DIR", "PROXY_CONFIG_PATH", "PROXY_MANAGEMENT_URL",
		"MANAGEMENT_KEY", "CLIPROXY_BINARY_PATH", "PORT", "ADMIN_PASSWORD",
		"OTLP_ENDPOINT", "TRACE_SAMPLE_RATE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DatabasePath != "proxypal.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.DataDir != "/data" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.ProxyConfigPath != "./proxy-config.yaml" {
		t.Errorf("ProxyConfigPath = %q", cfg.ProxyConfigPath)
	}
	if cfg.ProxyManagementURL != "http://127.0.0.1:8317" {
		t.Errorf("ProxyManagementURL = %q", cfg.ProxyManagementURL)
	}
	if cfg.ManagementKey != "proxypal-mgmt-key" {
		t.Errorf("ManagementKey = %q", cfg.ManagementKey)
	}
	if cfg.BinaryPath != "cliproxyapi" {
		t.Errorf("BinaryPath = %q", cfg.BinaryPath)
	}
	if cfg.Port != 3000 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.TraceSampleRate != 1.0 {
		t.Errorf("TraceSampleRate = %v", cfg.TraceSampleRate)
	}
	if cfg.OTLPEndpoint != "" || cfg.AdminPassword != "" {
		t.Errorf("optional fields not empty: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_PATH", "/tmp/test.db")
	t.Setenv("PORT", "4000")
	t.Setenv("ADMIN_PASSWORD", "hunter2")
	t.Setenv("OTLP_ENDPOINT", "collector:4317")
	t.Setenv("TRACE_SAMPLE_RATE", "0.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DatabasePath != "/tmp/test.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.Port != 4000 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.AdminPassword != "hunter2" {
		t.Errorf("AdminPassword = %q", cfg.AdminPassword)
	}
	if cfg.OTLPEndpoint != "collector:4317" {
		t.Errorf("OTLPEndpoint = %q", cfg.OTLPEndpoint)
	}
	if cfg.TraceSampleRate != 0.25 {
		t.Errorf("TraceSampleRate = %v", cfg.TraceSampleRate)
	}
}

func TestLoadBadValues(t *testing.T) {
	clearEnv(t)

	t.Setenv("PORT", "not-a-port")
	if _, err := Load(); err == nil {
		t.Error("expected error for bad PORT")
	}

	t.Setenv("PORT", "")
	t.Setenv("TRACE_SAMPLE_RATE", "always")
	if _, err := Load(); err == nil {
		t.Error("expected error for bad TRACE_SAMPLE_RATE")
	}
}
