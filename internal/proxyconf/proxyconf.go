// Package proxyconf persists the control plane's server configuration and
// renders the forwarding daemon's YAML config file from it.
package proxyconf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	control "github.com/proxypal/proxypal/internal"
	"github.com/proxypal/proxypal/internal/storage"
)

// settingKey is where ServerConfig lives in the settings table.
const settingKey = "server_config"

// RateLimits configures the daemon's own limiting, separate from the
// control plane's per-user limiter.
type RateLimits struct {
	RequestsPerMinute int64  `json:"requests_per_minute"`
	TokensPerDay      *int64 `json:"tokens_per_day"`
}

// ServerConfig is the admin-editable configuration, stored as JSON in the
// settings table.
type ServerConfig struct {
	ProxyPort      int               `json:"proxy_port"`
	AdminPort      int               `json:"admin_port"`
	LogLevel       string            `json:"log_level"`
	AutoStartProxy bool              `json:"auto_start_proxy"`
	ModelMappings  map[string]string `json:"model_mappings"`
	RateLimits     RateLimits        `json:"rate_limits"`
}

// Default returns the configuration used before an admin saves one.
func Default() *ServerConfig {
	return &ServerConfig{
		ProxyPort:      8317,
		AdminPort:      3000,
		LogLevel:       "info",
		AutoStartProxy: true,
		ModelMappings:  map[string]string{},
		RateLimits:     RateLimits{RequestsPerMinute: 60},
	}
}

// Load reads the stored configuration, falling back to defaults when none
// has been saved yet.
func Load(ctx context.Context, store storage.SettingStore) (*ServerConfig, error) {
	raw, err := store.GetSetting(ctx, settingKey)
	if errors.Is(err, control.ErrNotFound) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	var cfg ServerConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("parse stored server config: %w", err)
	}
	if cfg.ModelMappings == nil {
		cfg.ModelMappings = map[string]string{}
	}
	return &cfg, nil
}

// Save writes the configuration to the settings table.
func Save(ctx context.Context, store storage.SettingStore, cfg *ServerConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode server config: %w", err)
	}
	return store.SetSetting(ctx, settingKey, string(raw))
}

// BuildYAML renders the daemon config. Only enabled providers that have at
// least one enabled account are listed; the daemon treats an absent provider
// as disabled.
func BuildYAML(cfg *ServerConfig, providers []*control.Provider, accounts []*control.ProviderAccount) string {
	var parts []string

	parts = append(parts,
		fmt.Sprintf("port: %d", cfg.ProxyPort),
		"log-level: "+cfg.LogLevel,
		"auth-dir: ./auth",
		"api-keys:",
		"  - proxypal-default-key",
	)

	if len(cfg.ModelMappings) > 0 {
		parts = append(parts, "model-mappings:")
		keys := make([]string, 0, len(cfg.ModelMappings))
		for from := range cfg.ModelMappings {
			keys = append(keys, from)
		}
		sort.Strings(keys)
		for _, from := range keys {
			parts = append(parts, fmt.Sprintf("  %s: %s", from, cfg.ModelMappings[from]))
		}
	}

	var providerParts []string
	for _, p := range providers {
		if !p.Enabled {
			continue
		}
		enabled := 0
		for _, a := range accounts {
			if a.Provider == p.Name && a.Enabled {
				enabled++
			}
		}
		if enabled == 0 {
			continue
		}
		providerParts = append(providerParts,
			fmt.Sprintf("  %s:", p.Name),
			"    enabled: true",
			fmt.Sprintf("    accounts: %d", enabled),
		)
	}
	if len(providerParts) > 0 {
		parts = append(parts, "providers:")
		parts = append(parts, providerParts...)
	}

	if cfg.RateLimits.RequestsPerMinute > 0 {
		parts = append(parts, "rate-limits:",
			fmt.Sprintf("  requests-per-minute: %d", cfg.RateLimits.RequestsPerMinute))
		if cfg.RateLimits.TokensPerDay != nil {
			parts = append(parts, fmt.Sprintf("  tokens-per-day: %d", *cfg.RateLimits.TokensPerDay))
		}
	}

	return strings.Join(parts, "\n")
}

// Generate renders the daemon config from the store and writes it to
// configPath, creating parent directories as needed.
func Generate(ctx context.Context, store storage.ProviderStore, cfg *ServerConfig, configPath string) error {
	providers, err := store.ListProviders(ctx)
	if err != nil {
		return fmt.Errorf("list providers: %w", err)
	}

	var accounts []*control.ProviderAccount
	for _, p := range providers {
		pa, err := store.ListProviderAccounts(ctx, p.Name)
		if err != nil {
			return fmt.Errorf("list accounts for %s: %w", p.Name, err)
		}
		accounts = append(accounts, pa...)
	}

	yaml := BuildYAML(cfg, providers, accounts)

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(configPath, []byte(yaml), 0o644); err != nil {
		return fmt.Errorf("write daemon config: %w", err)
	}
	return nil
}
