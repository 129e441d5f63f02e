package server

import (
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/proxypal/proxypal/internal/proxyconf"
)

func validPort(port int) bool {
	return port == 0 || port >= 1024
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

func (s *server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := proxyconf.Load(r.Context(), s.deps.Store)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProxyPort      *int               `json:"proxy_port"`
		AdminPort      *int               `json:"admin_port"`
		LogLevel       *string            `json:"log_level"`
		AutoStartProxy *bool              `json:"auto_start_proxy"`
		ModelMappings  *map[string]string `json:"model_mappings"`
		RateLimits     *struct {
			RequestsPerMinute *int64 `json:"requests_per_minute"`
			TokensPerDay      *int64 `json:"tokens_per_day"`
		} `json:"rate_limits"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	cfg, err := proxyconf.Load(r.Context(), s.deps.Store)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}

	oldProxyPort := cfg.ProxyPort
	oldAdminPort := cfg.AdminPort

	if req.ProxyPort != nil {
		if !validPort(*req.ProxyPort) {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Port must be >= 1024 (or 0 for auto)")
			return
		}
		cfg.ProxyPort = *req.ProxyPort
	}
	if req.AdminPort != nil {
		if !validPort(*req.AdminPort) {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Port must be >= 1024 (or 0 for auto)")
			return
		}
		cfg.AdminPort = *req.AdminPort
	}
	if req.LogLevel != nil {
		if !validLogLevels[*req.LogLevel] {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid log level: "+*req.LogLevel)
			return
		}
		cfg.LogLevel = *req.LogLevel
	}
	if req.AutoStartProxy != nil {
		cfg.AutoStartProxy = *req.AutoStartProxy
	}
	if req.ModelMappings != nil {
		cfg.ModelMappings = *req.ModelMappings
	}
	if req.RateLimits != nil {
		if req.RateLimits.RequestsPerMinute != nil {
			cfg.RateLimits.RequestsPerMinute = *req.RateLimits.RequestsPerMinute
		}
		if req.RateLimits.TokensPerDay != nil {
			cfg.RateLimits.TokensPerDay = req.RateLimits.TokensPerDay
		}
	}

	if err := proxyconf.Save(r.Context(), s.deps.Store, cfg); err != nil {
		writeAdminError(w, r, err)
		return
	}

	// Keep the live limiter in step with the saved policy.
	if s.deps.Limiter != nil {
		s.deps.Limiter.SetLimit(cfg.RateLimits.RequestsPerMinute)
	}

	// A proxy port change needs a daemon restart to take effect, so the
	// config file is only regenerated in place when the port is unchanged.
	if cfg.ProxyPort == oldProxyPort {
		path := filepath.Join(s.deps.DataDir, "proxy-config.yaml")
		if err := proxyconf.Generate(r.Context(), s.deps.Store, cfg, path); err != nil {
			slog.LogAttrs(r.Context(), slog.LevelWarn, "regenerate daemon config failed",
				slog.String("error", err.Error()),
			)
		} else if err := s.deps.Forwarder.SyncProvider(r.Context(), "*"); err != nil {
			slog.LogAttrs(r.Context(), slog.LevelWarn, "daemon reload failed",
				slog.String("error", err.Error()),
			)
		} else {
			s.invalidateStatusCache(r.Context(), "")
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"restart_required": cfg.AdminPort != oldAdminPort,
	})
}
