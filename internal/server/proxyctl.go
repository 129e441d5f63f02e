package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/proxypal/proxypal/internal/process"
	"github.com/proxypal/proxypal/internal/proxyconf"
)

func (s *server) handleProxyStatus(w http.ResponseWriter, r *http.Request) {
	cfg, err := proxyconf.Load(r.Context(), s.deps.Store)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}

	running := s.deps.Process.Running()
	var pid *int
	var uptime *int64
	if running {
		p := s.deps.Process.PID()
		pid = &p
		u := s.deps.Process.UptimeSeconds()
		uptime = &u
	}

	total, err := s.deps.Store.TotalRequests(r.Context())
	if err != nil {
		writeAdminError(w, r, err)
		return
	}

	active := []string{}
	if running {
		providers, err := s.deps.Store.ListProviders(r.Context())
		if err != nil {
			writeAdminError(w, r, err)
			return
		}
		for _, p := range providers {
			if p.Enabled {
				active = append(active, p.Name)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"running":          running,
		"pid":              pid,
		"port":             cfg.ProxyPort,
		"uptime_seconds":   uptime,
		"total_requests":   total,
		"active_providers": active,
	})
}

func (s *server) handleProxyStart(w http.ResponseWriter, r *http.Request) {
	if s.deps.Process.Running() {
		writeError(w, http.StatusConflict, "CONFLICT", "Proxy is already running")
		return
	}

	cfg, err := proxyconf.Load(r.Context(), s.deps.Store)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	if err := proxyconf.Generate(r.Context(), s.deps.Store, cfg, s.deps.ProxyConfigPath); err != nil {
		writeAdminError(w, r, err)
		return
	}

	pid, err := s.deps.Process.Start(s.deps.ProxyConfigPath, cfg.ProxyPort)
	if errors.Is(err, process.ErrAlreadyRunning) {
		writeError(w, http.StatusConflict, "CONFLICT", "Proxy is already running")
		return
	}
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	s.setDaemonUp(true)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"pid":     pid,
		"port":    cfg.ProxyPort,
	})
}

func (s *server) setDaemonUp(up bool) {
	if s.deps.Metrics == nil {
		return
	}
	if up {
		s.deps.Metrics.DaemonUp.Set(1)
	} else {
		s.deps.Metrics.DaemonUp.Set(0)
	}
}

// handleProxyStop always succeeds; stopping a stopped daemon is a no-op.
func (s *server) handleProxyStop(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Process.Stop(); err != nil {
		writeAdminError(w, r, err)
		return
	}
	s.setDaemonUp(false)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *server) handleProxyRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Process.Stop(); err != nil {
		slog.LogAttrs(r.Context(), slog.LevelWarn, "stop before restart failed",
			slog.String("error", err.Error()),
		)
	}

	cfg, err := proxyconf.Load(r.Context(), s.deps.Store)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	if err := proxyconf.Generate(r.Context(), s.deps.Store, cfg, s.deps.ProxyConfigPath); err != nil {
		writeAdminError(w, r, err)
		return
	}

	pid, err := s.deps.Process.Start(s.deps.ProxyConfigPath, cfg.ProxyPort)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	s.setDaemonUp(true)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"pid":     pid,
		"port":    cfg.ProxyPort,
	})
}
