// Package server implements the HTTP transport layer for the ProxyPal
// control plane: the admin API, the OAuth callback bridge, and the
// OpenAI-compatible /v1 surface that relays to the forwarding daemon.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	control "github.com/proxypal/proxypal/internal"
	"github.com/proxypal/proxypal/internal/cache"
	"github.com/proxypal/proxypal/internal/forwarder"
	"github.com/proxypal/proxypal/internal/process"
	"github.com/proxypal/proxypal/internal/ratelimit"
	"github.com/proxypal/proxypal/internal/storage"
	"github.com/proxypal/proxypal/internal/telemetry"
)

// KeyAuthenticator validates API keys on the /v1 surface.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*control.Identity, error)
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Store           storage.Store
	KeyAuth         KeyAuthenticator
	Limiter         *ratelimit.Limiter
	Forwarder       forwarder.Client
	Process         process.Manager
	Metrics         *telemetry.Metrics // nil = no metrics endpoint or middleware
	StatusCache     *cache.Memory      // nil = hit the daemon on every status read
	Version         string
	DataDir         string // daemon config written here on settings changes
	ProxyConfigPath string // daemon config written here on explicit starts
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// System endpoints (no auth)
	r.Get("/healthz", s.handleHealth)
	r.Get("/api/health", s.handleHealth)
	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Login and session probing stay outside the session gate.
	r.Post("/api/auth/login", s.handleLogin)
	r.Get("/api/auth/status", s.handleAuthStatus)

	// Admin API (session cookie + CSRF double-submit)
	r.Group(func(r chi.Router) {
		r.Use(s.sessionAuth)
		r.Use(s.csrf)

		r.Post("/api/auth/logout", s.handleLogout)

		r.Get("/api/users", s.handleListUsers)
		r.Post("/api/users", s.handleCreateUser)
		r.Get("/api/users/{id}", s.handleGetUser)
		r.Put("/api/users/{id}", s.handleUpdateUser)
		r.Delete("/api/users/{id}", s.handleDeleteUser)
		r.Post("/api/users/{id}/regenerate-key", s.handleRegenerateKey)
		r.Post("/api/users/{id}/reset-usage", s.handleResetUsage)

		r.Get("/api/usage", s.handleUsage)
		r.Get("/api/usage/users/{id}", s.handleUserUsage)
		r.Get("/api/usage/daily", s.handleDailyUsage)
		r.Get("/api/usage/logs", s.handleUsageLogs)
		r.Get("/api/logs", s.handleRequestLogs)

		r.Get("/api/providers", s.handleListProviders)
		r.Get("/api/providers/{provider}", s.handleGetProvider)
		r.Get("/api/providers/{provider}/status", s.handleProviderStatus)
		r.Put("/api/providers/{provider}/settings", s.handleProviderSettings)
		r.Delete("/api/providers/{provider}", s.handleDeleteProvider)
		r.Post("/api/providers/{provider}/oauth/start", s.handleOAuthStart)

		r.Get("/api/proxy/status", s.handleProxyStatus)
		r.Post("/api/proxy/start", s.handleProxyStart)
		r.Post("/api/proxy/stop", s.handleProxyStop)
		r.Post("/api/proxy/restart", s.handleProxyRestart)

		r.Get("/api/config", s.handleGetConfig)
		r.Put("/api/config", s.handleUpdateConfig)
	})

	// Browser-facing OAuth landing page. The provider redirects here, so no
	// admin cookie can be required.
	r.Get("/oauth/{provider}/callback", s.handleOAuthCallback)

	// OpenAI-compatible relay (API key auth + per-user rate limiting)
	r.Group(func(r chi.Router) {
		r.Use(s.apiKeyAuth)
		r.Use(s.rateLimit)
		r.Get("/v1/models", s.handleListModels)
		r.Post("/v1/chat/completions", s.handleForward)
		r.Post("/v1/completions", s.handleForward)
		r.Post("/v1/embeddings", s.handleForward)
	})

	return r
}

type server struct {
	deps Deps
}
