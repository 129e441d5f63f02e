package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	control "github.com/proxypal/proxypal/internal"
	"github.com/proxypal/proxypal/internal/storage"
)

// providerSummary is the admin view of a provider, with account count and a
// derived status.
type providerSummary struct {
	Name          string    `json:"name"`
	ProviderType  string    `json:"providerType"`
	Enabled       bool      `json:"enabled"`
	AccountsCount int64     `json:"accountsCount"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func providerStatusLabel(enabled bool, accounts int64) string {
	switch {
	case enabled && accounts > 0:
		return "active"
	case !enabled:
		return "inactive"
	default:
		return "no_accounts"
	}
}

func (s *server) summarize(r *http.Request, p *control.Provider) providerSummary {
	count, err := s.deps.Store.CountProviderAccounts(r.Context(), p.Name)
	if err != nil {
		count = 0
	}
	return providerSummary{
		Name:          p.Name,
		ProviderType:  p.Type,
		Enabled:       p.Enabled,
		AccountsCount: count,
		Status:        providerStatusLabel(p.Enabled, count),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func (s *server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.deps.Store.ListProviders(r.Context())
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	summaries := make([]providerSummary, 0, len(providers))
	for _, p := range providers {
		summaries = append(summaries, s.summarize(r, p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": summaries,
		"total":     len(summaries),
	})
}

func (s *server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	p, err := s.deps.Store.GetProviderByName(r.Context(), name)
	if errors.Is(err, control.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("Provider '%s' not found", name))
		return
	}
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.summarize(r, p))
}

// statusCacheTTL bounds how stale a cached daemon status may be. The admin
// UI polls this endpoint, so a short TTL keeps the daemon off the hot path.
const statusCacheTTL = 5 * time.Second

// handleProviderStatus passes through the daemon's live view of a provider,
// with a short-lived cache in front when one is configured.
func (s *server) handleProviderStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	if !control.IsValidProvider(name) {
		writeInvalidProvider(w, name)
		return
	}

	cacheKey := "provider_status:" + name
	if s.deps.StatusCache != nil {
		if cached, ok := s.deps.StatusCache.Get(r.Context(), cacheKey); ok {
			w.Header()["Content-Type"] = jsonCT
			w.WriteHeader(http.StatusOK)
			w.Write(cached) //nolint:errcheck
			return
		}
	}

	status, err := s.deps.Forwarder.GetProviderStatus(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "PROXY_ERROR", "Proxy error: "+err.Error())
		return
	}
	if s.deps.StatusCache != nil {
		if body, err := json.Marshal(status); err == nil {
			s.deps.StatusCache.Set(r.Context(), cacheKey, body, statusCacheTTL)
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *server) handleProviderSettings(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	var req struct {
		Settings json.RawMessage `json:"settings"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Settings) == 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "settings is required")
		return
	}

	settings := string(req.Settings)
	p, err := s.deps.Store.UpdateProvider(r.Context(), name, storage.ProviderUpdate{Settings: &settings})
	if errors.Is(err, control.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("Provider '%s' not found", name))
		return
	}
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	s.invalidateStatusCache(r.Context(), name)
	writeJSON(w, http.StatusOK, s.summarize(r, p))
}

func (s *server) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	err := s.deps.Store.DeleteProvider(r.Context(), name)
	if errors.Is(err, control.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("Provider '%s' not found", name))
		return
	}
	if err != nil {
		writeAdminError(w, r, err)
		return
	}

	// The daemon keeps its own credential files; drop them too so a deleted
	// provider cannot keep serving traffic.
	if err := s.deps.Forwarder.RemoveProvider(r.Context(), name); err != nil {
		slog.LogAttrs(r.Context(), slog.LevelWarn, "remove daemon credentials failed",
			slog.String("provider", name),
			slog.String("error", err.Error()),
		)
	}

	s.invalidateStatusCache(r.Context(), name)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// invalidateStatusCache drops cached daemon status after anything that can
// change it. An empty provider flushes the whole cache.
func (s *server) invalidateStatusCache(ctx context.Context, provider string) {
	if s.deps.StatusCache == nil {
		return
	}
	if provider == "" {
		s.deps.StatusCache.Purge(ctx)
		return
	}
	s.deps.StatusCache.Delete(ctx, "provider_status:"+provider)
}

func writeInvalidProvider(w http.ResponseWriter, name string) {
	writeError(w, http.StatusBadRequest, "INVALID_PROVIDER",
		fmt.Sprintf("Invalid provider: '%s'. Supported: claude, chatgpt, gemini, copilot", name))
}

// --- OAuth bridging ---

func (s *server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	if !control.IsValidProvider(name) {
		writeInvalidProvider(w, name)
		return
	}

	authURL, state, err := s.deps.Forwarder.StartOAuth(r.Context(), name, true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "PROXY_ERROR", "Proxy error: "+err.Error())
		return
	}

	// Record the in-flight flow so the callback can be correlated with the
	// admin who started it. Best-effort: the daemon owns the real state.
	if sess := control.SessionFromContext(r.Context()); sess != nil {
		if err := s.deps.Store.CreateOAuthState(r.Context(), state, name, sess.ID, nil, 15); err != nil {
			writeAdminError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"authUrl": authURL,
		"state":   state,
	})
}

const htmlCT = "text/html; charset=utf-8"

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", htmlCT)
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, body)
}

// handleOAuthCallback is the browser landing page after the provider's
// consent screen. It polls the daemon until the flow completes, then syncs
// the provider.
func (s *server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		writeHTML(w, fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>OAuth Error</title></head>
<body>
    <h1>Authentication Failed</h1>
    <p>Error: %s</p>
    <p>%s</p>
    <p>You can close this window.</p>
</body>
</html>`, html.EscapeString(errParam), html.EscapeString(q.Get("error_description"))))
		return
	}

	state := q.Get("state")
	if state == "" {
		writeHTML(w, `<!DOCTYPE html>
<html>
<head><title>OAuth Error</title></head>
<body>
    <h1>Authentication Failed</h1>
    <p>Missing state parameter</p>
    <p>You can close this window.</p>
</body>
</html>`)
		return
	}

	completed, err := s.deps.Forwarder.CheckOAuthStatus(r.Context(), state)
	if err != nil {
		writeHTML(w, fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>OAuth Error</title></head>
<body>
    <h1>Authentication Failed</h1>
    <p>Failed to check OAuth status: %s</p>
    <p>You can close this window.</p>
</body>
</html>`, html.EscapeString(err.Error())))
		return
	}

	if !completed {
		writeHTML(w, `<!DOCTYPE html>
<html>
<head><title>OAuth Pending</title></head>
<body>
    <h1>Authentication Pending</h1>
    <p>OAuth flow is still in progress. Please wait...</p>
    <script>setTimeout(() => location.reload(), 2000);</script>
</body>
</html>`)
		return
	}

	// Single-use: once completed, the recorded state is spent.
	if _, err := s.deps.Store.ConsumeOAuthState(r.Context(), state); err != nil && !errors.Is(err, control.ErrNotFound) {
		writeAdminError(w, r, err)
		return
	}

	if err := s.deps.Forwarder.SyncProvider(r.Context(), provider); err != nil {
		writeHTML(w, fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>OAuth Warning</title></head>
<body>
    <h1>Authentication Successful</h1>
    <p>However, failed to sync provider: %s</p>
    <p>You can close this window.</p>
</body>
</html>`, html.EscapeString(err.Error())))
		return
	}

	s.invalidateStatusCache(r.Context(), provider)
	writeHTML(w, fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>Success</title></head>
<body>
    <h1>Success!</h1>
    <p>%s has been connected successfully.</p>
    <p>You can close this window.</p>
    <script>window.close();</script>
</body>
</html>`, html.EscapeString(provider)))
}
