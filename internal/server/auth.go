package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	control "github.com/proxypal/proxypal/internal"
	"github.com/proxypal/proxypal/internal/auth"
)

// adminPasswordKey is where the Argon2 admin password hash lives in settings.
const adminPasswordKey = "admin_password_hash"

// sessionTTLDays is the admin session lifetime.
const sessionTTLDays = 7

// sessionCookieMaxAge makes the cookies expire with the stored session.
const sessionCookieMaxAge = sessionTTLDays * 24 * 60 * 60

func sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

// csrfCookie mirrors the session's CSRF token. It is intentionally not
// HttpOnly: the SPA reads it to fill the X-CSRF-Token header.
func csrfCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     csrfCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	hash, err := s.deps.Store.GetSetting(r.Context(), adminPasswordKey)
	if errors.Is(err, control.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "NOT_CONFIGURED", "Admin password not configured")
		return
	}
	if err != nil {
		writeAdminError(w, r, err)
		return
	}

	if err := auth.VerifySecret(req.Password, hash); err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid password")
		return
	}

	sessionID := uuid.NewString()
	csrfToken := uuid.NewString()
	sess, err := s.deps.Store.CreateSession(r.Context(), sessionID, csrfToken, sessionTTLDays)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}

	http.SetCookie(w, sessionCookie(sessionID, sessionCookieMaxAge))
	http.SetCookie(w, csrfCookie(csrfToken, sessionCookieMaxAge))

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Logged in successfully",
		"expires_at": sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := control.SessionFromContext(r.Context())
	if sess != nil {
		if err := s.deps.Store.DeleteSession(r.Context(), sess.ID); err != nil {
			slog.LogAttrs(r.Context(), slog.LevelWarn, "delete session failed",
				slog.String("error", err.Error()),
			)
		}
	}
	http.SetCookie(w, sessionCookie("", -1))
	http.SetCookie(w, csrfCookie("", -1))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleAuthStatus reports whether the caller holds a live session. It always
// returns 200 so the SPA can probe without tripping error handling.
func (s *server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || c.Value == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	sess, err := s.deps.Store.GetSession(r.Context(), c.Value)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"expires_at":    sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
