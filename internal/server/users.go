package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	control "github.com/proxypal/proxypal/internal"
	"github.com/proxypal/proxypal/internal/auth"
	"github.com/proxypal/proxypal/internal/storage"
)

// userWithKey flattens the user with the plaintext API key, returned exactly
// once at creation or rotation.
type userWithKey struct {
	*control.User
	APIKey string `json:"apiKey"`
}

func parseUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return 0, false
	}
	return id, true
}

func (s *server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	users, total, err := s.deps.Store.ListUsers(r.Context(), page, limit)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	if users == nil {
		users = []*control.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

func (s *server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		QuotaTokens *int64 `json:"quotaTokens"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Name is required")
		return
	}

	rawKey, prefix, err := auth.GenerateKey(req.Name)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	hash, err := auth.HashSecret(rawKey)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}

	user, err := s.deps.Store.CreateUser(r.Context(), req.Name, hash, prefix, req.QuotaTokens)
	if errors.Is(err, control.ErrConflict) {
		writeError(w, http.StatusConflict, "CONFLICT", "User already exists")
		return
	}
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, userWithKey{User: user, APIKey: rawKey})
}

func (s *server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUserID(w, r)
	if !ok {
		return
	}
	user, err := s.deps.Store.GetUser(r.Context(), id)
	if errors.Is(err, control.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUserID(w, r)
	if !ok {
		return
	}
	// quotaTokens uses RawMessage so an explicit null (clear the quota) is
	// distinguishable from an absent field (leave it alone).
	var req struct {
		Name        *string         `json:"name"`
		QuotaTokens json.RawMessage `json:"quotaTokens"`
		Enabled     *bool           `json:"enabled"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	upd := storage.UserUpdate{Name: req.Name, Enabled: req.Enabled}
	if len(req.QuotaTokens) > 0 {
		upd.SetQuota = true
		if !bytes.Equal(req.QuotaTokens, []byte("null")) {
			var quota int64
			if err := json.Unmarshal(req.QuotaTokens, &quota); err != nil {
				writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "quotaTokens must be a number or null")
				return
			}
			upd.QuotaTokens = &quota
		}
	}

	user, err := s.deps.Store.UpdateUser(r.Context(), id, upd)
	if errors.Is(err, control.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUserID(w, r)
	if !ok {
		return
	}
	err := s.deps.Store.DeleteUser(r.Context(), id)
	if errors.Is(err, control.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	s.invalidateKeyCache(id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *server) handleRegenerateKey(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUserID(w, r)
	if !ok {
		return
	}
	user, err := s.deps.Store.GetUser(r.Context(), id)
	if errors.Is(err, control.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	if err != nil {
		writeAdminError(w, r, err)
		return
	}

	rawKey, prefix, err := auth.GenerateKey(user.Name)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	hash, err := auth.HashSecret(rawKey)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}

	user, err = s.deps.Store.ReplaceUserKey(r.Context(), id, hash, prefix)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	s.invalidateKeyCache(id)
	writeJSON(w, http.StatusOK, userWithKey{User: user, APIKey: rawKey})
}

func (s *server) handleResetUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUserID(w, r)
	if !ok {
		return
	}
	previous, err := s.deps.Store.ResetUserUsage(r.Context(), id)
	if errors.Is(err, control.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"previousUsedTokens": previous,
	})
}

// invalidateKeyCache drops the user's cached key verification so a deleted
// user or rotated key takes effect immediately on the /v1 surface.
func (s *server) invalidateKeyCache(userID int64) {
	if inv, ok := s.deps.KeyAuth.(interface{ InvalidateUser(int64) }); ok {
		inv.InvalidateUser(userID)
	}
}
