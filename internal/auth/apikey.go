// Package auth implements credential handling for the control plane:
// Argon2id hashing for API keys and the admin password, plus an API key
// authenticator with a W-TinyLFU verification cache.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
	control "github.com/proxypal/proxypal/internal"
	"github.com/proxypal/proxypal/internal/storage"
)

const (
	cacheTTL    = 60 * time.Second // how long a verified key skips Argon2
	cacheMaxLen = 10_000           // max concurrent active keys expected per deployment

	keyRandomLen = 16 // random bytes per key, hex-encoded to 32 chars
)

// GenerateKey creates a new API key of the form "sk-<name>-<32 hex chars>"
// and returns the raw key together with its lookup prefix ("sk-<name>").
func GenerateKey(name string) (raw, prefix string, err error) {
	buf := make([]byte, keyRandomLen)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate key material: %w", err)
	}
	raw = fmt.Sprintf("sk-%s-%s", name, hex.EncodeToString(buf))
	return raw, KeyPrefix(raw), nil
}

// KeyPrefix returns the lookup prefix of a raw API key: everything before
// the last dash. A key without a dash is its own prefix.
func KeyPrefix(raw string) string {
	if i := strings.LastIndex(raw, "-"); i >= 0 {
		return raw[:i]
	}
	return raw
}

// APIKeyAuth authenticates requests by API key. Verified keys are cached
// (SHA-256 of the raw key, never the key itself) so the Argon2 check runs
// once per TTL; the user row is still re-read every request so disablement
// and quota changes take effect immediately.
type APIKeyAuth struct {
	store        storage.UserStore
	cache        *otter.Cache[string, int64]
	userIDToHash sync.Map // int64 -> string, for invalidation by user ID
}

// NewAPIKeyAuth returns a new APIKeyAuth backed by store.
func NewAPIKeyAuth(store storage.UserStore) (*APIKeyAuth, error) {
	c, err := otter.New(&otter.Options[string, int64]{
		MaximumSize:      cacheMaxLen,
		ExpiryCalculator: otter.ExpiryWriting[string, int64](cacheTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create auth cache: %w", err)
	}
	return &APIKeyAuth{store: store, cache: c}, nil
}

// Authenticate extracts the caller's API key from the Authorization header,
// verifies it, and returns the caller's Identity. Only the "Bearer <key>"
// scheme is accepted; a bare key is rejected. It reports
// control.ErrUnauthorized for missing or wrong keys, control.ErrForbidden
// for disabled users, and control.ErrQuotaExceeded when the user's token
// quota is spent.
func (a *APIKeyAuth) Authenticate(ctx context.Context, r *http.Request) (*control.Identity, error) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return nil, control.ErrUnauthorized
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "sk-") {
		return nil, control.ErrUnauthorized
	}

	sum := sha256.Sum256([]byte(raw))
	cacheKey := hex.EncodeToString(sum[:])

	var user *control.User
	if id, ok := a.cache.GetIfPresent(cacheKey); ok {
		u, err := a.store.GetUser(ctx, id)
		if err != nil {
			a.cache.Invalidate(cacheKey)
			if errors.Is(err, control.ErrNotFound) {
				return nil, control.ErrUnauthorized
			}
			return nil, err
		}
		user = u
	} else {
		u, err := a.store.GetUserByKeyPrefix(ctx, KeyPrefix(raw))
		if err != nil {
			if errors.Is(err, control.ErrNotFound) {
				return nil, control.ErrUnauthorized
			}
			return nil, err
		}
		if err := VerifySecret(raw, u.APIKeyHash); err != nil {
			if errors.Is(err, ErrHashMismatch) {
				return nil, control.ErrUnauthorized
			}
			return nil, err
		}
		a.cache.Set(cacheKey, u.ID)
		a.userIDToHash.Store(u.ID, cacheKey)
		user = u
	}

	if !user.Enabled {
		return nil, control.ErrForbidden
	}
	identity := &control.Identity{
		UserID:      user.ID,
		Name:        user.Name,
		QuotaTokens: user.QuotaTokens,
		UsedTokens:  user.UsedTokens,
		Enabled:     user.Enabled,
	}
	if identity.OverQuota() {
		return nil, control.ErrQuotaExceeded
	}
	return identity, nil
}

// InvalidateUser drops any cached verification for a user. Called when the
// user's key is regenerated or the user is deleted.
func (a *APIKeyAuth) InvalidateUser(userID int64) {
	if hash, ok := a.userIDToHash.LoadAndDelete(userID); ok {
		a.cache.Invalidate(hash.(string))
	}
}
