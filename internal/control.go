// Package control defines domain types and interfaces for the ProxyPal
// control plane. This package has no project imports -- it is the
// dependency root.
package control

import (
	"context"
	"strings"
	"time"
)

// --- Users and API keys ---

// User is an end-user of the proxy with an individual API key.
type User struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	APIKeyHash   string     `json:"-"` // Argon2 PHC string, never exposed
	APIKeyPrefix string     `json:"apiKeyPrefix"`
	QuotaTokens  *int64     `json:"quotaTokens"` // nil = unlimited
	UsedTokens   int64      `json:"usedTokens"`
	Enabled      bool       `json:"enabled"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastUsedAt   *time.Time `json:"lastUsedAt,omitempty"`
}

// Identity is the authenticated /v1 caller, attached to request context.
type Identity struct {
	UserID      int64
	Name        string
	QuotaTokens *int64
	UsedTokens  int64
	Enabled     bool
}

// OverQuota reports whether the identity has consumed its token quota.
func (id *Identity) OverQuota() bool {
	return id.QuotaTokens != nil && id.UsedTokens >= *id.QuotaTokens
}

// --- Sessions ---

// Session is an admin login session.
type Session struct {
	ID           string    `json:"id"`
	CSRFToken    string    `json:"-"`
	ExpiresAt    time.Time `json:"expiresAt"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
}

// --- Providers ---

// Provider is a configured upstream LLM provider.
type Provider struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"providerType"` // "oauth" or "api_key"
	Enabled   bool      `json:"enabled"`
	Settings  string    `json:"settings"` // JSON object
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProviderAccount is a single authenticated account under a provider.
// Tokens is the encrypted OAuth token blob; only ciphertext is persisted.
type ProviderAccount struct {
	ID        int64     `json:"id"`
	Provider  string    `json:"provider"`
	AccountID string    `json:"accountId"`
	Tokens    string    `json:"-"` // base64(nonce||ciphertext||tag)
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
}

// ValidProviders are the provider names the control plane manages.
var ValidProviders = []string{"claude", "chatgpt", "gemini", "copilot"}

// IsValidProvider reports whether name is a managed provider (case-insensitive).
func IsValidProvider(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range ValidProviders {
		if p == lower {
			return true
		}
	}
	return false
}

// --- Usage ---

// UsageLog is a single recorded request through the proxy.
type UsageLog struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"userId"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	TokensInput   int64     `json:"tokensInput"`
	TokensOutput  int64     `json:"tokensOutput"`
	RequestTimeMs int64     `json:"requestTimeMs"`
	Status        string    `json:"status"` // "success" or "error"
	Timestamp     time.Time `json:"timestamp"`
}

// UsageStats are aggregate request/token counts for a period.
type UsageStats struct {
	TotalRequests     int64 `json:"totalRequests"`
	TotalTokensInput  int64 `json:"totalTokensInput"`
	TotalTokensOutput int64 `json:"totalTokensOutput"`
}

// ProviderUsage is aggregate usage for a single provider.
type ProviderUsage struct {
	Provider     string `json:"provider"`
	Requests     int64  `json:"requests"`
	TokensInput  int64  `json:"tokensInput"`
	TokensOutput int64  `json:"tokensOutput"`
}

// DailyUsage is aggregate usage for a single calendar day.
type DailyUsage struct {
	Date         string `json:"date"` // YYYY-MM-DD
	Requests     int64  `json:"requests"`
	TokensInput  int64  `json:"tokensInput"`
	TokensOutput int64  `json:"tokensOutput"`
}

// RequestLog is a usage log joined with the owning user's name.
// UserName is "Unknown" when the user has been deleted.
type RequestLog struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	UserID       int64     `json:"userId"`
	UserName     string    `json:"userName"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	TokensInput  int64     `json:"tokensInput"`
	TokensOutput int64     `json:"tokensOutput"`
	DurationMs   int64     `json:"durationMs"`
	Status       string    `json:"status"`
}

// --- OAuth bridging ---

// OAuthState tracks an in-flight OAuth flow started by an admin.
type OAuthState struct {
	State          string    `json:"state"`
	Provider       string    `json:"provider"`
	AdminSessionID string    `json:"-"`
	RedirectURL    *string   `json:"redirectUrl,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// --- Context keys ---

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
// Identity and Session are set later by auth middleware via mutation of the
// same pointer, avoiding a second context.WithValue + Request.WithContext.
type requestMeta struct {
	RequestID string
	Identity  *Identity
	Session   *Session
}

func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// IdentityFromContext extracts the authenticated /v1 identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	if m := metaFromContext(ctx); m != nil {
		return m.Identity
	}
	return nil
}

// ContextWithIdentity stores the identity in the existing requestMeta if
// present, avoiding a new context.WithValue allocation. Falls back to creating
// new metadata if none exists (e.g., in tests).
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.Identity = id
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{Identity: id})
}

// SessionFromContext extracts the authenticated admin session from context.
func SessionFromContext(ctx context.Context) *Session {
	if m := metaFromContext(ctx); m != nil {
		return m.Session
	}
	return nil
}

// ContextWithSession stores the admin session, mutating existing metadata
// when possible.
func ContextWithSession(ctx context.Context, s *Session) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.Session = s
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{Session: s})
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}
