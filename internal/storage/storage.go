// Package storage defines persistence interfaces for the control plane.
package storage

import (
	"context"

	control "github.com/proxypal/proxypal/internal"
)

// UserUpdate describes a partial user update. Nil fields are left unchanged.
// SetQuota distinguishes "leave quota alone" from "clear quota" (QuotaTokens
// nil with SetQuota true).
type UserUpdate struct {
	Name        *string
	QuotaTokens *int64
	SetQuota    bool
	Enabled     *bool
}

// UserStore manages end-user persistence.
type UserStore interface {
	CreateUser(ctx context.Context, name, keyHash, keyPrefix string, quotaTokens *int64) (*control.User, error)
	GetUser(ctx context.Context, id int64) (*control.User, error)
	GetUserByKeyPrefix(ctx context.Context, prefix string) (*control.User, error)
	ListUsers(ctx context.Context, page, limit int) ([]*control.User, int64, error)
	UpdateUser(ctx context.Context, id int64, upd UserUpdate) (*control.User, error)
	DeleteUser(ctx context.Context, id int64) error
	ReplaceUserKey(ctx context.Context, id int64, keyHash, keyPrefix string) (*control.User, error)
	ResetUserUsage(ctx context.Context, id int64) (previous int64, err error)
}

// SessionStore manages admin login sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, id, csrfToken string, ttlDays int) (*control.Session, error)
	GetSession(ctx context.Context, id string) (*control.Session, error)
	TouchSession(ctx context.Context, id string) error
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// SettingStore is a key-value store for control-plane settings.
type SettingStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// ProviderUpdate describes a partial provider update.
type ProviderUpdate struct {
	Enabled  *bool
	Settings *string
}

// ProviderStore manages providers and their accounts.
type ProviderStore interface {
	CreateProvider(ctx context.Context, name, typ string, enabled bool, settings string) (*control.Provider, error)
	GetProviderByName(ctx context.Context, name string) (*control.Provider, error)
	ListProviders(ctx context.Context) ([]*control.Provider, error)
	UpdateProvider(ctx context.Context, name string, upd ProviderUpdate) (*control.Provider, error)
	DeleteProvider(ctx context.Context, name string) error

	CreateProviderAccount(ctx context.Context, provider, accountID string, tokens []byte) (*control.ProviderAccount, error)
	ListProviderAccounts(ctx context.Context, provider string) ([]*control.ProviderAccount, error)
	GetProviderAccountTokens(ctx context.Context, id int64) ([]byte, error)
	UpdateProviderAccountTokens(ctx context.Context, id int64, tokens []byte) error
	SetProviderAccountEnabled(ctx context.Context, id int64, enabled bool) error
	DeleteProviderAccount(ctx context.Context, id int64) error
	CountProviderAccounts(ctx context.Context, provider string) (int64, error)
}

// LogFilter narrows request log queries. Zero values mean no filtering.
type LogFilter struct {
	UserID   *int64
	Provider string
	Status   string
}

// UsageStore manages usage accounting.
type UsageStore interface {
	// LogUsage inserts a usage row and bumps the user's used_tokens by
	// tokensInput+tokensOutput in a single transaction.
	LogUsage(ctx context.Context, userID int64, provider, model string, tokensInput, tokensOutput, requestTimeMs int64, status string) error
	UsageStats(ctx context.Context, period string) (*control.UsageStats, error)
	UserUsageStats(ctx context.Context, userID int64, period string) (*control.UsageStats, error)
	UsageByProvider(ctx context.Context, period string) ([]*control.ProviderUsage, error)
	DailyUsage(ctx context.Context, days int, userID *int64, provider string) ([]*control.DailyUsage, error)
	UsageLogs(ctx context.Context, limit, offset int64, userID *int64, provider string) ([]*control.UsageLog, int64, error)
	RequestLogs(ctx context.Context, limit, offset int64, f LogFilter) ([]*control.RequestLog, int64, error)
	TotalRequests(ctx context.Context) (int64, error)
}

// OAuthStateStore manages in-flight OAuth flow states.
type OAuthStateStore interface {
	CreateOAuthState(ctx context.Context, state, provider, adminSessionID string, redirectURL *string, ttlMinutes int) error
	// GetOAuthState peeks at a state without consuming it.
	GetOAuthState(ctx context.Context, state string) (*control.OAuthState, error)
	// ConsumeOAuthState returns and deletes the state. Expired or unknown
	// states yield control.ErrNotFound.
	ConsumeOAuthState(ctx context.Context, state string) (*control.OAuthState, error)
	DeleteExpiredOAuthStates(ctx context.Context) (int64, error)
}

// Store combines all storage interfaces.
type Store interface {
	UserStore
	SessionStore
	SettingStore
	ProviderStore
	UsageStore
	OAuthStateStore
	Ping(ctx context.Context) error
	Close() error
}
