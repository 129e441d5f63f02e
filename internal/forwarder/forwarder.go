// Package forwarder is the client for the forwarding daemon's management
// API. The control plane never talks to LLM providers itself; everything
// goes through the daemon, authenticated with a shared management key.
package forwarder

import (
	"context"
	"net/http"
)

// HealthStatus mirrors the daemon's health endpoint payload.
type HealthStatus struct {
	Running       bool    `json:"running"`
	UptimeSeconds *int64  `json:"uptimeSeconds"`
	Version       *string `json:"version"`
}

// ProviderStatus describes one provider as the daemon sees it.
type ProviderStatus struct {
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	AccountsCount int64   `json:"accountsCount"`
	LastError     *string `json:"lastError"`
}

// Response is a relayed daemon response: status, headers, and the full body.
// The daemon's responses are small enough that buffering beats streaming.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Client talks to the forwarding daemon's management API.
type Client interface {
	// Health reports whether the daemon is up and for how long.
	Health(ctx context.Context) (*HealthStatus, error)

	// ProviderStatuses lists every provider the daemon knows about.
	ProviderStatuses(ctx context.Context) ([]*ProviderStatus, error)

	// GetProviderStatus returns the status of a single provider.
	GetProviderStatus(ctx context.Context, provider string) (*ProviderStatus, error)

	// StartOAuth begins an OAuth flow for a provider and returns the
	// authorization URL plus the daemon's state token.
	StartOAuth(ctx context.Context, provider string, isWebUI bool) (authURL, state string, err error)

	// CheckOAuthStatus reports whether the flow identified by state finished.
	CheckOAuthStatus(ctx context.Context, state string) (bool, error)

	// SyncProvider asks the daemon to reload its configuration. The daemon
	// reloads everything at once, so the provider argument is advisory.
	SyncProvider(ctx context.Context, provider string) error

	// RemoveProvider deletes the daemon's stored credentials for a provider.
	RemoveProvider(ctx context.Context, provider string) error

	// Forward relays an inference request to the daemon verbatim.
	Forward(ctx context.Context, method, path string, header http.Header, body []byte) (*Response, error)
}
