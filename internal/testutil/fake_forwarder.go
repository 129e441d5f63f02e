// Package testutil provides configurable test fakes for control plane
// interfaces: the forwarding daemon client and the process manager.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/proxypal/proxypal/internal/forwarder"
)

// FakeForwarder is a configurable forwarder.Client that records every call
// in a human-readable log, e.g. "start_oauth:gemini:true".
type FakeForwarder struct {
	mu sync.Mutex

	HealthResponse   *forwarder.HealthStatus
	ProviderList     []*forwarder.ProviderStatus
	OAuthURL         string
	OAuthState       string
	OAuthCompleted   bool
	ForwardResponse  *forwarder.Response
	ForwardErr       error
	SyncErr          error

	calls []string
}

func (f *FakeForwarder) log(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

// Calls returns a copy of the recorded call log.
func (f *FakeForwarder) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Health returns HealthResponse or an error when unset.
func (f *FakeForwarder) Health(context.Context) (*forwarder.HealthStatus, error) {
	f.log("health_check")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.HealthResponse == nil {
		return nil, errors.New("no fake health response configured")
	}
	cp := *f.HealthResponse
	return &cp, nil
}

// ProviderStatuses returns the configured provider list.
func (f *FakeForwarder) ProviderStatuses(context.Context) ([]*forwarder.ProviderStatus, error) {
	f.log("list_provider_statuses")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*forwarder.ProviderStatus(nil), f.ProviderList...), nil
}

// GetProviderStatus finds a provider in the configured list by name.
func (f *FakeForwarder) GetProviderStatus(_ context.Context, provider string) (*forwarder.ProviderStatus, error) {
	f.log("get_provider_status:" + provider)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.ProviderList {
		if s.Name == provider {
			cp := *s
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("provider not found: %s", provider)
}

// StartOAuth returns the configured URL and state.
func (f *FakeForwarder) StartOAuth(_ context.Context, provider string, isWebUI bool) (string, string, error) {
	f.log(fmt.Sprintf("start_oauth:%s:%t", provider, isWebUI))
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OAuthURL == "" {
		return "", "", errors.New("no fake oauth response configured")
	}
	return f.OAuthURL, f.OAuthState, nil
}

// CheckOAuthStatus returns the configured completion flag.
func (f *FakeForwarder) CheckOAuthStatus(_ context.Context, state string) (bool, error) {
	f.log("check_oauth_status:" + state)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.OAuthCompleted, nil
}

// SyncProvider records the call and returns SyncErr.
func (f *FakeForwarder) SyncProvider(_ context.Context, provider string) error {
	f.log("sync_provider:" + provider)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.SyncErr
}

// RemoveProvider records the call.
func (f *FakeForwarder) RemoveProvider(_ context.Context, provider string) error {
	f.log("remove_provider:" + provider)
	return nil
}

// Forward returns the configured response or error.
func (f *FakeForwarder) Forward(_ context.Context, method, path string, _ http.Header, _ []byte) (*forwarder.Response, error) {
	f.log(fmt.Sprintf("forward_request:%s:%s", method, path))
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ForwardErr != nil {
		return nil, f.ForwardErr
	}
	if f.ForwardResponse == nil {
		return nil, errors.New("no fake forward response configured")
	}
	cp := *f.ForwardResponse
	return &cp, nil
}
