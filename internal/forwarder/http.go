package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/dnscache"

	"github.com/proxypal/proxypal/internal/circuitbreaker"
)

const managementKeyHeader = "X-Management-Key"

// ErrCircuitOpen is returned by Forward while the breaker holds the daemon
// unreachable; callers surface it as a 502 without touching the network.
var ErrCircuitOpen = errors.New("daemon unavailable: circuit open")

// NewTransport returns a tuned *http.Transport with connection pooling and
// optional DNS caching. The daemon usually sits on loopback, but the
// management URL can point at another host, so caching still pays off.
func NewTransport(resolver *dnscache.Resolver) *http.Transport {
	t := &http.Transport{
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     200,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if resolver != nil {
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
		}
	}
	return t
}

// HTTPClient implements Client over the daemon's HTTP management API. A
// circuit breaker guards the relay path: sustained failures short-circuit
// Forward until a probe succeeds.
type HTTPClient struct {
	baseURL       string
	managementKey string
	client        *http.Client
	breaker       *circuitbreaker.Breaker
}

// NewHTTPClient returns a client for the daemon at baseURL. A nil httpClient
// gets a pooled transport with DNS caching.
func NewHTTPClient(baseURL, managementKey string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Transport: NewTransport(&dnscache.Resolver{})}
	}
	return &HTTPClient{
		baseURL:       baseURL,
		managementKey: managementKey,
		client:        httpClient,
		breaker:       circuitbreaker.NewBreaker(circuitbreaker.DefaultConfig()),
	}
}

// do performs a management API call and decodes the JSON response into out
// (when out is non-nil). Non-2xx statuses are errors.
func (c *HTTPClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build management request: %w", err)
	}
	req.Header.Set(managementKeyHeader, c.managementKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("management %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return fmt.Errorf("management %s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode management response: %w", err)
	}
	return nil
}

// Health reports the daemon's health.
func (c *HTTPClient) Health(ctx context.Context) (*HealthStatus, error) {
	var h HealthStatus
	if err := c.do(ctx, http.MethodGet, "/v0/management/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ProviderStatuses lists all provider statuses.
func (c *HTTPClient) ProviderStatuses(ctx context.Context) ([]*ProviderStatus, error) {
	var out []*ProviderStatus
	if err := c.do(ctx, http.MethodGet, "/v0/management/providers", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetProviderStatus returns one provider's status.
func (c *HTTPClient) GetProviderStatus(ctx context.Context, provider string) (*ProviderStatus, error) {
	var out ProviderStatus
	if err := c.do(ctx, http.MethodGet, "/v0/management/providers/"+url.PathEscape(provider), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartOAuth begins an OAuth flow with the daemon.
func (c *HTTPClient) StartOAuth(ctx context.Context, provider string, isWebUI bool) (string, string, error) {
	var out struct {
		AuthURL string `json:"authUrl"`
		State   string `json:"state"`
	}
	path := fmt.Sprintf("/v0/management/%s-auth-url?is_webui=%t", url.PathEscape(provider), isWebUI)
	if err := c.do(ctx, http.MethodGet, path, &out); err != nil {
		return "", "", err
	}
	return out.AuthURL, out.State, nil
}

// CheckOAuthStatus reports whether an OAuth flow completed.
func (c *HTTPClient) CheckOAuthStatus(ctx context.Context, state string) (bool, error) {
	var out struct {
		Completed bool `json:"completed"`
	}
	if err := c.do(ctx, http.MethodGet, "/v0/management/get-auth-status?state="+url.QueryEscape(state), &out); err != nil {
		return false, err
	}
	return out.Completed, nil
}

// SyncProvider triggers a daemon configuration reload. The daemon reloads
// all providers regardless of which one changed.
func (c *HTTPClient) SyncProvider(ctx context.Context, _ string) error {
	return c.do(ctx, http.MethodPost, "/v0/management/reload", nil)
}

// RemoveProvider deletes the daemon's credentials for a provider.
func (c *HTTPClient) RemoveProvider(ctx context.Context, provider string) error {
	return c.do(ctx, http.MethodDelete, "/v0/management/auth-files?provider="+url.QueryEscape(provider), nil)
}

// Forward relays an inference request to the daemon and buffers the full
// response. Host and Connection headers stay behind; the daemon sets its own.
func (c *HTTPClient) Forward(ctx context.Context, method, path string, header http.Header, body []byte) (*Response, error) {
	if !c.breaker.Allow() {
		return nil, ErrCircuitOpen
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build forward request: %w", err)
	}
	for key, vals := range header {
		switch http.CanonicalHeaderKey(key) {
		case "Host", "Connection":
			continue
		}
		req.Header[http.CanonicalHeaderKey(key)] = vals
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.breaker.RecordError(circuitbreaker.ClassifyError(err))
		return nil, fmt.Errorf("forward %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.RecordError(circuitbreaker.ClassifyError(err))
		return nil, fmt.Errorf("read forwarded response: %w", err)
	}

	if weight := circuitbreaker.ClassifyStatus(resp.StatusCode); weight > 0 {
		c.breaker.RecordError(weight)
	} else {
		c.breaker.RecordSuccess()
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   respBody,
	}, nil
}
