package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/proxypal/proxypal/internal/ratelimit"
	"github.com/proxypal/proxypal/internal/storage"
)

const (
	sessionSweepInterval    = 10 * time.Minute
	oauthStateSweepInterval = 5 * time.Minute
	limiterSweepInterval    = 5 * time.Minute
)

// SessionSweeper periodically deletes expired admin sessions.
type SessionSweeper struct {
	store    storage.SessionStore
	interval time.Duration
}

// NewSessionSweeper creates a sweeper with the default interval.
func NewSessionSweeper(store storage.SessionStore) *SessionSweeper {
	return &SessionSweeper{store: store, interval: sessionSweepInterval}
}

// Run deletes expired sessions on a periodic schedule.
func (w *SessionSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SessionSweeper) sweep(ctx context.Context) {
	n, err := w.store.DeleteExpiredSessions(ctx)
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "session sweep failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if n > 0 {
		slog.Info("expired sessions removed", "count", n)
	}
}

// OAuthStateSweeper periodically deletes expired in-flight OAuth states.
type OAuthStateSweeper struct {
	store    storage.OAuthStateStore
	interval time.Duration
}

// NewOAuthStateSweeper creates a sweeper with the default interval.
func NewOAuthStateSweeper(store storage.OAuthStateStore) *OAuthStateSweeper {
	return &OAuthStateSweeper{store: store, interval: oauthStateSweepInterval}
}

// Run deletes expired OAuth states on a periodic schedule.
func (w *OAuthStateSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *OAuthStateSweeper) sweep(ctx context.Context) {
	n, err := w.store.DeleteExpiredOAuthStates(ctx)
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "oauth state sweep failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if n > 0 {
		slog.Info("expired oauth states removed", "count", n)
	}
}

// LimiterSweeper evicts finished rate limit windows so idle users do not
// accumulate in memory.
type LimiterSweeper struct {
	limiter  *ratelimit.Limiter
	interval time.Duration
}

// NewLimiterSweeper creates a sweeper with the default interval.
func NewLimiterSweeper(limiter *ratelimit.Limiter) *LimiterSweeper {
	return &LimiterSweeper{limiter: limiter, interval: limiterSweepInterval}
}

// Run evicts stale windows on a periodic schedule.
func (w *LimiterSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.limiter.EvictStale()
		}
	}
}
