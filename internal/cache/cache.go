// Package cache provides short-lived in-memory caching for daemon state
// the admin UI polls, keeping repeated status reads off the daemon.
package cache

import (
	"context"
	"time"
)

// Cache stores serialized daemon replies by key.
type Cache interface {
	// Get returns the cached bytes for key if present and fresh.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores val under key for ttl.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	// Delete drops a single key.
	Delete(ctx context.Context, key string)
	// Purge drops every cached entry.
	Purge(ctx context.Context)
}
