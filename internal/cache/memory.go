package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"
)

// entry pairs cached bytes with their expiry deadline.
type entry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an otter-backed W-TinyLFU cache. The server fronts provider
// status reads with it so the polling admin UI does not hammer the daemon.
type Memory struct {
	cache *otter.Cache[string, entry]
}

// NewMemory returns a cache bounded to maxSize entries. defaultTTL is the
// ceiling otter applies on write; per-entry TTLs passed to Set are checked
// on read and may be shorter.
func NewMemory(maxSize int, defaultTTL time.Duration) (*Memory, error) {
	c, err := otter.New[string, entry](&otter.Options[string, entry]{
		MaximumSize:      maxSize,
		ExpiryCalculator: otter.ExpiryWriting[string, entry](defaultTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Memory{cache: c}, nil
}

// Get returns the bytes stored under key unless the entry has expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	e, ok := m.cache.GetIfPresent(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		m.cache.Invalidate(key)
		return nil, false
	}
	return e.data, true
}

// Set stores val under key for ttl.
func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	m.cache.Set(key, entry{
		data:      val,
		expiresAt: time.Now().Add(ttl),
	})
}

// Delete drops a single key.
func (m *Memory) Delete(_ context.Context, key string) {
	m.cache.Invalidate(key)
}

// Purge drops every cached entry, e.g. after a daemon-wide reload.
func (m *Memory) Purge(_ context.Context) {
	m.cache.InvalidateAll()
}
