package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemory_GetSetDelete(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(100, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, ok := m.Get(ctx, "provider_status:claude"); ok {
		t.Error("cold cache should miss")
	}

	m.Set(ctx, "provider_status:claude", []byte(`{"status":"healthy"}`), time.Minute)
	// otter applies writes asynchronously; give the entry time to land.
	time.Sleep(50 * time.Millisecond)

	val, ok := m.Get(ctx, "provider_status:claude")
	if !ok {
		t.Fatal("warm cache should hit")
	}
	if string(val) != `{"status":"healthy"}` {
		t.Errorf("value = %q", val)
	}

	m.Delete(ctx, "provider_status:claude")
	if _, ok := m.Get(ctx, "provider_status:claude"); ok {
		t.Error("invalidated key should miss")
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(100, time.Hour) // otter ceiling far above the entry TTL
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	m.Set(ctx, "provider_status:gemini", []byte(`{}`), 50*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	// The per-entry deadline governs, not the otter ceiling.
	time.Sleep(50 * time.Millisecond)
	if _, ok := m.Get(ctx, "provider_status:gemini"); ok {
		t.Error("stale status should have expired")
	}
}

func TestMemory_Purge(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(100, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	m.Set(ctx, "provider_status:claude", []byte(`{}`), time.Minute)
	m.Set(ctx, "provider_status:chatgpt", []byte(`{}`), time.Minute)
	time.Sleep(50 * time.Millisecond)

	m.Purge(ctx)

	if _, ok := m.Get(ctx, "provider_status:claude"); ok {
		t.Error("purge should drop all keys")
	}
	if _, ok := m.Get(ctx, "provider_status:chatgpt"); ok {
		t.Error("purge should drop all keys")
	}
}
