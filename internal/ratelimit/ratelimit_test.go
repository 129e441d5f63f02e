package ratelimit

import (
	"testing"
	"time"
)

// withClock pins the limiter's clock to a controllable point in time.
func withClock(l *Limiter, t *time.Time) {
	l.now = func() time.Time { return *t }
}

func TestAllowWithinLimit(t *testing.T) {
	t.Parallel()
	l := New(3)

	for i := int64(0); i < 3; i++ {
		res := l.Allow(1)
		if !res.Allowed {
			t.Fatalf("request %d denied", i+1)
		}
		if res.Limit != 3 || res.Remaining != 2-i {
			t.Fatalf("request %d: %+v", i+1, res)
		}
	}

	res := l.Allow(1)
	if res.Allowed {
		t.Fatal("fourth request should be denied")
	}
	if res.Remaining != 0 || res.ResetSeconds < 1 || res.ResetSeconds > 60 {
		t.Fatalf("denied result: %+v", res)
	}
}

func TestDeniedRequestsNotCounted(t *testing.T) {
	t.Parallel()
	now := time.Now()
	l := New(1)
	withClock(l, &now)

	l.Allow(1)
	for i := 0; i < 10; i++ {
		if res := l.Allow(1); res.Allowed {
			t.Fatal("over-limit request allowed")
		}
	}

	// After the window rolls, exactly one request fits again.
	now = now.Add(Window)
	if res := l.Allow(1); !res.Allowed {
		t.Fatal("request after window roll denied")
	}
	if res := l.Allow(1); res.Allowed {
		t.Fatal("second request after roll should be denied")
	}
}

func TestWindowReset(t *testing.T) {
	t.Parallel()
	now := time.Now()
	l := New(2)
	withClock(l, &now)

	l.Allow(1)
	l.Allow(1)
	if res := l.Allow(1); res.Allowed {
		t.Fatal("should be exhausted")
	}

	now = now.Add(61 * time.Second)
	res := l.Allow(1)
	if !res.Allowed || res.Remaining != 1 {
		t.Fatalf("fresh window: %+v", res)
	}
}

func TestUsersAreIndependent(t *testing.T) {
	t.Parallel()
	l := New(1)

	if !l.Allow(1).Allowed {
		t.Fatal("user 1 first request denied")
	}
	if !l.Allow(2).Allowed {
		t.Fatal("user 2 should have its own window")
	}
	if l.Allow(1).Allowed {
		t.Fatal("user 1 second request should be denied")
	}
}

func TestZeroLimitDisables(t *testing.T) {
	t.Parallel()
	l := New(0)

	for i := 0; i < 100; i++ {
		if !l.Allow(1).Allowed {
			t.Fatal("zero limit should allow everything")
		}
	}
}

func TestSetLimit(t *testing.T) {
	t.Parallel()
	l := New(10)

	l.Allow(1)
	l.Allow(1)

	// Lowering below the current count takes effect immediately.
	l.SetLimit(2)
	if res := l.Allow(1); res.Allowed {
		t.Fatal("request past lowered limit allowed")
	}
	if got := l.Limit(); got != 2 {
		t.Fatalf("Limit() = %d, want 2", got)
	}
}

func TestEvictStale(t *testing.T) {
	t.Parallel()
	now := time.Now()
	l := New(5)
	withClock(l, &now)

	l.Allow(1)
	l.Allow(2)

	if n := l.EvictStale(); n != 0 {
		t.Fatalf("evicted %d live windows", n)
	}

	now = now.Add(Window)
	l.Allow(3)
	if n := l.EvictStale(); n != 2 {
		t.Fatalf("evicted %d windows, want 2", n)
	}
	if len(l.windows) != 1 {
		t.Fatalf("windows remaining = %d, want 1", len(l.windows))
	}
}
