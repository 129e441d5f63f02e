package control

import (
	"context"
	"testing"
)

func TestIsValidProvider(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		want bool
	}{
		{"claude", true},
		{"chatgpt", true},
		{"gemini", true},
		{"copilot", true},
		{"Claude", true},
		{"GEMINI", true},
		{"openai", false},
		{"", false},
		{"claude ", false},
	}
	for _, tc := range cases {
		if got := IsValidProvider(tc.name); got != tc.want {
			t.Errorf("IsValidProvider(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestOverQuota(t *testing.T) {
	t.Parallel()

	quota := int64(100)
	cases := []struct {
		name string
		id   Identity
		want bool
	}{
		{"no quota", Identity{UsedTokens: 1 << 40}, false},
		{"under", Identity{QuotaTokens: &quota, UsedTokens: 99}, false},
		{"at limit", Identity{QuotaTokens: &quota, UsedTokens: 100}, true},
		{"over", Identity{QuotaTokens: &quota, UsedTokens: 150}, true},
	}
	for _, tc := range cases {
		if got := tc.id.OverQuota(); got != tc.want {
			t.Errorf("%s: OverQuota() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := ContextWithRequestID(context.Background(), "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("RequestIDFromContext = %q, want %q", got, "req-1")
	}

	id := &Identity{UserID: 7, Name: "alice"}
	ctx2 := ContextWithIdentity(ctx, id)
	if ctx2 != ctx {
		t.Error("expected identity stored by mutation, got new context")
	}
	if got := IdentityFromContext(ctx2); got != id {
		t.Fatalf("IdentityFromContext = %+v, want %+v", got, id)
	}

	sess := &Session{ID: "s-1"}
	ctx3 := ContextWithSession(ctx2, sess)
	if got := SessionFromContext(ctx3); got != sess {
		t.Fatalf("SessionFromContext = %+v, want %+v", got, sess)
	}

	// Request ID survives the mutations.
	if got := RequestIDFromContext(ctx3); got != "req-1" {
		t.Fatalf("RequestIDFromContext after auth = %q, want %q", got, "req-1")
	}
}

func TestContextEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if IdentityFromContext(ctx) != nil {
		t.Error("IdentityFromContext on empty context should be nil")
	}
	if SessionFromContext(ctx) != nil {
		t.Error("SessionFromContext on empty context should be nil")
	}
	if RequestIDFromContext(ctx) != "" {
		t.Error("RequestIDFromContext on empty context should be empty")
	}
}
