package sqlite

import (
	"bytes"
	"context"
	"errors"
	"testing"

	control "github.com/proxypal/proxypal/internal"
	"github.com/proxypal/proxypal/internal/crypto"
	"github.com/proxypal/proxypal/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	c, err := crypto.New(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("test cipher: %v", err)
	}
	s, err := New(t.TempDir()+"/test.db", c)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestUser(t *testing.T, s *Store, name string, quota *int64) *control.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), name, "$argon2id$stub", "sk-"+name, quota)
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func TestUserCRUD(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	quota := int64(1000)
	u := createTestUser(t, s, "alice", &quota)
	if u.ID == 0 || u.Name != "alice" || !u.Enabled {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.QuotaTokens == nil || *u.QuotaTokens != 1000 {
		t.Fatalf("quota not persisted: %+v", u.QuotaTokens)
	}

	// Duplicate name conflicts.
	if _, err := s.CreateUser(ctx, "alice", "h", "p", nil); !errors.Is(err, control.ErrConflict) {
		t.Fatalf("duplicate name: got %v, want ErrConflict", err)
	}

	// Prefix lookup.
	got, err := s.GetUserByKeyPrefix(ctx, "sk-alice")
	if err != nil || got.ID != u.ID {
		t.Fatalf("GetUserByKeyPrefix: %v, %+v", err, got)
	}

	// Partial update: disable + clear quota.
	enabled := false
	upd, err := s.UpdateUser(ctx, u.ID, storage.UserUpdate{Enabled: &enabled, SetQuota: true})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if upd.Enabled || upd.QuotaTokens != nil {
		t.Fatalf("update not applied: %+v", upd)
	}

	// Unknown user.
	if _, err := s.GetUser(ctx, 9999); !errors.Is(err, control.ErrNotFound) {
		t.Fatalf("unknown user: got %v, want ErrNotFound", err)
	}
	if _, err := s.UpdateUser(ctx, 9999, storage.UserUpdate{Enabled: &enabled}); !errors.Is(err, control.ErrNotFound) {
		t.Fatalf("update unknown user: got %v, want ErrNotFound", err)
	}

	// Delete.
	if err := s.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if err := s.DeleteUser(ctx, u.ID); !errors.Is(err, control.ErrNotFound) {
		t.Fatalf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestListUsersPagination(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, name := range []string{"u1", "u2", "u3", "u4", "u5"} {
		createTestUser(t, s, name, nil)
	}

	users, total, err := s.ListUsers(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if total != 5 || len(users) != 2 {
		t.Fatalf("page 1: total=%d len=%d, want 5/2", total, len(users))
	}

	users, _, err = s.ListUsers(context.Background(), 3, 2)
	if err != nil {
		t.Fatalf("ListUsers page 3: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("page 3: len=%d, want 1", len(users))
	}
}

func TestReplaceUserKeyAndResetUsage(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	u := createTestUser(t, s, "bob", nil)

	if err := s.LogUsage(ctx, u.ID, "openai", "gpt-4o", 100, 50, 12, "success"); err != nil {
		t.Fatalf("LogUsage: %v", err)
	}

	upd, err := s.ReplaceUserKey(ctx, u.ID, "$argon2id$new", "sk-bob2")
	if err != nil {
		t.Fatalf("ReplaceUserKey: %v", err)
	}
	if upd.APIKeyPrefix != "sk-bob2" {
		t.Fatalf("prefix not replaced: %q", upd.APIKeyPrefix)
	}
	// Usage counters survive a key rotation.
	if upd.UsedTokens != 150 {
		t.Fatalf("used tokens after rotation = %d, want 150", upd.UsedTokens)
	}

	prev, err := s.ResetUserUsage(ctx, u.ID)
	if err != nil {
		t.Fatalf("ResetUserUsage: %v", err)
	}
	if prev != 150 {
		t.Fatalf("previous used tokens = %d, want 150", prev)
	}
	after, _ := s.GetUser(ctx, u.ID)
	if after.UsedTokens != 0 {
		t.Fatalf("used tokens after reset = %d, want 0", after.UsedTokens)
	}

	if _, err := s.ResetUserUsage(ctx, 9999); !errors.Is(err, control.ErrNotFound) {
		t.Fatalf("reset unknown user: got %v, want ErrNotFound", err)
	}
}

func TestLogUsageAccounting(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	u := createTestUser(t, s, "carol", nil)

	if err := s.LogUsage(ctx, u.ID, "anthropic", "claude-sonnet-4-20250514", 100, 50, 42, "success"); err != nil {
		t.Fatalf("LogUsage: %v", err)
	}
	if err := s.LogUsage(ctx, u.ID, "openai", "gpt-4o", 10, 5, 7, "error"); err != nil {
		t.Fatalf("LogUsage: %v", err)
	}

	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UsedTokens != 165 {
		t.Fatalf("used tokens = %d, want 165", got.UsedTokens)
	}
	if got.LastUsedAt == nil {
		t.Fatal("last_used_at not set")
	}

	stats, err := s.UsageStats(ctx, "all")
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalRequests != 2 || stats.TotalTokensInput != 110 || stats.TotalTokensOutput != 55 {
		t.Fatalf("stats = %+v", stats)
	}

	byProv, err := s.UsageByProvider(ctx, "month")
	if err != nil {
		t.Fatal(err)
	}
	if len(byProv) != 2 {
		t.Fatalf("providers = %d, want 2", len(byProv))
	}

	total, err := s.TotalRequests(ctx)
	if err != nil || total != 2 {
		t.Fatalf("TotalRequests = %d, %v", total, err)
	}
}

func TestUsageCascadeOnUserDelete(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	u := createTestUser(t, s, "dave", nil)
	if err := s.LogUsage(ctx, u.ID, "google", "gemini-2.5-pro", 1, 2, 3, "success"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteUser(ctx, u.ID); err != nil {
		t.Fatal(err)
	}

	total, err := s.TotalRequests(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Fatalf("usage logs should cascade on user delete, got %d rows", total)
	}
}

func TestRequestLogsFiltersAndJoin(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	u1 := createTestUser(t, s, "erin", nil)
	u2 := createTestUser(t, s, "frank", nil)
	s.LogUsage(ctx, u1.ID, "openai", "gpt-4o", 10, 1, 5, "success")
	s.LogUsage(ctx, u1.ID, "anthropic", "claude-sonnet-4-20250514", 20, 2, 5, "error")
	s.LogUsage(ctx, u2.ID, "openai", "gpt-4o-mini", 30, 3, 5, "success")

	logs, total, err := s.RequestLogs(ctx, 100, 0, storage.LogFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(logs) != 3 {
		t.Fatalf("unfiltered: total=%d len=%d", total, len(logs))
	}

	logs, total, err = s.RequestLogs(ctx, 100, 0, storage.LogFilter{UserID: &u1.ID, Status: "error"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || logs[0].UserName != "erin" || logs[0].Provider != "anthropic" {
		t.Fatalf("filtered: total=%d logs=%+v", total, logs)
	}

	logs, _, err = s.RequestLogs(ctx, 100, 0, storage.LogFilter{Provider: "openai"})
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 {
		t.Fatalf("provider filter: len=%d, want 2", len(logs))
	}
}

func TestUsageLogsPagination(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	u := createTestUser(t, s, "gina", nil)
	for i := 0; i < 5; i++ {
		s.LogUsage(ctx, u.ID, "openai", "gpt-4o", 1, 1, 1, "success")
	}

	logs, total, err := s.UsageLogs(ctx, 2, 0, &u.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 || len(logs) != 2 {
		t.Fatalf("total=%d len=%d, want 5/2", total, len(logs))
	}

	logs, total, err = s.UsageLogs(ctx, 10, 0, nil, "anthropic")
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 || len(logs) != 0 {
		t.Fatalf("provider miss: total=%d len=%d", total, len(logs))
	}
}

func TestDailyUsage(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	u := createTestUser(t, s, "hank", nil)
	s.LogUsage(ctx, u.ID, "openai", "gpt-4o", 5, 5, 1, "success")
	s.LogUsage(ctx, u.ID, "google", "gemini-2.5-pro", 7, 3, 1, "success")

	daily, err := s.DailyUsage(ctx, 7, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(daily) != 1 {
		t.Fatalf("days = %d, want 1", len(daily))
	}
	if daily[0].Requests != 2 || daily[0].TokensInput != 12 || daily[0].TokensOutput != 8 {
		t.Fatalf("daily = %+v", daily[0])
	}

	daily, err = s.DailyUsage(ctx, 7, &u.ID, "google")
	if err != nil {
		t.Fatal(err)
	}
	if len(daily) != 1 || daily[0].Requests != 1 {
		t.Fatalf("filtered daily = %+v", daily)
	}
}

func TestSessions(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "sess-1", "csrf-1", 7)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.CSRFToken != "csrf-1" {
		t.Fatalf("csrf = %q", sess.CSRFToken)
	}

	got, err := s.GetSession(ctx, "sess-1")
	if err != nil || got.ID != "sess-1" {
		t.Fatalf("GetSession: %v, %+v", err, got)
	}

	if err := s.TouchSession(ctx, "sess-1"); err != nil {
		t.Fatalf("TouchSession: %v", err)
	}

	if err := s.DeleteSession(ctx, "sess-1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := s.GetSession(ctx, "sess-1"); !errors.Is(err, control.ErrNotFound) {
		t.Fatalf("deleted session: got %v, want ErrNotFound", err)
	}
	// Idempotent delete.
	if err := s.DeleteSession(ctx, "sess-1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestExpiredSessionNotReturned(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	// ttl 0 days = already at the expiry boundary.
	if _, err := s.CreateSession(ctx, "sess-exp", "c", 0); err == nil {
		if _, err := s.GetSession(ctx, "sess-exp"); !errors.Is(err, control.ErrNotFound) {
			t.Fatalf("expired session returned: %v", err)
		}
	}

	n, err := s.DeleteExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d sessions, want 1", n)
	}
}

func TestSettings(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSetting(ctx, "missing"); !errors.Is(err, control.ErrNotFound) {
		t.Fatalf("missing setting: got %v, want ErrNotFound", err)
	}

	if err := s.SetSetting(ctx, "k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSetting(ctx, "k", "v2"); err != nil {
		t.Fatal(err)
	}
	v, err := s.GetSetting(ctx, "k")
	if err != nil || v != "v2" {
		t.Fatalf("GetSetting = %q, %v", v, err)
	}
}

func TestProvidersAndAccounts(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProvider(ctx, "claude", "oauth", true, "")
	if err != nil {
		t.Fatalf("CreateProvider: %v", err)
	}
	if p.Settings != "{}" || p.Type != "oauth" || !p.Enabled {
		t.Fatalf("provider = %+v", p)
	}

	if _, err := s.CreateProvider(ctx, "claude", "oauth", true, ""); !errors.Is(err, control.ErrConflict) {
		t.Fatalf("duplicate provider: got %v, want ErrConflict", err)
	}

	blob := []byte(`{"access_token":"secret"}`)
	a, err := s.CreateProviderAccount(ctx, "claude", "user@example.com", blob)
	if err != nil {
		t.Fatalf("CreateProviderAccount: %v", err)
	}
	if _, err := s.CreateProviderAccount(ctx, "claude", "user@example.com", []byte("x")); !errors.Is(err, control.ErrConflict) {
		t.Fatalf("duplicate account: got %v, want ErrConflict", err)
	}

	// Tokens are encrypted at rest and decrypted on read.
	var stored string
	if err := s.read.QueryRow(`SELECT tokens FROM provider_accounts WHERE id=?`, a.ID).Scan(&stored); err != nil {
		t.Fatal(err)
	}
	if bytes.Contains([]byte(stored), []byte("secret")) {
		t.Fatal("tokens stored in plaintext")
	}
	tokens, err := s.GetProviderAccountTokens(ctx, a.ID)
	if err != nil || !bytes.Equal(tokens, blob) {
		t.Fatalf("tokens = %q, %v", tokens, err)
	}

	// Token rotation re-encrypts.
	rotated := []byte(`{"access_token":"rotated"}`)
	if err := s.UpdateProviderAccountTokens(ctx, a.ID, rotated); err != nil {
		t.Fatalf("UpdateProviderAccountTokens: %v", err)
	}
	tokens, err = s.GetProviderAccountTokens(ctx, a.ID)
	if err != nil || !bytes.Equal(tokens, rotated) {
		t.Fatalf("rotated tokens = %q, %v", tokens, err)
	}
	if err := s.UpdateProviderAccountTokens(ctx, 9999, rotated); !errors.Is(err, control.ErrNotFound) {
		t.Fatalf("rotate unknown account: got %v, want ErrNotFound", err)
	}

	n, err := s.CountProviderAccounts(ctx, "claude")
	if err != nil || n != 1 {
		t.Fatalf("count = %d, %v", n, err)
	}

	if err := s.SetProviderAccountEnabled(ctx, a.ID, false); err != nil {
		t.Fatal(err)
	}
	accounts, err := s.ListProviderAccounts(ctx, "claude")
	if err != nil || len(accounts) != 1 || accounts[0].Enabled {
		t.Fatalf("accounts = %+v, %v", accounts, err)
	}

	// Partial provider update.
	enabled := false
	settings := `{"region":"us"}`
	upd, err := s.UpdateProvider(ctx, "claude", storage.ProviderUpdate{Enabled: &enabled, Settings: &settings})
	if err != nil {
		t.Fatal(err)
	}
	if upd.Enabled || upd.Settings != settings {
		t.Fatalf("update not applied: %+v", upd)
	}

	// Delete removes accounts too.
	if err := s.DeleteProvider(ctx, "claude"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetProviderByName(ctx, "claude"); !errors.Is(err, control.ErrNotFound) {
		t.Fatalf("provider after delete: %v", err)
	}
	n, _ = s.CountProviderAccounts(ctx, "claude")
	if n != 0 {
		t.Fatalf("accounts after provider delete = %d, want 0", n)
	}

	if err := s.DeleteProvider(ctx, "claude"); !errors.Is(err, control.ErrNotFound) {
		t.Fatalf("second provider delete: %v", err)
	}
}

func TestOAuthStates(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	redirect := "https://app.example.com/done"
	if err := s.CreateOAuthState(ctx, "st-1", "claude", "sess-1", &redirect, 15); err != nil {
		t.Fatalf("CreateOAuthState: %v", err)
	}

	// Peek does not consume.
	st, err := s.GetOAuthState(ctx, "st-1")
	if err != nil || st.Provider != "claude" {
		t.Fatalf("GetOAuthState: %+v, %v", st, err)
	}

	st, err = s.ConsumeOAuthState(ctx, "st-1")
	if err != nil {
		t.Fatalf("ConsumeOAuthState: %v", err)
	}
	if st.Provider != "claude" || st.RedirectURL == nil || *st.RedirectURL != redirect {
		t.Fatalf("state = %+v", st)
	}

	// Single use.
	if _, err := s.ConsumeOAuthState(ctx, "st-1"); !errors.Is(err, control.ErrNotFound) {
		t.Fatalf("second consume: got %v, want ErrNotFound", err)
	}

	// Expired states are unconsumable and swept.
	if err := s.CreateOAuthState(ctx, "st-2", "gemini", "sess-1", nil, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ConsumeOAuthState(ctx, "st-2"); !errors.Is(err, control.ErrNotFound) {
		t.Fatalf("expired consume: got %v, want ErrNotFound", err)
	}
	n, err := s.DeleteExpiredOAuthStates(ctx)
	if err != nil || n != 1 {
		t.Fatalf("sweep = %d, %v", n, err)
	}
}

func TestInMemoryDSN(t *testing.T) {
	t.Parallel()
	c, err := crypto.New(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatal(err)
	}
	s, err := New(":memory:", c)
	if err != nil {
		t.Fatalf("open :memory: store: %v", err)
	}
	defer s.Close()

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	createTestUser(t, s, "mem", nil)
}
