package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	control "github.com/proxypal/proxypal/internal"
)

// CreateOAuthState records an in-flight OAuth flow expiring ttlMinutes from now.
func (s *Store) CreateOAuthState(ctx context.Context, state, provider, adminSessionID string, redirectURL *string, ttlMinutes int) error {
	var redirect any
	if redirectURL != nil {
		redirect = *redirectURL
	}
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO oauth_states (state, provider, admin_session_id, redirect_url, expires_at)
		 VALUES (?, ?, ?, ?, datetime('now', ?))`,
		state, provider, adminSessionID, redirect, fmt.Sprintf("+%d minutes", ttlMinutes),
	)
	return conflictErr(err, "oauth state collision")
}

// GetOAuthState peeks at a pending state without consuming it. Expired or
// unknown states yield control.ErrNotFound.
func (s *Store) GetOAuthState(ctx context.Context, state string) (*control.OAuthState, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT state, provider, admin_session_id, redirect_url, created_at, expires_at
		 FROM oauth_states WHERE state = ? AND expires_at > datetime('now')`, state)
	return scanOAuthState(row)
}

// ConsumeOAuthState returns a pending state and deletes it. Expired or
// unknown states yield control.ErrNotFound; a state can be consumed once.
func (s *Store) ConsumeOAuthState(ctx context.Context, state string) (*control.OAuthState, error) {
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT state, provider, admin_session_id, redirect_url, created_at, expires_at
		 FROM oauth_states WHERE state = ? AND expires_at > datetime('now')`, state)

	st, err := scanOAuthState(row)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM oauth_states WHERE state = ?`, state); err != nil {
		return nil, err
	}
	return st, tx.Commit()
}

func scanOAuthState(sc scanner) (*control.OAuthState, error) {
	var st control.OAuthState
	var redirect sql.NullString
	var createdAt, expiresAt string
	if err := sc.Scan(&st.State, &st.Provider, &st.AdminSessionID, &redirect, &createdAt, &expiresAt); err != nil {
		return nil, notFoundErr(err)
	}
	if redirect.Valid {
		st.RedirectURL = &redirect.String
	}
	if t := parseTime(createdAt); t != nil {
		st.CreatedAt = *t
	}
	if t := parseTime(expiresAt); t != nil {
		st.ExpiresAt = *t
	}
	return &st, nil
}

// DeleteExpiredOAuthStates removes states past their expiry.
func (s *Store) DeleteExpiredOAuthStates(ctx context.Context) (int64, error) {
	res, err := s.write.ExecContext(ctx,
		`DELETE FROM oauth_states WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
