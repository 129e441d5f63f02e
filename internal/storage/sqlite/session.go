package sqlite

import (
	"context"
	"fmt"

	control "github.com/proxypal/proxypal/internal"
)

// CreateSession inserts an admin session expiring ttlDays from now.
func (s *Store) CreateSession(ctx context.Context, id, csrfToken string, ttlDays int) (*control.Session, error) {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO sessions (id, csrf_token, expires_at)
		 VALUES (?, ?, datetime('now', ?))`,
		id, csrfToken, fmt.Sprintf("+%d days", ttlDays),
	)
	if err != nil {
		return nil, conflictErr(err, "session id collision")
	}
	return s.GetSession(ctx, id)
}

// GetSession retrieves a session by ID. Expired sessions are not returned.
func (s *Store) GetSession(ctx context.Context, id string) (*control.Session, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT id, csrf_token, expires_at, created_at, last_accessed
		 FROM sessions WHERE id = ? AND expires_at > datetime('now')`, id,
	)

	var sess control.Session
	var expiresAt, createdAt, lastAccessed string
	if err := row.Scan(&sess.ID, &sess.CSRFToken, &expiresAt, &createdAt, &lastAccessed); err != nil {
		return nil, notFoundErr(err)
	}
	if t := parseTime(expiresAt); t != nil {
		sess.ExpiresAt = *t
	}
	if t := parseTime(createdAt); t != nil {
		sess.CreatedAt = *t
	}
	if t := parseTime(lastAccessed); t != nil {
		sess.LastAccessed = *t
	}
	return &sess, nil
}

// TouchSession updates the last_accessed timestamp.
func (s *Store) TouchSession(ctx context.Context, id string) error {
	_, err := s.write.ExecContext(ctx,
		`UPDATE sessions SET last_accessed = datetime('now') WHERE id = ?`, id)
	return err
}

// DeleteSession removes a session. Deleting an unknown session is not an error.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.write.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// DeleteExpiredSessions removes sessions past their expiry.
func (s *Store) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.write.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
