package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	control "github.com/proxypal/proxypal/internal"
	"github.com/proxypal/proxypal/internal/storage"
)

// CreateUser inserts a new user. A duplicate name yields control.ErrConflict.
func (s *Store) CreateUser(ctx context.Context, name, keyHash, keyPrefix string, quotaTokens *int64) (*control.User, error) {
	res, err := s.write.ExecContext(ctx,
		`INSERT INTO users (name, api_key_hash, api_key_prefix, quota_tokens)
		 VALUES (?, ?, ?, ?)`,
		name, keyHash, keyPrefix, nullInt(quotaTokens),
	)
	if err != nil {
		return nil, conflictErr(err, fmt.Sprintf("user %q already exists", name))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*control.User, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT id, name, api_key_hash, api_key_prefix, quota_tokens, used_tokens,
		 enabled, created_at, last_used_at FROM users WHERE id = ?`, id,
	)
	return scanUser(row)
}

// GetUserByKeyPrefix retrieves a user by its API key prefix.
func (s *Store) GetUserByKeyPrefix(ctx context.Context, prefix string) (*control.User, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT id, name, api_key_hash, api_key_prefix, quota_tokens, used_tokens,
		 enabled, created_at, last_used_at FROM users WHERE api_key_prefix = ?`, prefix,
	)
	return scanUser(row)
}

// ListUsers returns a page of users ordered by creation time, newest first,
// along with the total user count.
func (s *Store) ListUsers(ctx context.Context, page, limit int) ([]*control.User, int64, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	rows, err := s.read.QueryContext(ctx,
		`SELECT id, name, api_key_hash, api_key_prefix, quota_tokens, used_tokens,
		 enabled, created_at, last_used_at FROM users
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*control.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// UpdateUser applies a partial update and returns the updated user.
func (s *Store) UpdateUser(ctx context.Context, id int64, upd storage.UserUpdate) (*control.User, error) {
	var sets []string
	var args []any
	if upd.Name != nil {
		sets = append(sets, "name=?")
		args = append(args, *upd.Name)
	}
	if upd.SetQuota {
		sets = append(sets, "quota_tokens=?")
		args = append(args, nullInt(upd.QuotaTokens))
	}
	if upd.Enabled != nil {
		sets = append(sets, "enabled=?")
		args = append(args, boolToInt(*upd.Enabled))
	}
	if len(sets) == 0 {
		return s.GetUser(ctx, id)
	}
	args = append(args, id)

	res, err := s.write.ExecContext(ctx,
		"UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id=?", args...,
	)
	if err != nil {
		return nil, conflictErr(err, "user name already taken")
	}
	if err := checkRowsAffected(res, "user"); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

// DeleteUser removes a user; usage logs cascade.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.write.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "user")
}

// ReplaceUserKey swaps in a freshly generated API key hash and prefix.
func (s *Store) ReplaceUserKey(ctx context.Context, id int64, keyHash, keyPrefix string) (*control.User, error) {
	res, err := s.write.ExecContext(ctx,
		`UPDATE users SET api_key_hash=?, api_key_prefix=? WHERE id=?`,
		keyHash, keyPrefix, id,
	)
	if err != nil {
		return nil, err
	}
	if err := checkRowsAffected(res, "user"); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

// ResetUserUsage zeroes used_tokens and returns the previous value.
func (s *Store) ResetUserUsage(ctx context.Context, id int64) (int64, error) {
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var previous int64
	err = tx.QueryRowContext(ctx, `SELECT used_tokens FROM users WHERE id=?`, id).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("user: %w", control.ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET used_tokens = 0 WHERE id=?`, id); err != nil {
		return 0, err
	}
	return previous, tx.Commit()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(sc scanner) (*control.User, error) {
	var u control.User
	var quota sql.NullInt64
	var enabled int
	var createdAt string
	var lastUsedAt sql.NullString

	err := sc.Scan(&u.ID, &u.Name, &u.APIKeyHash, &u.APIKeyPrefix, &quota,
		&u.UsedTokens, &enabled, &createdAt, &lastUsedAt)
	if err != nil {
		return nil, notFoundErr(err)
	}

	u.Enabled = enabled != 0
	if quota.Valid {
		v := quota.Int64
		u.QuotaTokens = &v
	}
	if t := parseTime(createdAt); t != nil {
		u.CreatedAt = *t
	}
	if lastUsedAt.Valid {
		u.LastUsedAt = parseTime(lastUsedAt.String)
	}
	return &u, nil
}

// helpers shared across the package

// sqliteTimeLayout matches the output of SQLite's datetime('now').
const sqliteTimeLayout = "2006-01-02 15:04:05"

func parseTime(s string) *time.Time {
	if t, err := time.Parse(sqliteTimeLayout, s); err == nil {
		t = t.UTC()
		return &t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// notFoundErr translates sql.ErrNoRows to control.ErrNotFound.
func notFoundErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return control.ErrNotFound
	}
	return err
}

// conflictErr translates SQLite unique-constraint violations to
// control.ErrConflict, preserving other errors.
func conflictErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%s: %w", msg, control.ErrConflict)
	}
	return err
}

func checkRowsAffected(result sql.Result, entity string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", entity, control.ErrNotFound)
	}
	return nil
}
