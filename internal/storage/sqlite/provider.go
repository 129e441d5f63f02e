package sqlite

import (
	"context"
	"fmt"
	"strings"

	control "github.com/proxypal/proxypal/internal"
	"github.com/proxypal/proxypal/internal/storage"
)

// CreateProvider inserts a provider row. Duplicate names yield control.ErrConflict.
func (s *Store) CreateProvider(ctx context.Context, name, typ string, enabled bool, settings string) (*control.Provider, error) {
	if settings == "" {
		settings = "{}"
	}
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO providers (name, type, enabled, settings) VALUES (?, ?, ?, ?)`,
		name, typ, boolToInt(enabled), settings,
	)
	if err != nil {
		return nil, conflictErr(err, fmt.Sprintf("provider %q already exists", name))
	}
	return s.GetProviderByName(ctx, name)
}

// GetProviderByName retrieves a provider by its unique name.
func (s *Store) GetProviderByName(ctx context.Context, name string) (*control.Provider, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT id, name, type, enabled, settings, created_at, updated_at
		 FROM providers WHERE name = ?`, name,
	)
	return scanProvider(row)
}

// ListProviders returns all providers ordered by name.
func (s *Store) ListProviders(ctx context.Context) ([]*control.Provider, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, name, type, enabled, settings, created_at, updated_at
		 FROM providers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []*control.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// UpdateProvider applies a partial update by name and returns the result.
func (s *Store) UpdateProvider(ctx context.Context, name string, upd storage.ProviderUpdate) (*control.Provider, error) {
	sets := []string{"updated_at=datetime('now')"}
	var args []any
	if upd.Enabled != nil {
		sets = append(sets, "enabled=?")
		args = append(args, boolToInt(*upd.Enabled))
	}
	if upd.Settings != nil {
		sets = append(sets, "settings=?")
		args = append(args, *upd.Settings)
	}
	args = append(args, name)

	res, err := s.write.ExecContext(ctx,
		"UPDATE providers SET "+strings.Join(sets, ", ")+" WHERE name=?", args...,
	)
	if err != nil {
		return nil, err
	}
	if err := checkRowsAffected(res, "provider"); err != nil {
		return nil, err
	}
	return s.GetProviderByName(ctx, name)
}

// DeleteProvider removes a provider and all of its accounts.
func (s *Store) DeleteProvider(ctx context.Context, name string) error {
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM providers WHERE name=?`, name)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res, "provider"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM provider_accounts WHERE provider=?`, name); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateProviderAccount inserts an account, encrypting the token blob at
// rest. A duplicate (provider, account_id) pair yields control.ErrConflict.
func (s *Store) CreateProviderAccount(ctx context.Context, provider, accountID string, tokens []byte) (*control.ProviderAccount, error) {
	enc, err := s.cipher.Encrypt(tokens)
	if err != nil {
		return nil, fmt.Errorf("encrypt account tokens: %w", err)
	}
	res, err := s.write.ExecContext(ctx,
		`INSERT INTO provider_accounts (provider, account_id, tokens) VALUES (?, ?, ?)`,
		provider, accountID, enc,
	)
	if err != nil {
		return nil, conflictErr(err, fmt.Sprintf("account %q already exists for provider %q", accountID, provider))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	row := s.read.QueryRowContext(ctx,
		`SELECT id, provider, account_id, tokens, enabled, created_at
		 FROM provider_accounts WHERE id = ?`, id)
	return scanProviderAccount(row)
}

// ListProviderAccounts returns all accounts for a provider.
func (s *Store) ListProviderAccounts(ctx context.Context, provider string) ([]*control.ProviderAccount, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, provider, account_id, tokens, enabled, created_at
		 FROM provider_accounts WHERE provider = ? ORDER BY id`, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*control.ProviderAccount
	for rows.Next() {
		a, err := scanProviderAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetProviderAccountTokens returns the decrypted token blob for an account.
func (s *Store) GetProviderAccountTokens(ctx context.Context, id int64) ([]byte, error) {
	var enc string
	err := s.read.QueryRowContext(ctx,
		`SELECT tokens FROM provider_accounts WHERE id = ?`, id).Scan(&enc)
	if err != nil {
		return nil, notFoundErr(err)
	}
	return s.cipher.Decrypt(enc)
}

// UpdateProviderAccountTokens replaces an account's token blob, encrypting
// the new value at rest.
func (s *Store) UpdateProviderAccountTokens(ctx context.Context, id int64, tokens []byte) error {
	enc, err := s.cipher.Encrypt(tokens)
	if err != nil {
		return fmt.Errorf("encrypt account tokens: %w", err)
	}
	res, err := s.write.ExecContext(ctx,
		`UPDATE provider_accounts SET tokens=? WHERE id=?`, enc, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "provider account")
}

// SetProviderAccountEnabled toggles an account on or off.
func (s *Store) SetProviderAccountEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := s.write.ExecContext(ctx,
		`UPDATE provider_accounts SET enabled=? WHERE id=?`, boolToInt(enabled), id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "provider account")
}

// DeleteProviderAccount removes an account.
func (s *Store) DeleteProviderAccount(ctx context.Context, id int64) error {
	res, err := s.write.ExecContext(ctx, `DELETE FROM provider_accounts WHERE id=?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "provider account")
}

// CountProviderAccounts counts enabled and disabled accounts for a provider.
func (s *Store) CountProviderAccounts(ctx context.Context, provider string) (int64, error) {
	var n int64
	err := s.read.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM provider_accounts WHERE provider = ?`, provider).Scan(&n)
	return n, err
}

func scanProvider(sc scanner) (*control.Provider, error) {
	var p control.Provider
	var enabled int
	var createdAt, updatedAt string

	err := sc.Scan(&p.ID, &p.Name, &p.Type, &enabled, &p.Settings, &createdAt, &updatedAt)
	if err != nil {
		return nil, notFoundErr(err)
	}
	p.Enabled = enabled != 0
	if t := parseTime(createdAt); t != nil {
		p.CreatedAt = *t
	}
	if t := parseTime(updatedAt); t != nil {
		p.UpdatedAt = *t
	}
	return &p, nil
}

func scanProviderAccount(sc scanner) (*control.ProviderAccount, error) {
	var a control.ProviderAccount
	var enabled int
	var createdAt string

	err := sc.Scan(&a.ID, &a.Provider, &a.AccountID, &a.Tokens, &enabled, &createdAt)
	if err != nil {
		return nil, notFoundErr(err)
	}
	a.Enabled = enabled != 0
	if t := parseTime(createdAt); t != nil {
		a.CreatedAt = *t
	}
	return &a, nil
}
