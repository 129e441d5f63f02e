package sqlite

import (
	"context"
	"fmt"
	"strings"

	control "github.com/proxypal/proxypal/internal"
	"github.com/proxypal/proxypal/internal/storage"
)

// LogUsage inserts a usage row and bumps the user's token counter in a
// single transaction, so accounting never drifts from the log.
func (s *Store) LogUsage(ctx context.Context, userID int64, provider, model string, tokensInput, tokensOutput, requestTimeMs int64, status string) error {
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO usage_logs (user_id, provider, model, tokens_input, tokens_output, request_time_ms, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, provider, model, tokensInput, tokensOutput, requestTimeMs, status,
	); err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET used_tokens = used_tokens + ?, last_used_at = datetime('now') WHERE id = ?`,
		tokensInput+tokensOutput, userID,
	); err != nil {
		return fmt.Errorf("bump used tokens: %w", err)
	}

	return tx.Commit()
}

// periodFilter translates a named period into a SQL WHERE fragment.
// Unknown periods behave like "all".
func periodFilter(period string) string {
	switch period {
	case "today":
		return " WHERE timestamp >= datetime('now', 'start of day')"
	case "week":
		return " WHERE timestamp >= datetime('now', '-7 days')"
	case "month":
		return " WHERE timestamp >= datetime('now', '-30 days')"
	default:
		return ""
	}
}

// UsageStats returns aggregate counts for a period across all users.
func (s *Store) UsageStats(ctx context.Context, period string) (*control.UsageStats, error) {
	var st control.UsageStats
	err := s.read.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(tokens_input), 0), COALESCE(SUM(tokens_output), 0)
		 FROM usage_logs`+periodFilter(period),
	).Scan(&st.TotalRequests, &st.TotalTokensInput, &st.TotalTokensOutput)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// UserUsageStats returns aggregate counts for a single user.
func (s *Store) UserUsageStats(ctx context.Context, userID int64, period string) (*control.UsageStats, error) {
	where := periodFilter(period)
	if where == "" {
		where = " WHERE user_id = ?"
	} else {
		where += " AND user_id = ?"
	}

	var st control.UsageStats
	err := s.read.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(tokens_input), 0), COALESCE(SUM(tokens_output), 0)
		 FROM usage_logs`+where, userID,
	).Scan(&st.TotalRequests, &st.TotalTokensInput, &st.TotalTokensOutput)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// UsageByProvider returns per-provider aggregates for a period, busiest first.
func (s *Store) UsageByProvider(ctx context.Context, period string) ([]*control.ProviderUsage, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT provider, COUNT(*), COALESCE(SUM(tokens_input), 0), COALESCE(SUM(tokens_output), 0)
		 FROM usage_logs`+periodFilter(period)+` GROUP BY provider ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*control.ProviderUsage
	for rows.Next() {
		var p control.ProviderUsage
		if err := rows.Scan(&p.Provider, &p.Requests, &p.TokensInput, &p.TokensOutput); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// DailyUsage returns per-day aggregates over the last N days, newest first,
// optionally narrowed to one user and/or provider.
func (s *Store) DailyUsage(ctx context.Context, days int, userID *int64, provider string) ([]*control.DailyUsage, error) {
	conditions := []string{fmt.Sprintf("timestamp >= datetime('now', '-%d days')", days)}
	var args []any
	if userID != nil {
		conditions = append(conditions, "user_id = ?")
		args = append(args, *userID)
	}
	if provider != "" {
		conditions = append(conditions, "provider = ?")
		args = append(args, provider)
	}

	rows, err := s.read.QueryContext(ctx,
		`SELECT date(timestamp), COUNT(*), COALESCE(SUM(tokens_input), 0), COALESCE(SUM(tokens_output), 0)
		 FROM usage_logs WHERE `+strings.Join(conditions, " AND ")+
			` GROUP BY date(timestamp) ORDER BY date(timestamp) DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*control.DailyUsage
	for rows.Next() {
		var d control.DailyUsage
		if err := rows.Scan(&d.Date, &d.Requests, &d.TokensInput, &d.TokensOutput); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// UsageLogs returns a page of raw usage logs with the filtered total.
func (s *Store) UsageLogs(ctx context.Context, limit, offset int64, userID *int64, provider string) ([]*control.UsageLog, int64, error) {
	var conditions []string
	var args []any
	if userID != nil {
		conditions = append(conditions, "user_id = ?")
		args = append(args, *userID)
	}
	if provider != "" {
		conditions = append(conditions, "provider = ?")
		args = append(args, provider)
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := s.read.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usage_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.read.QueryContext(ctx,
		`SELECT id, user_id, provider, model, tokens_input, tokens_output,
		 request_time_ms, COALESCE(status, 'success'), timestamp
		 FROM usage_logs`+where+` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var logs []*control.UsageLog
	for rows.Next() {
		var l control.UsageLog
		var ts string
		if err := rows.Scan(&l.ID, &l.UserID, &l.Provider, &l.Model,
			&l.TokensInput, &l.TokensOutput, &l.RequestTimeMs, &l.Status, &ts); err != nil {
			return nil, 0, err
		}
		if t := parseTime(ts); t != nil {
			l.Timestamp = *t
		}
		logs = append(logs, &l)
	}
	return logs, total, rows.Err()
}

// RequestLogs returns a page of usage logs joined with user names.
// Logs whose user has been deleted report "Unknown".
func (s *Store) RequestLogs(ctx context.Context, limit, offset int64, f storage.LogFilter) ([]*control.RequestLog, int64, error) {
	var conditions []string
	var args []any
	if f.UserID != nil {
		conditions = append(conditions, "ul.user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Provider != "" {
		conditions = append(conditions, "ul.provider = ?")
		args = append(args, f.Provider)
	}
	if f.Status != "" {
		conditions = append(conditions, "ul.status = ?")
		args = append(args, f.Status)
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := s.read.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usage_logs ul`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.read.QueryContext(ctx,
		`SELECT ul.id, ul.timestamp, ul.user_id, COALESCE(u.name, 'Unknown'),
		 ul.provider, ul.model, ul.tokens_input, ul.tokens_output,
		 ul.request_time_ms, COALESCE(ul.status, 'success')
		 FROM usage_logs ul
		 LEFT JOIN users u ON ul.user_id = u.id`+where+
			` ORDER BY ul.timestamp DESC, ul.id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var logs []*control.RequestLog
	for rows.Next() {
		var l control.RequestLog
		var ts string
		if err := rows.Scan(&l.ID, &ts, &l.UserID, &l.UserName, &l.Provider, &l.Model,
			&l.TokensInput, &l.TokensOutput, &l.DurationMs, &l.Status); err != nil {
			return nil, 0, err
		}
		if t := parseTime(ts); t != nil {
			l.Timestamp = *t
		}
		logs = append(logs, &l)
	}
	return logs, total, rows.Err()
}

// TotalRequests counts all recorded requests.
func (s *Store) TotalRequests(ctx context.Context) (int64, error) {
	var n int64
	err := s.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM usage_logs`).Scan(&n)
	return n, err
}
