package server

import (
	"errors"
	"net/http"
	"strconv"

	control "github.com/proxypal/proxypal/internal"
	"github.com/proxypal/proxypal/internal/storage"
)

type providerUsageResponse struct {
	Requests     int64 `json:"requests"`
	TokensInput  int64 `json:"tokensInput"`
	TokensOutput int64 `json:"tokensOutput"`
}

func (s *server) handleUsage(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "month"
	}

	stats, err := s.deps.Store.UsageStats(r.Context(), period)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	perProvider, err := s.deps.Store.UsageByProvider(r.Context(), period)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}

	byProvider := make(map[string]providerUsageResponse, len(perProvider))
	for _, p := range perProvider {
		byProvider[p.Provider] = providerUsageResponse{
			Requests:     p.Requests,
			TokensInput:  p.TokensInput,
			TokensOutput: p.TokensOutput,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"period":            period,
		"totalRequests":     stats.TotalRequests,
		"totalTokensInput":  stats.TotalTokensInput,
		"totalTokensOutput": stats.TotalTokensOutput,
		"byProvider":        byProvider,
	})
}

func (s *server) handleUserUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUserID(w, r)
	if !ok {
		return
	}
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "month"
	}

	user, err := s.deps.Store.GetUser(r.Context(), id)
	if errors.Is(err, control.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	if err != nil {
		writeAdminError(w, r, err)
		return
	}

	stats, err := s.deps.Store.UserUsageStats(r.Context(), id, period)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":            user.ID,
		"userName":          user.Name,
		"period":            period,
		"totalRequests":     stats.TotalRequests,
		"totalTokensInput":  stats.TotalTokensInput,
		"totalTokensOutput": stats.TotalTokensOutput,
		"byProvider":        map[string]providerUsageResponse{},
	})
}

func (s *server) handleDailyUsage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, _ := strconv.Atoi(q.Get("days"))
	if days < 1 {
		days = 30
	}
	if days > 90 {
		days = 90
	}

	var userID *int64
	if raw := q.Get("user_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			userID = &id
		}
	}

	data, err := s.deps.Store.DailyUsage(r.Context(), days, userID, q.Get("provider"))
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	if data == nil {
		data = []*control.DailyUsage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"days": days,
		"data": data,
	})
}

func (s *server) handleUsageLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset, userID, provider := parseLogParams(r)

	logs, total, err := s.deps.Store.UsageLogs(r.Context(), limit, offset, userID, provider)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	if logs == nil {
		logs = []*control.UsageLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":   logs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// handleRequestLogs serves the richer log view joined with user names and
// filterable by outcome status.
func (s *server) handleRequestLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset, userID, provider := parseLogParams(r)
	filter := storage.LogFilter{
		UserID:   userID,
		Provider: provider,
		Status:   r.URL.Query().Get("status"),
	}

	logs, total, err := s.deps.Store.RequestLogs(r.Context(), limit, offset, filter)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	if logs == nil {
		logs = []*control.RequestLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":   logs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func parseLogParams(r *http.Request) (limit, offset int64, userID *int64, provider string) {
	q := r.URL.Query()
	limit, _ = strconv.ParseInt(q.Get("limit"), 10, 64)
	if limit < 1 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	offset, _ = strconv.ParseInt(q.Get("offset"), 10, 64)
	if offset < 0 {
		offset = 0
	}
	if raw := q.Get("user_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			userID = &id
		}
	}
	return limit, offset, userID, q.Get("provider")
}
