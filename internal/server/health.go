package server

import "net/http"

// handleHealth reports control plane health. "degraded" means the control
// plane is up but the forwarding daemon is not running; "error" means the
// database is unreachable.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	running := s.deps.Process.Running()
	dbOK := s.deps.Store.Ping(r.Context()) == nil

	status := "ok"
	switch {
	case !dbOK:
		status = "error"
	case !running:
		status = "degraded"
	}

	var pid *int
	var uptime *int64
	if running {
		p := s.deps.Process.PID()
		pid = &p
		u := s.deps.Process.UptimeSeconds()
		uptime = &u
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":             status,
		"version":            s.deps.Version,
		"proxy_running":      running,
		"proxy_pid":          pid,
		"uptime_seconds":     uptime,
		"database_connected": dbOK,
	})
}
