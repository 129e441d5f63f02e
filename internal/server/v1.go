package server

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	control "github.com/proxypal/proxypal/internal"
	"github.com/proxypal/proxypal/internal/tokencount"
)

// modelInfo mirrors the OpenAI model object.
type modelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// staticModels is the fixed catalog the relay advertises. The daemon decides
// actual routing; this list exists so OpenAI SDK clients can enumerate.
var staticModels = []modelInfo{
	{ID: "gpt-4o", Object: "model", Created: 1700000000, OwnedBy: "openai"},
	{ID: "gpt-4o-mini", Object: "model", Created: 1700000000, OwnedBy: "openai"},
	{ID: "claude-sonnet-4-20250514", Object: "model", Created: 1700000000, OwnedBy: "anthropic"},
	{ID: "gemini-2.5-pro", Object: "model", Created: 1700000000, OwnedBy: "google"},
}

func (s *server) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   staticModels,
	})
}

// providerFromModel maps a model name to its provider for usage accounting.
func providerFromModel(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return "openai"
	case strings.HasPrefix(model, "claude-"):
		return "anthropic"
	case strings.HasPrefix(model, "gemini-"):
		return "google"
	default:
		return "unknown"
	}
}

// proxyErrorBody is the OpenAI-style error envelope returned when the daemon
// is unreachable.
type proxyErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func proxyError(msg string) proxyErrorBody {
	var e proxyErrorBody
	e.Error.Message = msg
	e.Error.Type = "proxy_error"
	e.Error.Code = "BAD_GATEWAY"
	return e
}

// handleForward relays /v1 requests to the daemon and records usage from the
// response body. Parsing is best-effort: unparseable bodies are logged with
// model "unknown" and zero token counts.
func (s *server) handleForward(w http.ResponseWriter, r *http.Request) {
	identity := control.IdentityFromContext(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxForwardBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "request body too large")
		return
	}

	start := time.Now()
	resp, err := s.deps.Forwarder.Forward(r.Context(), r.Method, r.URL.Path, r.Header, body)
	if err != nil {
		if s.deps.Metrics != nil {
			s.deps.Metrics.DaemonErrors.Inc()
		}
		writeJSON(w, http.StatusBadGateway, proxyError("Proxy error: "+err.Error()))
		return
	}
	elapsed := time.Since(start).Milliseconds()

	model := "unknown"
	var tokensIn, tokensOut int64
	if m := gjson.GetBytes(resp.Body, "model"); m.Exists() {
		model = m.String()
	} else if m := gjson.GetBytes(body, "model"); m.Exists() {
		model = m.String()
	}
	if u := gjson.GetBytes(resp.Body, "usage"); u.Exists() {
		tokensIn = u.Get("prompt_tokens").Int()
		tokensOut = u.Get("completion_tokens").Int()
	} else if resp.Status >= 200 && resp.Status < 300 {
		// No usage block (streaming replies, some providers): estimate so
		// quota accounting never sees a free request.
		tokensIn = tokencount.EstimateRequest(body)
		tokensOut = tokencount.EstimateResponse(resp.Body)
	}

	status := "error"
	if resp.Status >= 200 && resp.Status < 300 {
		status = "success"
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.DaemonDuration.WithLabelValues(providerFromModel(model), model).
			Observe(float64(elapsed) / 1000)
		if tokensIn > 0 {
			s.deps.Metrics.TokensProcessed.WithLabelValues(model, "input").Add(float64(tokensIn))
		}
		if tokensOut > 0 {
			s.deps.Metrics.TokensProcessed.WithLabelValues(model, "output").Add(float64(tokensOut))
		}
	}

	if err := s.deps.Store.LogUsage(r.Context(), identity.UserID,
		providerFromModel(model), model, tokensIn, tokensOut, elapsed, status); err != nil {
		slog.LogAttrs(r.Context(), slog.LevelError, "log usage failed",
			slog.String("error", err.Error()),
			slog.Int64("user_id", identity.UserID),
		)
	}

	relayResponse(w, resp.Status, resp.Header, resp.Body)
}

// maxForwardBody caps relayed request bodies (10 MB).
const maxForwardBody = 10 << 20

// relayResponse copies the daemon response to the client, dropping hop-by-hop
// headers that no longer apply to the buffered reply.
func relayResponse(w http.ResponseWriter, status int, header http.Header, body []byte) {
	out := w.Header()
	for k, vals := range header {
		switch k {
		case "Transfer-Encoding", "Connection":
			continue
		}
		out[k] = vals
	}
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Error("failed to relay response", "error", err)
	}
}
