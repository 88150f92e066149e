package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kalviis/factory-bridge/internal/backend"
	"github.com/kalviis/factory-bridge/internal/config"
	"github.com/kalviis/factory-bridge/internal/httputil"
	"github.com/kalviis/factory-bridge/internal/journal"
	"github.com/kalviis/factory-bridge/internal/telemetry"
	"github.com/kalviis/factory-bridge/internal/transform"
	"github.com/kalviis/factory-bridge/internal/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const routeMessages = "/v1/messages"

// Backend forwards a Messages API body to the backend gateway.
type Backend interface {
	Send(ctx context.Context, body []byte, stream bool) (*http.Response, error)
}

// PromptSource yields the current system prompt override, or nil.
type PromptSource interface {
	Resolve() *config.PromptOverride
}

// Handler holds dependencies for the bridge HTTP handlers. It keeps no
// per-request state; concurrent requests share only read-only collaborators.
type Handler struct {
	backend Backend
	prompts PromptSource
	cfg     func() *config.Config
	metrics *telemetry.Metrics
	journal journal.Recorder
}

func NewHandler(backend Backend, prompts PromptSource, cfg func() *config.Config, metrics *telemetry.Metrics, rec journal.Recorder) *Handler {
	if rec == nil {
		rec = journal.Nop{}
	}
	return &Handler{
		backend: backend,
		prompts: prompts,
		cfg:     cfg,
		metrics: metrics,
		journal: rec,
	}
}

// Messages handles POST /v1/messages
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	ctx, span := telemetry.Tracer().Start(r.Context(), "bridge.messages")
	defer span.End()

	entry := journal.Entry{RequestID: reqID, ReceivedAt: receivedAt}
	h.proxy(ctx, w, r, &entry)
	entry.Duration = time.Since(receivedAt)

	span.SetAttributes(
		attribute.String("request_id", reqID),
		attribute.String("model", entry.Model),
		attribute.Bool("stream", entry.Stream),
		attribute.Int("status", entry.Status),
		attribute.Int("backend_status", entry.BackendStatus),
		attribute.String("termination", entry.Termination),
	)
	if entry.Status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(entry.Status))
	}

	slog.Info("request completed",
		"request_id", reqID,
		"model", entry.Model,
		"stream", entry.Stream,
		"status_code", entry.Status,
		"backend_status", entry.BackendStatus,
		"termination", entry.Termination,
		"duration_ms", entry.Duration.Milliseconds(),
	)

	if h.metrics != nil {
		h.metrics.RecordRequest(telemetry.RequestLabels{
			Route:      routeMessages,
			Status:     entry.Status,
			Stream:     entry.Stream,
			DurationMs: float64(entry.Duration.Milliseconds()),
		})
	}
	h.journal.Record(entry)
}

// proxy runs received → transformed → forwarded → (error-translated | relayed).
// It fills entry with the outcome and always writes a response.
func (h *Handler) proxy(ctx context.Context, w http.ResponseWriter, r *http.Request, entry *journal.Entry) {
	reqID := entry.RequestID
	cfg := h.cfg()

	fail := func(msg string, err error) {
		slog.Error(msg, "request_id", reqID, "error", err)
		entry.Status = http.StatusInternalServerError
		httputil.WriteInternalError(w, reqID, err.Error())
	}

	var src io.Reader = r.Body
	if cfg.Server.MaxBodyBytes > 0 {
		src = http.MaxBytesReader(w, r.Body, cfg.Server.MaxBodyBytes)
	}
	body, err := io.ReadAll(src)
	if err != nil {
		fail("failed to read request body", fmt.Errorf("read request body: %w", err))
		return
	}

	// Malformed client JSON is reported as 500, like every other pipeline fault.
	var req types.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		fail("failed to decode request body", fmt.Errorf("invalid request body: %w", err))
		return
	}
	entry.Model = req.Model
	entry.Stream = req.Stream

	for _, res := range transform.Request(&req, h.prompts.Resolve(), cfg.Prompt.MaxTokensLimit) {
		// unapplied steps with a detail are failed overrides
		if !res.Applied && res.Detail == "" {
			continue
		}
		switch res.Step {
		case "max_tokens":
			entry.Clamped = res.Applied
		case "system_prompt":
			entry.PromptMode = res.Detail
		}
		if h.metrics != nil {
			h.metrics.RecordTransform(res.Step, res.Detail)
		}
	}
	entry.SystemChars = req.SystemChars()

	payload, err := json.Marshal(&req)
	if err != nil {
		fail("failed to encode request", fmt.Errorf("encode request: %w", err))
		return
	}

	slog.Info("forwarding request",
		"request_id", reqID,
		"model", req.Model,
		"stream", req.Stream,
		"system_chars", entry.SystemChars,
	)

	resp, err := h.backend.Send(ctx, payload, req.Stream)
	if err != nil {
		fail("backend request failed", err)
		return
	}
	entry.BackendStatus = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, err := readBody(resp)
		if err != nil {
			fail("failed to read backend error", err)
			return
		}
		status := backend.TranslateStatus(errBody, resp.StatusCode)
		if h.metrics != nil {
			h.metrics.RecordBackendError(resp.StatusCode, status)
		}
		entry.Status = status
		writeBuffered(w, resp.Header, status, errBody)
		return
	}

	if req.Stream {
		res := relayStream(ctx, w, resp, cfg.Stream.ChunkSize, cfg.Stream.StopMarkers)
		entry.Status = resp.StatusCode
		entry.Termination = res.Reason
		switch res.Reason {
		case endClientGone:
			slog.Debug("client disconnected mid-stream", "request_id", reqID, "bytes", res.Bytes, "error", res.Err)
		case endBackendError:
			slog.Warn("backend stream failed", "request_id", reqID, "bytes", res.Bytes, "error", res.Err)
		default:
			slog.Debug("stream finished", "request_id", reqID, "reason", res.Reason, "bytes", res.Bytes)
		}
		if h.metrics != nil {
			h.metrics.RecordStream(res.Reason, res.Bytes)
		}
		return
	}

	respBody, err := readBody(resp)
	if err != nil {
		fail("failed to read backend response", err)
		return
	}
	entry.Status = resp.StatusCode
	writeBuffered(w, resp.Header, resp.StatusCode, respBody)
}

// ListModels handles GET /v1/models and GET /models
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	ids := h.cfg().Models
	models := make([]types.Model, 0, len(ids))
	for _, id := range ids {
		models = append(models, types.Model{
			ID:       id,
			Object:   "model",
			Provider: config.Provider,
		})
	}
	httputil.WriteJSON(w, types.ModelList{Object: "list", Data: models})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, types.HealthStatus{Status: "ok"})
}

// NotFound answers every unknown route or method.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	slog.Info("unknown route", "method", r.Method, "path", r.URL.Path)
	httputil.WriteNotFound(w, w.Header().Get("X-Request-ID"))
}
