package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/kalviis/factory-bridge/internal/httputil"
)

// NewRouter wires the bridge routes. Extra middlewares wrap only
// POST /v1/messages.
func NewRouter(h *Handler, messages ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(logRequest)

	r.Get("/v1/models", h.ListModels)
	r.Get("/models", h.ListModels)
	r.Get("/health", h.Health)
	r.With(messages...).Post(routeMessages, h.Messages)

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.NotFound)
	return r
}

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestIDFromContext returns the id assigned by the request ID middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = "req_" + uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoverMiddleware turns a handler panic into a logged 500 envelope so a
// single faulty request never takes the listener down. Once a response has
// started nothing more is written; the client sees a truncated body.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			reqID := RequestIDFromContext(r.Context())
			slog.Error("panic while handling request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			if ww.Status() != 0 {
				slog.Warn("response already started, not writing error envelope",
					"request_id", reqID,
					"status_code", ww.Status(),
					"bytes", ww.BytesWritten(),
				)
				return
			}
			httputil.WriteInternalError(ww, reqID, fmt.Sprint(rec))
		}()
		next.ServeHTTP(ww, r)
	})
}

func logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.Info("request received",
			"request_id", RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		next.ServeHTTP(w, r)
	})
}
