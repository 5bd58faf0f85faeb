package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"caprouter/internal/domain/plan"
	"caprouter/internal/domain/routererr"
	"caprouter/internal/domain/trace"
)

// PlannerService is the subset of the planner the HTTP transport depends on.
type PlannerService interface {
	Plan(ctx context.Context, pctx plan.Context) (*plan.Result, error)
}

// TraceReader is the subset of the trace store the HTTP transport depends on.
type TraceReader interface {
	Get(id string) (*trace.Trace, bool)
}

// planRequest is the wire shape of a POST /v1/plan body.
type planRequest struct {
	Tenant     string         `json:"tenant"`
	Capability string         `json:"capability"`
	Input      map[string]any `json:"input"`
	TimeoutMs  int            `json:"timeoutMs"`
	Execute    bool           `json:"execute"`
}

func (t *Transport) handlePlan() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t.planner == nil {
			http.Error(w, "planner not configured", http.StatusServiceUnavailable)
			return
		}

		var req planRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, string(routererr.CodeInputInvalid), "malformed request body")
			return
		}

		pctx := plan.Context{
			Tenant:     req.Tenant,
			Capability: req.Capability,
			Input:      req.Input,
			TimeoutMs:  req.TimeoutMs,
			Execute:    req.Execute,
		}

		result, err := t.planner.Plan(r.Context(), pctx)
		if err != nil {
			var decErr *routererr.DecisionError
			if errors.As(err, &decErr) {
				writeJSON(w, http.StatusOK, result)
				return
			}
			logFromContext(r.Context(), t.logger).Error("plan failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, result)
	})
}

func (t *Transport) handleTrace() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t.traces == nil {
			http.Error(w, "trace store not configured", http.StatusServiceUnavailable)
			return
		}
		id := r.PathValue("id")
		tr, ok := t.traces.Get(id)
		if !ok {
			http.Error(w, "trace not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, tr)
	})
}

func (t *Transport) handleHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := t.healthCheck(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"code": code, "detail": detail})
}

// requestIDKey is the context key for the per-request correlation id.
type requestIDKey struct{}

// requestLogging assigns a request id (reusing an inbound X-Request-ID
// header if present), stamps it on the response, and enriches the logger
// carried in the request context for downstream handlers.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", id)

			enriched := logger.With("request_id", id)
			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			ctx = context.WithValue(ctx, loggerContextKey{}, enriched)

			enriched.Info("request", "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// loggerContextKey is the context key for the per-request enriched logger.
type loggerContextKey struct{}

func logFromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(*slog.Logger); ok {
		return l
	}
	return fallback
}
