// Package server is the reference backend behind the chat client. It answers
// natural language questions from a relational engine or the document store
// and reports results in the shape the client normalizes.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chatdb/chatdb/internal/config"
	"github.com/chatdb/chatdb/internal/docstore"
	"github.com/chatdb/chatdb/internal/nl2sql"
	"github.com/chatdb/chatdb/internal/observability"
	"github.com/chatdb/chatdb/internal/query"
	"github.com/chatdb/chatdb/internal/queryapi"
)

type ReadinessCheck func(ctx context.Context) error

type DocumentStore interface {
	Collections(ctx context.Context) ([]string, error)
	Find(ctx context.Context, q docstore.Query) ([]any, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Relational        query.Engine
	// RelationalDialect names the SQL dialect in translation prompts.
	RelationalDialect string
	Documents         DocumentStore
	Translator        nl2sql.Translator
	Now               func() time.Time
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.Translator == nil {
		deps.Translator = nl2sql.KeywordTranslator{DefaultLimit: cfg.Relational.ResultLimit}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	h := &handler{cfg: cfg, deps: deps}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+queryapi.HealthPath, h.handleHealth)
	mux.HandleFunc("POST "+queryapi.QueryTablePath, h.handleQueryTable)
	mux.HandleFunc("POST "+queryapi.ConnectPath, h.handleConnect)
	mux.Handle("GET /metrics", promhttp.Handler())

	return chain(mux,
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
		observability.LoggingMiddleware(deps.Logger),
	)
}

type handler struct {
	cfg  config.Config
	deps Dependencies
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.deps.Readiness != nil {
		timeout := h.deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := h.deps.Readiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":    "unhealthy",
				"message":   err.Error(),
				"timestamp": h.deps.Now().UTC(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, queryapi.HealthResponse{Status: "healthy", Timestamp: h.deps.Now().UTC()})
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
