package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/chatdb/chatdb/internal/backend"
	"github.com/chatdb/chatdb/internal/docstore"
	"github.com/chatdb/chatdb/internal/nl2sql"
	"github.com/chatdb/chatdb/internal/observability"
	"github.com/chatdb/chatdb/internal/query"
	"github.com/chatdb/chatdb/internal/queryapi"
)

// maxResultRows caps what a passed-through SQL statement can return.
const maxResultRows = 1000

// Questions naming one of these go to the document store when the client does
// not pick a backend.
var documentKeywords = []string{"analytics", "metrics", "dashboard", "trend", "analysis"}

type queryTableResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
	DatabaseUsed string `json:"database_used,omitempty"`
	SQLQuery     any    `json:"sql_query,omitempty"`
	Data         any    `json:"data,omitempty"`
}

func (h *handler) handleQueryTable(w http.ResponseWriter, r *http.Request) {
	var request queryapi.Request
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, queryTableResponse{Status: queryapi.StatusError, Message: "invalid request body"})
		return
	}
	question := strings.TrimSpace(request.Query)
	if question == "" {
		writeJSON(w, http.StatusBadRequest, queryTableResponse{Status: queryapi.StatusError, Message: "No query provided"})
		return
	}

	kind, err := resolveBackend(request.DatabaseType, question)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, queryTableResponse{Status: queryapi.StatusError, Message: err.Error()})
		return
	}

	logger := observability.LoggerFromContext(r.Context(), h.deps.Logger).With(slog.String("database", kind.WireName()))
	var resp queryTableResponse
	switch kind {
	case backend.Document:
		resp, err = h.queryDocuments(r.Context(), question)
	default:
		resp, err = h.queryRelational(r.Context(), question)
	}
	resp.DatabaseUsed = kind.WireName()
	if err != nil {
		logger.Warn("query failed", slog.String("error", err.Error()))
		observability.ObserveBackendQuery(kind.WireName(), queryapi.StatusError)
		resp.Status = queryapi.StatusError
		resp.Message = err.Error()
		resp.Data = nil
		writeJSON(w, http.StatusOK, resp)
		return
	}
	logger.Debug("query served", slog.Any("sql_query", resp.SQLQuery))
	observability.ObserveBackendQuery(kind.WireName(), queryapi.StatusSuccess)
	resp.Status = queryapi.StatusSuccess
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) queryRelational(ctx context.Context, question string) (queryTableResponse, error) {
	if h.deps.Relational == nil {
		return queryTableResponse{}, errors.New("relational backend is not configured")
	}
	tables, err := h.deps.Relational.ListTables(ctx)
	if err != nil {
		return queryTableResponse{}, fmt.Errorf("list tables: %w", err)
	}
	translated, err := h.translate(ctx, nl2sql.Request{
		NaturalLanguage: question,
		Target:          nl2sql.TargetSQL,
		Dialect:         h.deps.RelationalDialect,
		Tables:          tableContexts(tables),
		RowLimit:        h.cfg.Relational.ResultLimit,
	})
	if err != nil {
		return queryTableResponse{}, err
	}
	resp := queryTableResponse{SQLQuery: translated.SQL}
	if err := query.CheckReadOnly(translated.SQL); err != nil {
		return resp, err
	}

	result, err := h.deps.Relational.Execute(ctx, query.Request{SQL: translated.SQL, RowLimit: maxResultRows})
	if err != nil {
		return resp, err
	}
	resp.Data = envelopeTable(result)
	return resp, nil
}

func (h *handler) queryDocuments(ctx context.Context, question string) (queryTableResponse, error) {
	if h.deps.Documents == nil {
		return queryTableResponse{}, errors.New("document backend is not configured")
	}
	collections, err := h.deps.Documents.Collections(ctx)
	if err != nil {
		return queryTableResponse{}, fmt.Errorf("list collections: %w", err)
	}
	translated, err := h.translate(ctx, nl2sql.Request{
		NaturalLanguage: question,
		Target:          nl2sql.TargetDocument,
		Tables:          tableContexts(collections),
		RowLimit:        h.cfg.Relational.ResultLimit,
	})
	if err != nil {
		return queryTableResponse{}, err
	}
	if translated.Document == nil {
		return queryTableResponse{}, errors.New("translator returned no document query")
	}

	resp := queryTableResponse{SQLQuery: translated.Document}
	docs, err := h.deps.Documents.Find(ctx, *translated.Document)
	if err != nil {
		return resp, err
	}
	if docs == nil {
		docs = []any{}
	}
	resp.Data = docs
	return resp, nil
}

func (h *handler) translate(ctx context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	result, err := h.deps.Translator.Translate(ctx, req)
	if err != nil {
		if errors.Is(err, nl2sql.ErrNoTarget) {
			return nl2sql.Result{}, fmt.Errorf("could not tell which %s the question is about", targetNoun(req.Target))
		}
		return nl2sql.Result{}, fmt.Errorf("translate question: %w", err)
	}
	observability.ObserveTranslation(result.Provider)
	return result, nil
}

// resolveBackend maps the requested database type to a backend. An empty type
// is decided from the question's wording.
func resolveBackend(databaseType, question string) (backend.Kind, error) {
	if strings.TrimSpace(databaseType) == "" {
		lower := strings.ToLower(question)
		for _, keyword := range documentKeywords {
			if strings.Contains(lower, keyword) {
				return backend.Document, nil
			}
		}
		return backend.Relational, nil
	}
	return backend.Parse(databaseType)
}

func tableContexts(names []string) []nl2sql.TableContext {
	contexts := make([]nl2sql.TableContext, 0, len(names))
	for _, name := range names {
		contexts = append(contexts, nl2sql.TableContext{TableName: name})
	}
	return contexts
}

func targetNoun(target nl2sql.Target) string {
	if target == nl2sql.TargetDocument {
		return "collection"
	}
	return "table"
}

var _ DocumentStore = (*docstore.Store)(nil)
