package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/chatdb/chatdb/internal/backend"
	"github.com/chatdb/chatdb/internal/observability"
	"github.com/chatdb/chatdb/internal/queryapi"
)

type connectRequest struct {
	DatabaseType string `json:"databaseType"`
}

// handleConnect lists the tables or collections a backend can answer from.
func (h *handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	var request connectRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, queryapi.ConnectResponse{Status: queryapi.StatusError, Message: "invalid request body"})
		return
	}
	kind, err := backend.Parse(request.DatabaseType)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, queryapi.ConnectResponse{Status: queryapi.StatusError, Message: err.Error()})
		return
	}

	var names []string
	switch kind {
	case backend.Document:
		if h.deps.Documents == nil {
			err = errors.New("document backend is not configured")
			break
		}
		names, err = h.deps.Documents.Collections(r.Context())
	default:
		if h.deps.Relational == nil {
			err = errors.New("relational backend is not configured")
			break
		}
		names, err = h.deps.Relational.ListTables(r.Context())
	}
	if err != nil {
		observability.LoggerFromContext(r.Context(), h.deps.Logger).Warn("connect failed",
			slog.String("database", kind.WireName()),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusOK, queryapi.ConnectResponse{Status: queryapi.StatusError, Database: kind.WireName(), Message: err.Error()})
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, queryapi.ConnectResponse{Status: queryapi.StatusSuccess, Database: kind.WireName(), Tables: names})
}
