// Package session owns the chat state for one user: the selected backend, the
// transcript, the request lifecycle and the latest normalized result.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chatdb/chatdb/internal/backend"
	"github.com/chatdb/chatdb/internal/chatlog"
	"github.com/chatdb/chatdb/internal/observability"
	"github.com/chatdb/chatdb/internal/queryapi"
	"github.com/chatdb/chatdb/internal/result"
)

type Lifecycle int

const (
	Idle Lifecycle = iota
	InFlight
	SettledOK
	SettledErr
)

func (l Lifecycle) String() string {
	switch l {
	case Idle:
		return "idle"
	case InFlight:
		return "in_flight"
	case SettledOK:
		return "settled_ok"
	case SettledErr:
		return "settled_err"
	default:
		return "unknown"
	}
}

// Outcome reports what SubmitQuery did with a submission.
type Outcome int

const (
	// OutcomeIgnored: blank text or no backend selected; nothing changed.
	OutcomeIgnored Outcome = iota
	// OutcomeBusy: another query is in flight; no request was issued.
	OutcomeBusy
	OutcomeOK
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeBusy:
		return "busy"
	case OutcomeOK:
		return "ok"
	case OutcomeFailed:
		return "error"
	default:
		return "unknown"
	}
}

// Querier is the query endpoint as seen by a session. *queryapi.Client satisfies it.
type Querier interface {
	QueryTable(ctx context.Context, req queryapi.Request) (queryapi.Response, error)
}

type Options struct {
	Logger *slog.Logger
	// Timeout bounds a single query; zero leaves the caller's context in charge.
	Timeout time.Duration
	Now     func() time.Time
}

type Session struct {
	querier Querier
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time

	mu         sync.Mutex
	log        *chatlog.Log
	active     backend.Kind
	lifecycle  Lifecycle
	lastResult result.Result
	lastError  string
	draft      string
}

func New(querier Querier, opts Options) (*Session, error) {
	if querier == nil {
		return nil, fmt.Errorf("querier is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Session{
		querier: querier,
		logger:  logger,
		timeout: opts.Timeout,
		now:     now,
		log:     chatlog.NewWithClock(now),
	}, nil
}

// SelectBackend switches the active backend and clears the previous result and error.
// Callers must not switch while a query is in flight; the presentation layer disables
// selection during that window.
func (s *Session) SelectBackend(kind backend.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = kind
	s.lastResult = nil
	s.lastError = ""
	s.log.Append(chatlog.Entry{
		Kind:    chatlog.SystemNotice,
		Content: fmt.Sprintf("Connected to %s.", kind.DisplayName()),
	})
	s.logger.Debug("backend selected", slog.String("backend", kind.WireName()))
}

// SubmitQuery sends text to the active backend and settles the outcome into the
// transcript. Errors never escape: they become a system notice and LastError.
func (s *Session) SubmitQuery(ctx context.Context, text string) Outcome {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	if text == "" || !s.active.Valid() {
		s.mu.Unlock()
		return OutcomeIgnored
	}
	if s.lifecycle == InFlight {
		s.mu.Unlock()
		s.logger.Debug("query rejected while in flight")
		return OutcomeBusy
	}
	kind := s.active
	s.transition(InFlight)
	s.log.Append(chatlog.Entry{Kind: chatlog.UserQuery, Content: text})
	s.mu.Unlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := s.now()
	resp, err := s.querier.QueryTable(ctx, queryapi.Request{Query: text, DatabaseType: kind.WireName()})
	elapsed := s.now().Sub(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailed
		s.settleError(kind, err)
	} else {
		s.settleSuccess(kind, resp)
	}
	observability.ObserveSessionQuery(kind.WireName(), outcome.String(), elapsed)

	s.draft = ""
	s.transition(Idle)
	return outcome
}

func (s *Session) settleSuccess(kind backend.Kind, resp queryapi.Response) {
	if echo, ok := echoedQuery(kind, resp.SQLQuery); ok {
		s.log.Append(echo)
	}

	normalized := result.NormalizeJSON(kind, resp.Data)
	s.lastResult = normalized
	s.lastError = ""
	s.log.Append(chatlog.Entry{Kind: chatlog.SystemNotice, Content: summary(normalized.Count())})
	observability.ObserveSessionResultRows(kind.WireName(), normalized.Count())

	if tab, ok := normalized.(result.Tabular); ok {
		if ragged := tab.RaggedRows(); len(ragged) > 0 {
			s.logger.Warn("result rows differ from header length",
				slog.Int("header_len", len(tab.Header)),
				slog.Int("ragged_rows", len(ragged)),
			)
		}
	}
	s.transition(SettledOK)
}

func (s *Session) settleError(kind backend.Kind, err error) {
	message := errorMessage(err)
	s.lastError = message
	s.log.Append(chatlog.Entry{Kind: chatlog.SystemNotice, Content: "Error: " + message})
	s.logger.Warn("query failed",
		slog.String("backend", kind.WireName()),
		slog.String("error", message),
	)
	s.transition(SettledErr)
}

func (s *Session) transition(next Lifecycle) {
	s.logger.Debug("session lifecycle", slog.String("from", s.lifecycle.String()), slog.String("to", next.String()))
	s.lifecycle = next
}

func (s *Session) ActiveBackend() (backend.Kind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.active.Valid()
}

func (s *Session) Lifecycle() Lifecycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle
}

func (s *Session) Entries() []chatlog.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.All()
}

func (s *Session) LastResult() (result.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult, s.lastResult != nil
}

func (s *Session) LastError() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError, s.lastError != ""
}

// SetDraft records the pending input text; a settled submission clears it.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

func summary(count int) string {
	switch count {
	case 0:
		return "No results found."
	case 1:
		return "Found 1 result."
	default:
		return fmt.Sprintf("Found %d results.", count)
	}
}

// echoedQuery renders the backend-generated query. Relational backends echo plain
// text; document backends always echo the serialized JSON value, even a bare string.
func echoedQuery(kind backend.Kind, raw json.RawMessage) (chatlog.Entry, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return chatlog.Entry{}, false
	}

	var structured any
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	if err := decoder.Decode(&structured); err != nil {
		return chatlog.Entry{Kind: chatlog.EchoedQuery, Content: string(trimmed)}, true
	}
	if text, ok := structured.(string); ok && strings.TrimSpace(text) == "" {
		return chatlog.Entry{}, false
	}

	if kind == backend.Relational {
		if text, ok := structured.(string); ok {
			return chatlog.Entry{Kind: chatlog.EchoedQuery, Content: strings.TrimSpace(text)}, true
		}
		serialized, err := json.Marshal(structured)
		if err != nil {
			serialized = trimmed
		}
		return chatlog.Entry{Kind: chatlog.EchoedQuery, Content: string(serialized)}, true
	}

	serialized, err := json.Marshal(structured)
	if err != nil {
		serialized = trimmed
	}
	return chatlog.Entry{Kind: chatlog.EchoedQuery, Content: string(serialized), Structured: structured}, true
}

func errorMessage(err error) string {
	var backendErr *queryapi.BackendError
	if errors.As(err, &backendErr) {
		return backendErr.Error()
	}
	var transportErr *queryapi.TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	return err.Error()
}
