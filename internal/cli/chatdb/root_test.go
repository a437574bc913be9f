package chatdb

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/chatdb/chatdb/internal/queryapi"
)

type scriptStep struct {
	line string
	err  error
}

type scriptedReader struct {
	steps  []scriptStep
	prompt string
	closed bool
}

func (r *scriptedReader) Readline() (string, error) {
	if len(r.steps) == 0 {
		return "", io.EOF
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	return step.line, step.err
}

func (r *scriptedReader) SetPrompt(prompt string) { r.prompt = prompt }
func (r *scriptedReader) Close() error            { r.closed = true; return nil }

func lines(values ...string) *scriptedReader {
	reader := &scriptedReader{}
	for _, value := range values {
		reader.steps = append(reader.steps, scriptStep{line: value})
	}
	return reader
}

// fakeBackend answers the three ChatDB endpoints and records query requests.
type fakeBackend struct {
	mu       sync.Mutex
	queries  []queryapi.Request
	connects []string
	query    func(req queryapi.Request) any
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case queryapi.QueryTablePath:
		var req queryapi.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.queries = append(b.queries, req)
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(b.query(req))
	case queryapi.ConnectPath:
		var body struct {
			DatabaseType string `json:"databaseType"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.connects = append(b.connects, body.DatabaseType)
		b.mu.Unlock()
		tables := []string{"customers", "orders"}
		if body.DatabaseType == "mongodb" {
			tables = []string{"orders"}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "database": body.DatabaseType, "tables": tables})
	case queryapi.HealthPath:
		_, _ = w.Write([]byte(`{"status":"healthy","timestamp":"2026-01-02T03:04:05Z"}`))
	default:
		http.NotFound(w, r)
	}
}

func tabularAnswer(queryapi.Request) any {
	return map[string]any{
		"status":        "success",
		"database_used": "sqlite",
		"sql_query":     "SELECT id, name FROM customers LIMIT 1000",
		"data": []any{
			[]any{map[string]any{"Name": "id", "Type": 3, "Value": "id"}, map[string]any{"Name": "name", "Type": 3, "Value": "name"}},
			[]any{map[string]any{"Name": "id", "Type": 1, "Value": 1}, map[string]any{"Name": "name", "Type": 3, "Value": "alice"}},
			[]any{map[string]any{"Name": "id", "Type": 1, "Value": 2}, map[string]any{"Name": "name", "Type": 3, "Value": "bob"}},
		},
	}
}

func documentAnswer(queryapi.Request) any {
	return map[string]any{
		"status":        "success",
		"database_used": "mongodb",
		"sql_query":     map[string]any{"collection": "orders", "filter": map[string]any{}},
		"data":          []any{map[string]any{"sku": "a-1", "qty": 3}},
	}
}

func runCLI(t *testing.T, args []string, reader *scriptedReader) (int, string, string) {
	t.Helper()
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := Run(context.Background(), args, Options{
		Stdout: &stdout,
		Stderr: &stderr,
		NewLineReader: func(cfg LineReaderConfig) (LineReader, error) {
			if reader == nil {
				t.Fatal("unexpected line reader")
			}
			reader.prompt = cfg.Prompt
			return reader, nil
		},
	})
	return code, stdout.String(), stderr.String()
}

func TestRunAskPrintsTranscriptAndTable(t *testing.T) {
	backend := &fakeBackend{query: tabularAnswer}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	code, stdout, stderr := runCLI(t, []string{"--api-url", srv.URL, "ask", "-b", "sqlite", "list", "customers"}, nil)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr)
	}
	if len(backend.queries) != 1 {
		t.Fatalf("queries = %d, want 1", len(backend.queries))
	}
	if got := backend.queries[0]; got.Query != "list customers" || got.DatabaseType != "sqlite" {
		t.Fatalf("request = %+v", got)
	}
	for _, want := range []string{"you> list customers", "query: SELECT id, name FROM customers", "Found 2 results.", "alice", "bob"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("stdout missing %q:\n%s", want, stdout)
		}
	}
	if strings.Contains(stdout, "Connected to") {
		t.Fatalf("one-shot output should skip the connect notice:\n%s", stdout)
	}
}

func TestRunAskHideQuery(t *testing.T) {
	srv := httptest.NewServer(&fakeBackend{query: tabularAnswer})
	defer srv.Close()

	code, stdout, _ := runCLI(t, []string{"--api-url", srv.URL, "ask", "-b", "sqlite", "--show-query=false", "customers"}, nil)
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if strings.Contains(stdout, "query: ") {
		t.Fatalf("stdout should not echo the query:\n%s", stdout)
	}
}

func TestRunAskBackendErrorExitsOne(t *testing.T) {
	srv := httptest.NewServer(&fakeBackend{query: func(queryapi.Request) any {
		return map[string]any{"status": "error", "message": "no such table: widgets"}
	}})
	defer srv.Close()

	code, stdout, stderr := runCLI(t, []string{"--api-url", srv.URL, "ask", "-b", "sqlite", "widgets"}, nil)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stdout, "Error: no such table: widgets") {
		t.Fatalf("stdout = %q", stdout)
	}
	if stderr != "" {
		t.Fatalf("error was reported twice, stderr = %q", stderr)
	}
}

func TestRunAskRequiresBackend(t *testing.T) {
	code, _, stderr := runCLI(t, []string{"--api-url", "http://127.0.0.1:1", "ask", "anything"}, nil)
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr, "--backend is required") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestRunRejectsUnknownBackendAndFlags(t *testing.T) {
	if code, _, _ := runCLI(t, []string{"--api-url", "http://127.0.0.1:1", "ask", "-b", "oracle", "x"}, nil); code != 2 {
		t.Fatalf("unknown backend exit code = %d, want 2", code)
	}
	if code, _, _ := runCLI(t, []string{"--no-such-flag"}, nil); code != 2 {
		t.Fatalf("unknown flag exit code = %d, want 2", code)
	}
}

func TestRunAskTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	code, stdout, _ := runCLI(t, []string{"--api-url", srv.URL, "ask", "-b", "mongodb", "orders"}, nil)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stdout, "Error: ") || !strings.Contains(stdout, "502") {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestRunChatSession(t *testing.T) {
	backend := &fakeBackend{query: documentAnswer}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	reader := lines(".use mongodb", "show orders", ".result", ".tables", ".bogus", ".quit", "never read")
	code, stdout, stderr := runCLI(t, []string{"--api-url", srv.URL, "chat"}, reader)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr)
	}
	if !reader.closed {
		t.Fatal("line reader was not closed")
	}
	if reader.prompt != "chatdb:mongodb> " {
		t.Fatalf("prompt = %q", reader.prompt)
	}
	if len(reader.steps) != 1 {
		t.Fatalf("remaining script = %d, want 1", len(reader.steps))
	}
	if len(backend.queries) != 1 || backend.queries[0].DatabaseType != "mongodb" {
		t.Fatalf("queries = %+v", backend.queries)
	}
	if len(backend.connects) != 2 {
		t.Fatalf("connects = %v, want .use and .tables", backend.connects)
	}
	for _, want := range []string{
		"Connected to MongoDB.",
		"Collections: orders",
		"you> show orders",
		`query: {"collection":"orders","filter":{}}`,
		"Found 1 result.",
		`"sku": "a-1"`,
	} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("stdout missing %q:\n%s", want, stdout)
		}
	}
	if strings.Count(stdout, `"sku": "a-1"`) != 2 {
		t.Fatalf(".result should print the document again:\n%s", stdout)
	}
	if !strings.Contains(stderr, "Unknown command: .bogus") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestRunChatBackendFlagPreselects(t *testing.T) {
	backend := &fakeBackend{query: tabularAnswer}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	code, stdout, stderr := runCLI(t, []string{"--api-url", srv.URL, "-b", "sqlite", "chat"}, lines("customers"))
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr)
	}
	if len(backend.connects) != 1 || backend.connects[0] != "sqlite" {
		t.Fatalf("connects = %v", backend.connects)
	}
	for _, want := range []string{"Tables: customers, orders", "Found 2 results.", "alice"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestRunChatWithoutBackendHints(t *testing.T) {
	backend := &fakeBackend{query: tabularAnswer}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	reader := &scriptedReader{steps: []scriptStep{
		{err: ErrInterrupt},
		{line: "how many orders"},
		{line: ".use"},
	}}
	code, _, stderr := runCLI(t, []string{"--api-url", srv.URL, "chat"}, reader)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr)
	}
	if len(backend.queries) != 0 {
		t.Fatalf("queries = %d, want 0", len(backend.queries))
	}
	if !strings.Contains(stderr, "No database selected") {
		t.Fatalf("stderr = %q", stderr)
	}
	if !strings.Contains(stderr, "Usage: .use sqlite|mongodb") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestRunTablesCommand(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	code, stdout, stderr := runCLI(t, []string{"--api-url", srv.URL, "tables", "-b", "sqlite"}, nil)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, "customers") || !strings.Contains(stdout, "orders") {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestRunHealthCommand(t *testing.T) {
	srv := httptest.NewServer(&fakeBackend{})
	defer srv.Close()

	code, stdout, stderr := runCLI(t, []string{"--api-url", srv.URL, "health"}, nil)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, "healthy") || !strings.Contains(stdout, "2026-01-02T03:04:05Z") {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestFormatCell(t *testing.T) {
	cases := []struct {
		value any
		want  string
	}{
		{value: "x", want: "x"},
		{value: json.Number("0"), want: "0"},
		{value: true, want: "true"},
		{value: map[string]any{"a": json.Number("1")}, want: `{"a":1}`},
	}
	for _, tc := range cases {
		if got := formatCell(tc.value); got != tc.want {
			t.Fatalf("formatCell(%v) = %q, want %q", tc.value, got, tc.want)
		}
	}
}
