package queryapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chatdb/chatdb/internal/backend"
)

const (
	QueryTablePath = "/api/query/table"
	ConnectPath    = "/api/database/connect"
	HealthPath     = "/api/health"

	TraceHeader = "X-Trace-ID"

	StatusOK      = "ok"
	StatusSuccess = "success"
	StatusError   = "error"
)

type Request struct {
	Query        string `json:"query"`
	DatabaseType string `json:"database_type"`
}

// Response mirrors the query endpoint body. SQLQuery and Data are kept raw because
// their shape depends on the backend that served the query.
type Response struct {
	Status       string          `json:"status"`
	Message      string          `json:"message,omitempty"`
	DatabaseUsed string          `json:"database_used,omitempty"`
	SQLQuery     json.RawMessage `json:"sql_query,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

func (r Response) OK() bool {
	switch strings.ToLower(strings.TrimSpace(r.Status)) {
	case StatusOK, StatusSuccess:
		return true
	default:
		return false
	}
}

type ConnectResponse struct {
	Status   string   `json:"status"`
	Database string   `json:"database"`
	Tables   []string `json:"tables"`
	Message  string   `json:"message,omitempty"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL    string
	client     *http.Client
	newTraceID func() string
}

func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    baseURL,
		client:     client,
		newTraceID: func() string { return uuid.NewString() },
	}, nil
}

// QueryTable posts a natural-language query. A payload-level error status is returned
// as *BackendError together with the decoded response; everything else that prevents
// a usable response, including a missing or unknown status, is a *TransportError.
func (c *Client) QueryTable(ctx context.Context, req Request) (Response, error) {
	var resp Response
	if err := c.postJSON(ctx, QueryTablePath, req, &resp); err != nil {
		return Response{}, err
	}
	switch {
	case resp.OK():
		return resp, nil
	case strings.EqualFold(strings.TrimSpace(resp.Status), StatusError):
		return resp, &BackendError{Message: resp.Message, Status: resp.Status}
	default:
		return Response{}, &TransportError{
			Op:  "decode response",
			Err: fmt.Errorf("missing or unknown status %q", resp.Status),
		}
	}
}

func (c *Client) Connect(ctx context.Context, kind backend.Kind) (ConnectResponse, error) {
	var resp ConnectResponse
	body := map[string]string{"databaseType": kind.WireName()}
	if err := c.postJSON(ctx, ConnectPath, body, &resp); err != nil {
		return ConnectResponse{}, err
	}
	if strings.EqualFold(resp.Status, StatusError) {
		return resp, &BackendError{Message: resp.Message, Status: resp.Status}
	}
	return resp, nil
}

func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, HealthPath, nil, &resp); err != nil {
		return HealthResponse{}, err
	}
	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &TransportError{Op: "encode request", Err: err}
	}
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &TransportError{Op: "build request", Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set(TraceHeader, c.newTraceID())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return &TransportError{Op: "send request", Err: err, TimedOut: isTimeout(ctx, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: "read response body", Err: err, TimedOut: isTimeout(ctx, err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{
			Op:         "query endpoint",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("status=%d body=%s", resp.StatusCode, truncate(strings.TrimSpace(string(raw)), 200)),
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{Op: "decode response", Err: err}
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
