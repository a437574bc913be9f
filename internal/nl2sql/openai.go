package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chatdb/chatdb/internal/docstore"
)

const OpenAIProvider = "openai-compatible"

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	HTTPClient  *http.Client
}

type OpenAITranslator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func NewOpenAITranslator(cfg OpenAIConfig) (*OpenAITranslator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-5"
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &OpenAITranslator{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		client:      client,
	}, nil
}

func (t *OpenAITranslator) Translate(ctx context.Context, req Request) (Result, error) {
	promptPayload, err := buildOpenAIPayload(t.model, t.temperature, req)
	if err != nil {
		return Result{}, err
	}
	body, err := json.Marshal(promptPayload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Result{}, fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, fmt.Errorf("empty chat completion choices")
	}

	content := stripMarkdownFence(parsed.Choices[0].Message.Content)
	if strings.TrimSpace(content) == "" {
		return Result{}, fmt.Errorf("model returned an empty query")
	}
	result := Result{Provider: OpenAIProvider, Model: t.model}
	if req.Target == TargetDocument {
		var q docstore.Query
		if err := json.Unmarshal([]byte(content), &q); err != nil {
			return Result{}, fmt.Errorf("decode model document query: %w", err)
		}
		if strings.TrimSpace(q.Collection) == "" {
			return Result{}, fmt.Errorf("model document query has no collection")
		}
		if q.Filter == nil {
			q.Filter = map[string]any{}
		}
		result.Document = &q
		return result, nil
	}
	result.SQL = content
	return result, nil
}

func buildOpenAIPayload(model string, temperature float64, req Request) (map[string]any, error) {
	tablesJSON, err := json.Marshal(req.Tables)
	if err != nil {
		return nil, fmt.Errorf("marshal table context: %w", err)
	}
	limit := req.RowLimit
	if limit <= 0 {
		limit = 200
	}

	var systemPrompt, rules string
	switch req.Target {
	case TargetDocument:
		systemPrompt = "You convert natural language requests into a lookup on a JSON document collection. " +
			`Return ONLY a JSON object {"collection": string, "filter": object, "limit": number}. ` +
			"Filters use MongoDB syntax limited to equality, $eq, $ne, $gt, $gte, $lt, $lte, $in and $exists."
		rules = fmt.Sprintf("- Use only listed collections.\n- Use dotted paths for nested fields.\n- Set limit to %d unless the user asks otherwise.", limit)
	default:
		dialect := req.Dialect
		if dialect == "" {
			dialect = "SQLite"
		}
		systemPrompt = fmt.Sprintf("You convert natural language requests into a single read-only %s SQL query. ", dialect) +
			"Return ONLY SQL. No markdown, no explanation."
		rules = fmt.Sprintf("- Use only listed tables.\n- Prefer explicit columns.\n- Add LIMIT %d unless the user asks otherwise.\n- Output a single SELECT query only.", limit)
	}
	userPrompt := fmt.Sprintf(
		"Schema context (JSON):\n%s\n\nUser request:\n%s\n\nRules:\n%s",
		string(tablesJSON),
		strings.TrimSpace(req.NaturalLanguage),
		rules,
	)

	return map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": temperature,
	}, nil
}

func stripMarkdownFence(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 && !strings.ContainsAny(trimmed[:newline], " {") {
			trimmed = trimmed[newline+1:]
		}
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
