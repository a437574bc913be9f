// Package query defines the relational engine contract used by the backend
// service. Engines execute one read-only statement and return rows in column
// order.
package query

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var ErrNotReadOnly = errors.New("only SELECT and WITH statements are allowed")

var (
	// fileFunctionPattern matches table and scalar functions that reach the host
	// filesystem or load code.
	fileFunctionPattern = regexp.MustCompile(`(?i)\b(read_\w+|parquet_\w+|sniff_csv|glob|readfile|writefile|fsdir|edit|load_extension|query_table|iceberg_scan|delta_scan)\s*\(`)

	// fileScanPattern matches a string literal used as a table reference.
	fileScanPattern = regexp.MustCompile(`(?i)\b(from|join)\s+'`)
)

type TableFile struct {
	TableName     string
	ObjectPath    string
	FileSizeBytes int64
}

type Request struct {
	SQL      string
	RowLimit int
	// Files restricts a file backed engine to these objects. Empty means
	// every table the engine can discover.
	Files []TableFile
}

type Result struct {
	Columns      []string
	ColumnTypes  []string
	Rows         [][]any
	ScannedFiles int
	ScannedBytes int64
	Duration     time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
	ListTables(ctx context.Context) ([]string, error)
}

// CheckReadOnly accepts a single SELECT or WITH statement that reads only
// tables the engine exposes.
func CheckReadOnly(sqlText string) error {
	trimmed := StripTrailingSemicolons(sqlText)
	if trimmed == "" {
		return fmt.Errorf("sql is required")
	}
	if strings.Contains(trimmed, ";") {
		return fmt.Errorf("multiple statements: %w", ErrNotReadOnly)
	}
	keyword := strings.ToUpper(firstWord(trimmed))
	switch keyword {
	case "SELECT", "WITH":
	default:
		return fmt.Errorf("%s statement: %w", keyword, ErrNotReadOnly)
	}
	if match := fileFunctionPattern.FindStringSubmatch(trimmed); match != nil {
		return fmt.Errorf("file access through %s: %w", strings.ToLower(match[1]), ErrNotReadOnly)
	}
	if fileScanPattern.MatchString(trimmed) {
		return fmt.Errorf("file path as table: %w", ErrNotReadOnly)
	}
	return nil
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

// WrapLimit caps the row count of sqlText without rewriting it.
func WrapLimit(sqlText string, limit int) string {
	if limit <= 0 {
		return sqlText
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, limit)
}

func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// NormalizeValues turns driver byte slices into strings so values marshal as
// JSON text.
func NormalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func firstWord(text string) string {
	text = strings.TrimLeft(text, "( \t\r\n")
	end := strings.IndexFunc(text, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '('
	})
	if end < 0 {
		return text
	}
	return text[:end]
}
