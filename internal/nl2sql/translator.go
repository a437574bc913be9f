// Package nl2sql turns a natural language question into a query for one of the
// two backends: SQL text for the relational engine or a structured lookup for
// the document store.
package nl2sql

import (
	"context"
	"errors"
	"fmt"

	"github.com/chatdb/chatdb/internal/docstore"
)

var ErrNoTarget = errors.New("no table or collection mentioned")

type Target int

const (
	TargetSQL Target = iota + 1
	TargetDocument
)

func (t Target) String() string {
	switch t {
	case TargetSQL:
		return "sql"
	case TargetDocument:
		return "document"
	default:
		return "unknown"
	}
}

type TableContext struct {
	TableName  string   `json:"table_name"`
	Columns    []string `json:"columns,omitempty"`
	SampleRows [][]any  `json:"sample_rows,omitempty"`
}

type Request struct {
	NaturalLanguage string         `json:"natural_language"`
	Target          Target         `json:"target"`
	Dialect         string         `json:"dialect,omitempty"`
	Tables          []TableContext `json:"tables"`
	RowLimit        int            `json:"row_limit,omitempty"`
}

// Result carries SQL for TargetSQL and Document for TargetDocument.
type Result struct {
	SQL      string          `json:"sql,omitempty"`
	Document *docstore.Query `json:"document,omitempty"`
	Provider string          `json:"provider"`
	Model    string          `json:"model,omitempty"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

// Fallback asks Primary first and Secondary when Primary fails.
type Fallback struct {
	Primary   Translator
	Secondary Translator
	OnError   func(err error)
}

func (f Fallback) Translate(ctx context.Context, req Request) (Result, error) {
	if f.Primary == nil {
		return f.Secondary.Translate(ctx, req)
	}
	result, err := f.Primary.Translate(ctx, req)
	if err == nil || f.Secondary == nil {
		return result, err
	}
	if f.OnError != nil {
		f.OnError(err)
	}
	fallback, fallbackErr := f.Secondary.Translate(ctx, req)
	if fallbackErr != nil {
		return Result{}, fmt.Errorf("%w (primary: %v)", fallbackErr, err)
	}
	return fallback, nil
}
