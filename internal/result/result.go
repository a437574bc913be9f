package result

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/chatdb/chatdb/internal/backend"
)

const (
	// HeaderRowIndex is the position of the column-name row in a relational payload.
	// The header is positional only; it carries no label of its own.
	HeaderRowIndex = 0

	// ValueField is the envelope key under which relational cells carry their scalar.
	ValueField = "Value"
)

// Result is either Tabular or Document.
type Result interface {
	Backend() backend.Kind
	// Count is the number of data rows (header excluded) or documents.
	Count() int
	isResult()
}

type Tabular struct {
	Header []string
	Rows   [][]any
}

func (Tabular) Backend() backend.Kind { return backend.Relational }
func (t Tabular) Count() int          { return len(t.Rows) }
func (Tabular) isResult()             {}

// RaggedRows lists the indexes of rows whose length differs from the header after
// null cells were dropped. Such rows are kept as-is.
func (t Tabular) RaggedRows() []int {
	var ragged []int
	for i, row := range t.Rows {
		if len(row) != len(t.Header) {
			ragged = append(ragged, i)
		}
	}
	return ragged
}

type Document struct {
	Items []any
}

func (Document) Backend() backend.Kind { return backend.Document }
func (d Document) Count() int          { return len(d.Items) }
func (Document) isResult()             {}

// Normalize converts a decoded backend payload into a Result. It never fails:
// malformed shapes degrade to empty structures.
func Normalize(kind backend.Kind, raw any) Result {
	if kind == backend.Document {
		return normalizeDocuments(raw)
	}
	return normalizeTable(raw)
}

// NormalizeJSON decodes data with json.Number preserved and normalizes it.
func NormalizeJSON(kind backend.Kind, data []byte) Result {
	var raw any
	if len(bytes.TrimSpace(data)) > 0 {
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.UseNumber()
		if err := decoder.Decode(&raw); err != nil {
			raw = nil
		}
	}
	return Normalize(kind, raw)
}

func normalizeDocuments(raw any) Document {
	items, ok := raw.([]any)
	if !ok {
		return Document{Items: []any{}}
	}
	return Document{Items: items}
}

func normalizeTable(raw any) Tabular {
	rows, ok := raw.([]any)
	if !ok || len(rows) == 0 {
		return Tabular{Header: []string{}, Rows: [][]any{}}
	}

	headerCells := normalizeRow(rows[HeaderRowIndex])
	header := make([]string, 0, len(headerCells))
	for _, cell := range headerCells {
		header = append(header, cellText(cell))
	}

	data := make([][]any, 0, len(rows)-1)
	for i, row := range rows {
		if i == HeaderRowIndex {
			continue
		}
		data = append(data, normalizeRow(row))
	}
	return Tabular{Header: header, Rows: data}
}

func normalizeRow(raw any) []any {
	cells, ok := raw.([]any)
	if !ok {
		return []any{}
	}
	out := make([]any, 0, len(cells))
	for _, cell := range cells {
		value := unwrapCell(cell)
		if value == nil {
			continue
		}
		out = append(out, value)
	}
	return out
}

func unwrapCell(cell any) any {
	envelope, ok := cell.(map[string]any)
	if !ok {
		return cell
	}
	if value, present := envelope[ValueField]; present {
		return value
	}
	return cell
}

func cellText(value any) string {
	if text, ok := value.(string); ok {
		return text
	}
	return fmt.Sprint(value)
}
