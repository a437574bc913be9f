package nl2sql

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/chatdb/chatdb/internal/docstore"
)

const KeywordProvider = "keyword"

var (
	conditionPattern = regexp.MustCompile(`(?i)\b(?:where|with)\s+([A-Za-z_][\w.]*)\s*(?:=|==|\bis\b|\bequals\b)\s*("[^"]*"|'[^']*'|[^\s,;]+)`)
	identPattern     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// KeywordTranslator needs no model. Questions that already are SQL (or a JSON
// lookup for documents) pass through. Otherwise the first table named in the
// question is selected, with one optional "where <field> is <value>" condition.
type KeywordTranslator struct {
	DefaultLimit int
}

func (k KeywordTranslator) Translate(_ context.Context, req Request) (Result, error) {
	text := strings.TrimSpace(req.NaturalLanguage)
	if text == "" {
		return Result{}, fmt.Errorf("question is required")
	}
	limit := req.RowLimit
	if limit <= 0 {
		limit = k.DefaultLimit
	}

	switch req.Target {
	case TargetDocument:
		return k.translateDocument(text, req.Tables, limit)
	case TargetSQL:
		return k.translateSQL(text, req.Tables, limit)
	default:
		return Result{}, fmt.Errorf("unsupported target %v", req.Target)
	}
}

func (k KeywordTranslator) translateSQL(text string, tables []TableContext, limit int) (Result, error) {
	upper := strings.ToUpper(text)
	if strings.HasPrefix(upper, "SELECT ") || strings.HasPrefix(upper, "WITH ") {
		return Result{SQL: text, Provider: KeywordProvider}, nil
	}
	table, ok := mentionedTable(text, tables)
	if !ok {
		return Result{}, ErrNoTarget
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(quoteIdent(table))
	if field, value, ok := condition(text); ok && identPattern.MatchString(field) {
		b.WriteString(" WHERE ")
		b.WriteString(quoteIdent(field))
		if typedValue(value) == nil {
			b.WriteString(" IS NULL")
		} else {
			b.WriteString(" = ")
			b.WriteString(sqlLiteral(value))
		}
	}
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	return Result{SQL: b.String(), Provider: KeywordProvider}, nil
}

func (k KeywordTranslator) translateDocument(text string, collections []TableContext, limit int) (Result, error) {
	if strings.HasPrefix(text, "{") {
		var q docstore.Query
		if err := json.Unmarshal([]byte(text), &q); err != nil {
			return Result{}, fmt.Errorf("decode document query: %w", err)
		}
		if q.Collection == "" {
			return Result{}, fmt.Errorf("document query needs a collection")
		}
		if q.Filter == nil {
			q.Filter = map[string]any{}
		}
		return Result{Document: &q, Provider: KeywordProvider}, nil
	}

	collection, ok := mentionedTable(text, collections)
	if !ok {
		return Result{}, ErrNoTarget
	}
	q := docstore.Query{Collection: collection, Filter: map[string]any{}, Limit: limit}
	if field, value, ok := condition(text); ok {
		q.Filter[field] = typedValue(value)
	}
	return Result{Document: &q, Provider: KeywordProvider}, nil
}

// mentionedTable returns the table whose name, or singular form, appears
// earliest in text.
func mentionedTable(text string, tables []TableContext) (string, bool) {
	lower := strings.ToLower(text)
	best, bestAt := "", -1
	for _, table := range tables {
		name := strings.ToLower(table.TableName)
		for _, candidate := range []string{name, strings.TrimSuffix(name, "s")} {
			if candidate == "" {
				continue
			}
			at := wordIndex(lower, candidate)
			if at >= 0 && (bestAt < 0 || at < bestAt) {
				best, bestAt = table.TableName, at
			}
		}
	}
	return best, bestAt >= 0
}

func wordIndex(text, word string) int {
	pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
	loc := pattern.FindStringIndex(text)
	if loc == nil {
		return -1
	}
	return loc[0]
}

func condition(text string) (string, string, bool) {
	match := conditionPattern.FindStringSubmatch(text)
	if match == nil {
		return "", "", false
	}
	return match[1], match[2], true
}

func typedValue(raw string) any {
	if unquoted, ok := unquote(raw); ok {
		return unquoted
	}
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if _, err := strconv.ParseFloat(raw, 64); err == nil {
		return json.Number(raw)
	}
	return raw
}

func sqlLiteral(raw string) string {
	switch value := typedValue(raw).(type) {
	case json.Number:
		return value.String()
	case bool:
		return strings.ToUpper(strconv.FormatBool(value))
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(value, "'", "''") + "'"
	default:
		return "NULL"
	}
}

func unquote(raw string) (string, bool) {
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') && raw[len(raw)-1] == raw[0] {
		return raw[1 : len(raw)-1], true
	}
	return "", false
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
