package chatdb

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/chatdb/chatdb/internal/chatlog"
	"github.com/chatdb/chatdb/internal/result"
)

var (
	userMessageStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("135"))
	queryStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Italic(true)
	warningStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	successStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)

// transcript writes chat entries and remembers how many it has shown.
type transcript struct {
	w        io.Writer
	rendered int
}

// flush writes the entries appended since the previous call.
func (t *transcript) flush(entries []chatlog.Entry) {
	if t.rendered > len(entries) {
		t.rendered = 0
	}
	for _, entry := range entries[t.rendered:] {
		writeEntry(t.w, entry)
	}
	t.rendered = len(entries)
}

func writeEntry(w io.Writer, entry chatlog.Entry) {
	switch entry.Kind {
	case chatlog.UserQuery:
		_, _ = fmt.Fprintln(w, userMessageStyle.Render("you>")+" "+entry.Content)
	case chatlog.EchoedQuery:
		_, _ = fmt.Fprintln(w, queryStyle.Render("query: "+entry.Content))
	case chatlog.SystemNotice:
		if strings.HasPrefix(entry.Content, "Error: ") {
			_, _ = fmt.Fprintln(w, errorStyle.Render(entry.Content))
			return
		}
		_, _ = fmt.Fprintln(w, systemMessageStyle.Render(entry.Content))
	default:
		_, _ = fmt.Fprintln(w, entry.Content)
	}
}

func writeResult(w io.Writer, res result.Result) {
	switch typed := res.(type) {
	case result.Tabular:
		writeTabular(w, typed)
	case result.Document:
		writeDocuments(w, typed)
	}
}

func writeTabular(w io.Writer, tab result.Tabular) {
	if len(tab.Header) == 0 && len(tab.Rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	headerRow := make(table.Row, len(tab.Header))
	for i, column := range tab.Header {
		headerRow[i] = column
	}
	t.AppendHeader(headerRow)
	for _, row := range tab.Rows {
		tableRow := make(table.Row, len(row))
		for i, value := range row {
			tableRow[i] = formatCell(value)
		}
		t.AppendRow(tableRow)
	}
	t.Render()

	if ragged := tab.RaggedRows(); len(ragged) > 0 {
		_, _ = fmt.Fprintln(w, warningStyle.Render(fmt.Sprintf(
			"warning: %d row(s) have fewer cells than columns because empty values were dropped; columns may not line up",
			len(ragged),
		)))
	}
}

func writeDocuments(w io.Writer, doc result.Document) {
	for _, item := range doc.Items {
		formatted, err := json.MarshalIndent(item, "", "  ")
		if err != nil {
			_, _ = fmt.Fprintln(w, fmt.Sprint(item))
			continue
		}
		_, _ = fmt.Fprintln(w, string(formatted))
	}
}

func formatCell(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case json.Number:
		return typed.String()
	case map[string]any, []any:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}
		return string(encoded)
	default:
		return fmt.Sprint(typed)
	}
}
