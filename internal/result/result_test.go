package result

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/chatdb/chatdb/internal/backend"
)

func TestNormalizeRelationalUnwrapsEnvelopes(t *testing.T) {
	raw := []any{
		[]any{"id", "name"},
		[]any{map[string]any{"Value": 1}, map[string]any{"Value": "a"}},
		[]any{map[string]any{"Value": 2}, map[string]any{"Value": "b"}},
	}

	got, ok := Normalize(backend.Relational, raw).(Tabular)
	if !ok {
		t.Fatalf("expected Tabular result")
	}
	want := Tabular{
		Header: []string{"id", "name"},
		Rows:   [][]any{{1, "a"}, {2, "b"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Normalize() = %#v, want %#v", got, want)
	}
	if got.Count() != 2 {
		t.Fatalf("Count() = %d, want 2 (header excluded)", got.Count())
	}
	if len(got.RaggedRows()) != 0 {
		t.Fatalf("RaggedRows() = %v", got.RaggedRows())
	}
}

func TestNormalizeRelationalKeepsFalsyEnvelopeValues(t *testing.T) {
	raw := []any{
		[]any{"n", "s", "b"},
		[]any{map[string]any{"Value": 0}, map[string]any{"Value": ""}, map[string]any{"Value": false}},
	}

	got := Normalize(backend.Relational, raw).(Tabular)
	want := []any{0, "", false}
	if !reflect.DeepEqual(got.Rows[0], want) {
		t.Fatalf("row = %#v, want %#v", got.Rows[0], want)
	}
}

func TestNormalizeRelationalDropsNullCells(t *testing.T) {
	raw := []any{
		[]any{"id", "note", "qty"},
		[]any{map[string]any{"Value": 1}, map[string]any{"Value": nil}, map[string]any{"Value": 3}},
		[]any{2, nil, 4},
		[]any{map[string]any{"Value": 5}, "x", 6},
	}

	got := Normalize(backend.Relational, raw).(Tabular)
	if !reflect.DeepEqual(got.Rows[0], []any{1, 3}) {
		t.Fatalf("row 0 = %#v", got.Rows[0])
	}
	if !reflect.DeepEqual(got.Rows[1], []any{2, 4}) {
		t.Fatalf("row 1 = %#v", got.Rows[1])
	}
	if len(got.Rows[0]) == len(got.Header) {
		t.Fatal("dropping a null cell must shorten the row")
	}
	if !reflect.DeepEqual(got.RaggedRows(), []int{0, 1}) {
		t.Fatalf("RaggedRows() = %v", got.RaggedRows())
	}
	if got.Count() != 3 {
		t.Fatalf("Count() = %d", got.Count())
	}
}

func TestNormalizeRelationalPassesBareScalarsAndForeignObjects(t *testing.T) {
	other := map[string]any{"Name": "id", "Type": 4}
	raw := []any{
		[]any{"id", "meta"},
		[]any{7, other},
	}

	got := Normalize(backend.Relational, raw).(Tabular)
	if got.Rows[0][0] != 7 {
		t.Fatalf("bare scalar = %#v", got.Rows[0][0])
	}
	if !reflect.DeepEqual(got.Rows[0][1], other) {
		t.Fatalf("object without Value field = %#v", got.Rows[0][1])
	}
}

func TestNormalizeRelationalMalformedInput(t *testing.T) {
	cases := map[string]any{
		"nil":        nil,
		"empty":      []any{},
		"object":     map[string]any{"status": "ok"},
		"scalar":     "oops",
		"typed rows": [][]any{{"id"}},
	}
	for name, raw := range cases {
		got, ok := Normalize(backend.Relational, raw).(Tabular)
		if !ok {
			t.Fatalf("%s: expected Tabular", name)
		}
		if len(got.Header) != 0 || len(got.Rows) != 0 {
			t.Fatalf("%s: got %#v", name, got)
		}
		if got.Header == nil || got.Rows == nil {
			t.Fatalf("%s: expected empty, non-nil slices", name)
		}
	}
}

func TestNormalizeRelationalMalformedRowBecomesEmpty(t *testing.T) {
	raw := []any{
		[]any{"id"},
		"not a row",
		[]any{map[string]any{"Value": 1}},
	}

	got := Normalize(backend.Relational, raw).(Tabular)
	if len(got.Rows) != 2 {
		t.Fatalf("rows = %d", len(got.Rows))
	}
	if len(got.Rows[0]) != 0 {
		t.Fatalf("malformed row = %#v", got.Rows[0])
	}
	if !reflect.DeepEqual(got.Rows[1], []any{1}) {
		t.Fatalf("row 1 = %#v", got.Rows[1])
	}
}

func TestNormalizeRelationalHeaderOnly(t *testing.T) {
	got := Normalize(backend.Relational, []any{[]any{"id", map[string]any{"Value": "name"}}}).(Tabular)
	if !reflect.DeepEqual(got.Header, []string{"id", "name"}) {
		t.Fatalf("Header = %#v", got.Header)
	}
	if got.Count() != 0 {
		t.Fatalf("Count() = %d", got.Count())
	}
}

func TestNormalizeDocumentPassesThrough(t *testing.T) {
	raw := []any{map[string]any{"a": 1}, map[string]any{"a": 2}}

	got, ok := Normalize(backend.Document, raw).(Document)
	if !ok {
		t.Fatal("expected Document result")
	}
	if !reflect.DeepEqual(got.Items, raw) {
		t.Fatalf("Items = %#v", got.Items)
	}
	if got.Count() != 2 {
		t.Fatalf("Count() = %d", got.Count())
	}
	if got.Backend() != backend.Document {
		t.Fatalf("Backend() = %v", got.Backend())
	}
}

func TestNormalizeDocumentMalformedInput(t *testing.T) {
	got := Normalize(backend.Document, map[string]any{"a": 1}).(Document)
	if got.Count() != 0 || got.Items == nil {
		t.Fatalf("got %#v", got)
	}
}

func TestNormalizeJSONKeepsNumbers(t *testing.T) {
	got := NormalizeJSON(backend.Relational, []byte(`[["id","name"],[{"Value":1},{"Value":"a"}],[{"Value":2},{"Value":"b"}]]`)).(Tabular)
	want := [][]any{{json.Number("1"), "a"}, {json.Number("2"), "b"}}
	if !reflect.DeepEqual(got.Rows, want) {
		t.Fatalf("Rows = %#v", got.Rows)
	}

	docs := NormalizeJSON(backend.Document, []byte(`[{"a":1},{"a":2}]`)).(Document)
	if docs.Count() != 2 {
		t.Fatalf("Count() = %d", docs.Count())
	}

	broken := NormalizeJSON(backend.Relational, []byte(`[[`)).(Tabular)
	if broken.Count() != 0 {
		t.Fatalf("Count() = %d", broken.Count())
	}
}
