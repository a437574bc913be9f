package nl2sql

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestKeywordTranslatorSQL(t *testing.T) {
	translator := KeywordTranslator{DefaultLimit: 10}
	tables := []TableContext{{TableName: "customers"}, {TableName: "sales"}}

	cases := []struct {
		question string
		want     string
	}{
		{"SELECT id FROM sales", "SELECT id FROM sales"},
		{"with t as (select 1) select * from t", "with t as (select 1) select * from t"},
		{"show sales", `SELECT * FROM "sales" LIMIT 10`},
		{"which customer bought the most sales", `SELECT * FROM "customers" LIMIT 10`},
		{"sales where region is 'eu'", `SELECT * FROM "sales" WHERE "region" = 'eu' LIMIT 10`},
		{"sales where amount = 12.5", `SELECT * FROM "sales" WHERE "amount" = 12.5 LIMIT 10`},
		{"sales where paid is true", `SELECT * FROM "sales" WHERE "paid" = TRUE LIMIT 10`},
		{"customers where email is null", `SELECT * FROM "customers" WHERE "email" IS NULL LIMIT 10`},
		{"customers where email = NULL", `SELECT * FROM "customers" WHERE "email" IS NULL LIMIT 10`},
	}
	for _, tc := range cases {
		result, err := translator.Translate(context.Background(), Request{NaturalLanguage: tc.question, Target: TargetSQL, Tables: tables})
		if err != nil {
			t.Fatalf("Translate(%q) error = %v", tc.question, err)
		}
		if result.SQL != tc.want {
			t.Fatalf("Translate(%q) = %q, want %q", tc.question, result.SQL, tc.want)
		}
		if result.Provider != KeywordProvider {
			t.Fatalf("Provider = %q", result.Provider)
		}
	}
}

func TestKeywordTranslatorRequestLimitWins(t *testing.T) {
	result, err := KeywordTranslator{DefaultLimit: 10}.Translate(context.Background(), Request{
		NaturalLanguage: "sales",
		Target:          TargetSQL,
		Tables:          []TableContext{{TableName: "sales"}},
		RowLimit:        3,
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.SQL != `SELECT * FROM "sales" LIMIT 3` {
		t.Fatalf("SQL = %q", result.SQL)
	}
}

func TestKeywordTranslatorDocument(t *testing.T) {
	translator := KeywordTranslator{DefaultLimit: 10}
	collections := []TableContext{{TableName: "orders"}}

	result, err := translator.Translate(context.Background(), Request{
		NaturalLanguage: "list orders where status = shipped",
		Target:          TargetDocument,
		Tables:          collections,
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	want := map[string]any{"status": "shipped"}
	if result.Document == nil || result.Document.Collection != "orders" || result.Document.Limit != 10 || !reflect.DeepEqual(result.Document.Filter, want) {
		t.Fatalf("Translate() = %+v", result.Document)
	}

	result, err = translator.Translate(context.Background(), Request{
		NaturalLanguage: "order where qty is 3",
		Target:          TargetDocument,
		Tables:          collections,
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.Document.Filter["qty"] != json.Number("3") {
		t.Fatalf("Filter = %#v", result.Document.Filter)
	}
}

func TestKeywordTranslatorDocumentPassthrough(t *testing.T) {
	result, err := KeywordTranslator{}.Translate(context.Background(), Request{
		NaturalLanguage: `{"collection":"orders","filter":{"sku":"a-1"},"limit":1}`,
		Target:          TargetDocument,
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.Document.Collection != "orders" || result.Document.Limit != 1 || result.Document.Filter["sku"] != "a-1" {
		t.Fatalf("Translate() = %+v", result.Document)
	}

	if _, err := (KeywordTranslator{}).Translate(context.Background(), Request{NaturalLanguage: `{"filter":{}}`, Target: TargetDocument}); err == nil {
		t.Fatal("expected missing collection error")
	}
}

func TestKeywordTranslatorNoTarget(t *testing.T) {
	_, err := KeywordTranslator{}.Translate(context.Background(), Request{
		NaturalLanguage: "how is the weather",
		Target:          TargetSQL,
		Tables:          []TableContext{{TableName: "sales"}},
	})
	if !errors.Is(err, ErrNoTarget) {
		t.Fatalf("Translate() error = %v", err)
	}
	if _, err := (KeywordTranslator{}).Translate(context.Background(), Request{NaturalLanguage: " ", Target: TargetSQL}); err == nil {
		t.Fatal("expected blank question error")
	}
}

func TestFallbackUsesSecondaryOnError(t *testing.T) {
	var reported error
	primary := stubTranslator{err: errors.New("model down")}
	secondary := stubTranslator{result: Result{SQL: "SELECT 1", Provider: KeywordProvider}}

	result, err := Fallback{Primary: primary, Secondary: secondary, OnError: func(err error) { reported = err }}.
		Translate(context.Background(), Request{NaturalLanguage: "x", Target: TargetSQL})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.Provider != KeywordProvider || reported == nil {
		t.Fatalf("result=%+v reported=%v", result, reported)
	}

	both := Fallback{Primary: primary, Secondary: stubTranslator{err: ErrNoTarget}}
	if _, err := both.Translate(context.Background(), Request{}); !errors.Is(err, ErrNoTarget) {
		t.Fatalf("Translate() error = %v", err)
	}
}

type stubTranslator struct {
	result Result
	err    error
}

func (s stubTranslator) Translate(context.Context, Request) (Result, error) {
	return s.result, s.err
}
