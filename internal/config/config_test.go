package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("chatdb", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.Client.APIURL != "http://localhost:5000" {
		t.Fatalf("Client.APIURL = %q", cfg.Client.APIURL)
	}
	if cfg.Client.QueryTimeout != 30*time.Second {
		t.Fatalf("Client.QueryTimeout = %s", cfg.Client.QueryTimeout)
	}
	if cfg.HTTP.Address != ":5000" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Relational.Engine != EngineSQLite {
		t.Fatalf("Relational.Engine = %q", cfg.Relational.Engine)
	}
	if cfg.Relational.ResultLimit != 10 {
		t.Fatalf("Relational.ResultLimit = %d", cfg.Relational.ResultLimit)
	}
	if cfg.ObjectStore.Enabled {
		t.Fatal("ObjectStore.Enabled should default to false")
	}
	if cfg.ObjectStore.LocalDir != "data" {
		t.Fatalf("ObjectStore.LocalDir = %q", cfg.ObjectStore.LocalDir)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.AI.TranslateEnabled {
		t.Fatal("AI.TranslateEnabled should default to false")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("chatdb-server", mapLookup(map[string]string{"CHATDB_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo || !cfg.Observability.LogJSON {
		t.Fatalf("Observability = %+v", cfg.Observability)
	}
	if !cfg.ObjectStore.UseSSL || cfg.ObjectStore.AutoCreateBucket {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
	if cfg.Service.Name != "chatdb-server" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	cfg, err := Load("chatdb", mapLookup(map[string]string{
		"CHATDB_PROFILE":              "test",
		"CHATDB_SERVICE_NAME":         "chatdb-custom",
		"CHATDB_API_URL":              "http://api.internal:5000",
		"CHATDB_QUERY_TIMEOUT":        "7s",
		"CHATDB_DEFAULT_BACKEND":      "mongodb",
		"CHATDB_HISTORY_FILE":         "/tmp/chatdb_history",
		"CHATDB_HTTP_ADDR":            ":9999",
		"CHATDB_HTTP_READ_TIMEOUT":    "2s",
		"CHATDB_RELATIONAL_ENGINE":    "duckdb",
		"CHATDB_RELATIONAL_DSN":       "",
		"CHATDB_RESULT_LIMIT":         "25",
		"CHATDB_OBJECTSTORE_ENABLED":  "true",
		"CHATDB_OBJECTSTORE_ENDPOINT": "s3.example.com",
		"CHATDB_OBJECTSTORE_BUCKET":   "chatdb-prod",
		"CHATDB_OBJECTSTORE_PREFIX":   "lake",
		"CHATDB_AI_TRANSLATE_ENABLED": "true",
		"CHATDB_AI_API_KEY":           "secret-key",
		"CHATDB_AI_MODEL":             "gpt-5.2",
		"CHATDB_AI_TEMPERATURE":       "0.3",
		"CHATDB_AI_TIMEOUT":           "21s",
		"CHATDB_LOG_LEVEL":            "error",
		"CHATDB_LOG_JSON":             "true",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "chatdb-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.Client.APIURL != "http://api.internal:5000" || cfg.Client.QueryTimeout != 7*time.Second {
		t.Fatalf("Client = %+v", cfg.Client)
	}
	if cfg.Client.DefaultBackend != "mongodb" || cfg.Client.HistoryFile != "/tmp/chatdb_history" {
		t.Fatalf("Client = %+v", cfg.Client)
	}
	if cfg.HTTP.Address != ":9999" || cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.Relational.Engine != EngineDuckDB || cfg.Relational.ResultLimit != 25 {
		t.Fatalf("Relational = %+v", cfg.Relational)
	}
	if !cfg.ObjectStore.Enabled || cfg.ObjectStore.Bucket != "chatdb-prod" || cfg.ObjectStore.Prefix != "lake" {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
	if !cfg.AI.TranslateEnabled || cfg.AI.Model != "gpt-5.2" || cfg.AI.Temperature != 0.3 || cfg.AI.Timeout != 21*time.Second {
		t.Fatalf("AI = %+v", cfg.AI)
	}
	if cfg.Observability.LogLevel != slog.LevelError || !cfg.Observability.LogJSON {
		t.Fatalf("Observability = %+v", cfg.Observability)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"CHATDB_PROFILE": "oops"},
		{"CHATDB_QUERY_TIMEOUT": "soon"},
		{"CHATDB_HTTP_READ_TIMEOUT": "NaN"},
		{"CHATDB_RELATIONAL_ENGINE": "oracle"},
		{"CHATDB_RESULT_LIMIT": "oops"},
		{"CHATDB_RESULT_LIMIT": "-1"},
		{"CHATDB_AI_TEMPERATURE": "bad"},
		{"CHATDB_OBJECTSTORE_ENABLED": "not-bool"},
		{"CHATDB_LOG_LEVEL": "verbose"},
		{"CHATDB_API_URL": " "},
		{"CHATDB_OBJECTSTORE_LOCAL_DIR": ""},
	}
	for _, env := range tests {
		if _, err := Load("chatdb", mapLookup(env)); err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func TestLoadAllowsDuckDBOverLocalDirectory(t *testing.T) {
	cfg, err := Load("chatdb", mapLookup(map[string]string{"CHATDB_RELATIONAL_ENGINE": "duckdb"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Relational.Engine != EngineDuckDB || cfg.ObjectStore.Enabled || cfg.ObjectStore.LocalDir != "data" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
