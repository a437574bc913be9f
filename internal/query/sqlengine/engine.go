// Package sqlengine runs relational queries against a database/sql backend:
// SQLite through modernc.org/sqlite or PostgreSQL through pgx.
package sqlengine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/chatdb/chatdb/internal/query"
)

type Dialect struct {
	Name        string
	Driver      string
	TablesQuery string
}

var (
	SQLite = Dialect{
		Name:        "sqlite",
		Driver:      "sqlite",
		TablesQuery: `SELECT name FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY name`,
	}
	Postgres = Dialect{
		Name:        "postgres",
		Driver:      "pgx",
		TablesQuery: `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name`,
	}
)

func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case SQLite.Name:
		return SQLite, nil
	case Postgres.Name, "postgresql", "pgx":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported relational dialect %q", name)
	}
}

type Engine struct {
	db      *sql.DB
	dialect Dialect
}

func Open(ctx context.Context, dialect Dialect, dsn string) (*Engine, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}
	return &Engine{db: db, dialect: dialect}, nil
}

func NewWithDB(db *sql.DB, dialect Dialect) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &Engine{db: db, dialect: dialect}, nil
}

// DB exposes the pool for schema migrations.
func (e *Engine) DB() *sql.DB {
	return e.db
}

func (e *Engine) Dialect() Dialect {
	return e.dialect
}

// HealthCheck pings the database.
func (e *Engine) HealthCheck(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", e.dialect.Name, err)
	}
	return nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if err := query.CheckReadOnly(request.SQL); err != nil {
		return query.Result{}, err
	}
	sqlText := query.StripTrailingSemicolons(request.SQL)

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, query.WrapLimit(sqlText, request.RowLimit))
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result, err := query.CollectRows(rows)
	if err != nil {
		return query.Result{}, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (e *Engine) ListTables(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, e.dialect.TablesQuery)
	if err != nil {
		return nil, fmt.Errorf("list %s tables: %w", e.dialect.Name, err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}
