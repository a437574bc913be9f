// Package duckdb runs relational queries over parquet files kept in the object
// store under tables/<name>/. Each table becomes a view over its files.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/chatdb/chatdb/internal/query"
	"github.com/chatdb/chatdb/internal/storage"
)

type Engine struct {
	Store storage.ObjectStore
	// Open returns the database the views are created in. Defaults to an
	// in-memory duckdb.
	Open func() (*sql.DB, error)
}

func NewEngine(store storage.ObjectStore) *Engine {
	return &Engine{Store: store, Open: openInMemory}
}

func openInMemory() (*sql.DB, error) {
	return sql.Open("duckdb", "")
}

func (e *Engine) ListTables(ctx context.Context) ([]string, error) {
	files, err := e.discover(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	tables := make([]string, 0)
	for _, file := range files {
		if _, ok := seen[file.TableName]; ok {
			continue
		}
		seen[file.TableName] = struct{}{}
		tables = append(tables, file.TableName)
	}
	sort.Strings(tables)
	return tables, nil
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if err := query.CheckReadOnly(request.SQL); err != nil {
		return query.Result{}, err
	}
	sqlText := query.StripTrailingSemicolons(request.SQL)
	if e.Store == nil {
		return query.Result{}, fmt.Errorf("object store is required")
	}

	files := request.Files
	if len(files) == 0 {
		discovered, err := e.discover(ctx)
		if err != nil {
			return query.Result{}, err
		}
		files = discovered
	}
	if len(files) == 0 {
		return query.Result{}, fmt.Errorf("no parquet tables found under %s/", storage.TablesRoot)
	}

	start := time.Now()
	workDir, err := os.MkdirTemp("", "chatdb-query-")
	if err != nil {
		return query.Result{}, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPaths, scannedBytes, err := e.download(ctx, workDir, files)
	if err != nil {
		return query.Result{}, err
	}

	open := e.Open
	if open == nil {
		open = openInMemory
	}
	db, err := open()
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	for tableName, paths := range localPaths {
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, query.QuoteIdent(tableName), quoteStringArray(paths))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			return query.Result{}, fmt.Errorf("create view for table %q: %w", tableName, err)
		}
	}

	rows, err := db.QueryContext(ctx, query.WrapLimit(sqlText, request.RowLimit))
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result, err := query.CollectRows(rows)
	if err != nil {
		return query.Result{}, err
	}
	result.ScannedFiles = len(files)
	result.ScannedBytes = scannedBytes
	result.Duration = time.Since(start)
	return result, nil
}

func (e *Engine) discover(ctx context.Context) ([]query.TableFile, error) {
	if e.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	infos, err := e.Store.List(ctx, storage.TablesRoot+"/")
	if err != nil {
		return nil, fmt.Errorf("list table files: %w", err)
	}
	files := make([]query.TableFile, 0, len(infos))
	for _, info := range infos {
		table, ok := storage.TableFromKey(info.Key)
		if !ok {
			continue
		}
		files = append(files, query.TableFile{TableName: table, ObjectPath: info.Key, FileSizeBytes: info.Size})
	}
	return files, nil
}

func (e *Engine) download(ctx context.Context, workDir string, files []query.TableFile) (map[string][]string, int64, error) {
	grouped := map[string][]string{}
	var scannedBytes int64
	for index, file := range files {
		reader, err := e.Store.Get(ctx, file.ObjectPath)
		if err != nil {
			return nil, 0, fmt.Errorf("get object %q: %w", file.ObjectPath, err)
		}
		localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(file.TableName), index))
		if err := writeFile(localPath, reader); err != nil {
			_ = reader.Close()
			return nil, 0, fmt.Errorf("write local parquet file %q: %w", localPath, err)
		}
		if err := reader.Close(); err != nil {
			return nil, 0, fmt.Errorf("close object %q: %w", file.ObjectPath, err)
		}
		grouped[file.TableName] = append(grouped[file.TableName], localPath)
		scannedBytes += file.FileSizeBytes
	}
	return grouped, scannedBytes, nil
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}

func writeFile(path string, reader io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
