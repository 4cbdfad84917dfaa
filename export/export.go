// Package export copies tables from the SQLite store to Parquet files using
// DuckDB's sqlite scanner.
package export

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/dhcgn/threadgraph/store"
)

// Result describes one written Parquet file.
type Result struct {
	Table store.Table
	Path  string
	Rows  int64
	Bytes int64
}

type Exporter struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open starts an in-memory DuckDB and attaches the SQLite database at
// sqlitePath read-only as "src".
func Open(sqlitePath string, logger *slog.Logger) (*Exporter, error) {
	if sqlitePath == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if _, err := os.Stat(sqlitePath); err != nil {
		return nil, fmt.Errorf("sqlite database: %w", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// SET and ATTACH are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(fmt.Sprintf("SET threads = %d", runtime.GOMAXPROCS(0))); err != nil {
		db.Close()
		return nil, fmt.Errorf("set threads: %w", err)
	}
	if _, err := db.Exec("INSTALL sqlite; LOAD sqlite;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("load sqlite extension: %w", err)
	}
	attachSQL := fmt.Sprintf("ATTACH '%s' AS src (TYPE sqlite, READ_ONLY)", escape(sqlitePath))
	if _, err := db.Exec(attachSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("attach sqlite database: %w", err)
	}

	return &Exporter{db: db, logger: logger}, nil
}

func (e *Exporter) Close() error {
	return e.db.Close()
}

// Export writes each table to dir/<table>.parquet, replacing older files.
func (e *Exporter) Export(ctx context.Context, dir string, tables ...store.Table) ([]Result, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	results := make([]Result, 0, len(tables))
	for _, table := range tables {
		path := filepath.Join(dir, string(table)+".parquet")
		copySQL := fmt.Sprintf("COPY (%s) TO '%s' (FORMAT parquet)", selectSQL(table), escape(path))
		if _, err := e.db.ExecContext(ctx, copySQL); err != nil {
			return results, fmt.Errorf("export %s: %w", table, err)
		}

		res := Result{Table: table, Path: path}
		row := e.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM read_parquet('%s')", escape(path)))
		if err := row.Scan(&res.Rows); err != nil {
			return results, fmt.Errorf("count %s: %w", path, err)
		}
		if info, err := os.Stat(path); err == nil {
			res.Bytes = info.Size()
		}

		if e.logger != nil {
			e.logger.Debug("table exported", "table", table, "path", path, "rows", res.Rows)
		}
		results = append(results, res)
	}
	return results, nil
}

// selectSQL reads a table back into typed columns: JSON lists become DuckDB
// lists and date strings become timestamps.
func selectSQL(table store.Table) string {
	src := `src."` + string(table) + `"`
	switch table {
	case store.TableUser, store.TableUserUpdated:
		return "SELECT user_id, first_name, last_name, " +
			`from_json(generated_aliases, '["VARCHAR"]') AS generated_aliases, ` +
			`from_json(aliases, '["VARCHAR"]') AS aliases FROM ` + src + " ORDER BY user_id"
	case store.TableGroup, store.TableGroupsUpdated:
		return `SELECT group_id, from_json(user_ids, '["BIGINT"]') AS user_ids FROM ` + src + " ORDER BY group_id"
	case store.TableEmail, store.TableEmailUpdated:
		return "SELECT email_hash, group_id, subject, CAST(date AS TIMESTAMPTZ) AS date, " +
			"CAST(norm_date AS TIMESTAMPTZ) AS norm_date, sender_id FROM " + src
	default:
		return "SELECT * FROM " + src
	}
}

func escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
