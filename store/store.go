package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Table names one relation of the output model.
type Table string

const (
	TableEmail         Table = "email"
	TableEmailThread   Table = "email_thread"
	TableUser          Table = "user"
	TableGroup         Table = "group"
	TableUserMap       Table = "user_map"
	TableToDelete      Table = "to_delete"
	TableGroupRemap    Table = "group_remap"
	TableUserUpdated   Table = "user_updated"
	TableGroupsUpdated Table = "groups_updated"
	TableEmailUpdated  Table = "email_updated"
	TableEmailGroup    Table = "email_group_junction"
	TableEmailUser     Table = "email_user_junction"
	TableRun           Table = "run"
)

// quoted returns the identifier safe for SQL; user and group are keywords.
func (t Table) quoted() string {
	return `"` + string(t) + `"`
}

// OnlineTables are written by ingest.
var OnlineTables = []Table{TableEmail, TableEmailThread, TableUser, TableGroup}

// ReconcileTables are written by the reconciliation stages.
var ReconcileTables = []Table{
	TableUserMap, TableToDelete, TableGroupRemap,
	TableUserUpdated, TableGroupsUpdated, TableEmailUpdated,
	TableEmailGroup, TableEmailUser,
}

// FinalTables survive cleanup and are what export writes by default.
var FinalTables = []Table{
	TableUserUpdated, TableGroupsUpdated, TableEmailUpdated,
	TableEmailGroup, TableEmailUser, TableEmailThread,
}

// IntermediateTables are removed by cleanup once reconciliation succeeded.
var IntermediateTables = []Table{
	TableEmail, TableUser, TableGroup, TableUserMap, TableToDelete, TableGroupRemap,
}

// ParseTable maps a table name to its Table.
func ParseTable(name string) (Table, error) {
	for _, t := range AllTables() {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown table %q", name)
}

func AllTables() []Table {
	all := append([]Table{}, OnlineTables...)
	all = append(all, ReconcileTables...)
	return append(all, TableRun)
}

// Store is the SQLite-backed table store shared by ingest, reconcile and export.
type Store struct {
	db   *sql.DB
	path string

	schemaMu    sync.Mutex
	schemaReady bool
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) ensureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	s.schemaReady = true
	return nil
}

// Truncate removes every row from tables, keeping their definitions.
func (s *Store) Truncate(ctx context.Context, tables ...Table) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t.quoted()); err != nil {
			return fmt.Errorf("truncate %s: %w", t, err)
		}
	}
	return nil
}

// Reset empties every data table so a run starts from a clean state.
// Run bookkeeping is kept.
func (s *Store) Reset(ctx context.Context) error {
	tables := append([]Table{}, OnlineTables...)
	return s.Truncate(ctx, append(tables, ReconcileTables...)...)
}

// DropTables removes tables entirely. A later write recreates them.
func (s *Store) DropTables(ctx context.Context, tables ...Table) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+t.quoted()); err != nil {
			return fmt.Errorf("drop %s: %w", t, err)
		}
	}
	s.schemaReady = false
	return nil
}

// Exists reports whether table is present in the database.
func (s *Store) Exists(ctx context.Context, table Table) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", string(table)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", table, err)
	}
	return n > 0, nil
}

func (s *Store) Count(ctx context.Context, table Table) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table.quoted()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// BeginRun records the start of stage for runID.
func (s *Store) BeginRun(ctx context.Context, runID, stage string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO run (run_id, stage, started_at, finished_at, status) VALUES (?, ?, ?, '', 'running')`,
		runID, stage, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("begin run %s/%s: %w", runID, stage, err)
	}
	return nil
}

// FinishRun closes the bookkeeping row opened by BeginRun.
func (s *Store) FinishRun(ctx context.Context, runID, stage string, runErr error) error {
	status := "ok"
	if runErr != nil {
		status = "failed: " + runErr.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE run SET finished_at = ?, status = ? WHERE run_id = ? AND stage = ?`,
		time.Now().UTC().Format(time.RFC3339), status, runID, stage)
	if err != nil {
		return fmt.Errorf("finish run %s/%s: %w", runID, stage, err)
	}
	return nil
}

// RunRecord is one row of the run table.
type RunRecord struct {
	RunID      string
	Stage      string
	StartedAt  string
	FinishedAt string
	Status     string
}

func (s *Store) Runs(ctx context.Context) ([]RunRecord, error) {
	var out []RunRecord
	err := s.query(ctx, "SELECT run_id, stage, started_at, finished_at, status FROM run ORDER BY started_at, stage",
		func(rows *sql.Rows) error {
			var r RunRecord
			if err := rows.Scan(&r.RunID, &r.Stage, &r.StartedAt, &r.FinishedAt, &r.Status); err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	return out, err
}

// insert writes n rows into table inside one transaction.
func (s *Store) insert(ctx context.Context, table Table, columns []string, n int, row func(i int) ([]any, error)) error {
	if n == 0 {
		return nil
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmtSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table.quoted(), strings.Join(columns, ", "), placeholders)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", table, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		return fmt.Errorf("prepare %s: %w", table, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		args, err := row(i)
		if err != nil {
			return fmt.Errorf("encode %s row %d: %w", table, i, err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s row %d: %w", table, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", table, err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, query string, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
