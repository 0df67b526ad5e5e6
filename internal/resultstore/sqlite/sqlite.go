// Package sqlite stores runs in a single SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"facetree/internal/cluster"
	"facetree/internal/resultstore"
)

// DefaultPath is the database location when none is configured.
const DefaultPath = "~/.facetree/runs.db"

// Config holds connection details.
type Config struct {
	Path string
}

// Storage implements resultstore.Storage on SQLite.
type Storage struct {
	db   *sql.DB
	path string
}

// NewStorage opens (and migrates) the database. Pass ":memory:" in tests.
func NewStorage(cfg Config) (*Storage, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	path = expandPath(path)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &Storage{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Storage) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			linkage TEXT NOT NULL,
			leaves INTEGER NOT NULL,
			workers INTEGER NOT NULL DEFAULT 0,
			vocabulary INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
		`CREATE TABLE IF NOT EXISTS run_facets (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			idx INTEGER NOT NULL,
			name TEXT NOT NULL,
			PRIMARY KEY (run_id, idx)
		)`,
		`CREATE TABLE IF NOT EXISTS run_distances (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			idx INTEGER NOT NULL,
			distance REAL NOT NULL,
			PRIMARY KEY (run_id, idx)
		)`,
		`CREATE TABLE IF NOT EXISTS run_merges (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			step INTEGER NOT NULL,
			a INTEGER NOT NULL,
			b INTEGER NOT NULL,
			distance REAL NOT NULL,
			size INTEGER NOT NULL,
			PRIMARY KEY (run_id, step)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Save writes run and all of its rows in one transaction.
func (s *Storage) Save(ctx context.Context, run *resultstore.Run) error {
	if run == nil || run.Tree == nil {
		return errors.New("run has no merge tree")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, linkage, leaves, workers, vocabulary) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UTC().Format(time.RFC3339Nano), string(run.Tree.Linkage),
		run.Tree.Leaves, run.Workers, run.Vocabulary,
	); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	if err := execEach(ctx, tx, `INSERT INTO run_facets (run_id, idx, name) VALUES (?, ?, ?)`, len(run.Facets),
		func(i int) []any { return []any{run.ID, i, run.Facets[i]} }); err != nil {
		return fmt.Errorf("inserting facets: %w", err)
	}
	if err := execEach(ctx, tx, `INSERT INTO run_distances (run_id, idx, distance) VALUES (?, ?, ?)`, len(run.Condensed),
		func(i int) []any { return []any{run.ID, i, run.Condensed[i]} }); err != nil {
		return fmt.Errorf("inserting distances: %w", err)
	}
	merges := run.Tree.Merges
	if err := execEach(ctx, tx, `INSERT INTO run_merges (run_id, step, a, b, distance, size) VALUES (?, ?, ?, ?, ?, ?)`, len(merges),
		func(i int) []any { return []any{run.ID, i, merges[i].A, merges[i].B, merges[i].Distance, merges[i].Size} }); err != nil {
		return fmt.Errorf("inserting merges: %w", err)
	}

	return tx.Commit()
}

func execEach(ctx context.Context, tx *sql.Tx, query string, n int, args func(int) []any) error {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return err
		}
	}
	return nil
}

// Get loads a run with its facets, distances and merges.
func (s *Storage) Get(ctx context.Context, id string) (*resultstore.Run, error) {
	run, err := s.scanRun(s.db.QueryRowContext(ctx,
		`SELECT id, created_at, linkage, leaves, workers, vocabulary FROM runs WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if err := s.loadDetail(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Latest loads the most recently created run.
func (s *Storage) Latest(ctx context.Context) (*resultstore.Run, error) {
	run, err := s.scanRun(s.db.QueryRowContext(ctx,
		`SELECT id, created_at, linkage, leaves, workers, vocabulary FROM runs ORDER BY created_at DESC, id LIMIT 1`))
	if err != nil {
		return nil, err
	}
	if err := s.loadDetail(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// List returns run headers and facet names, newest first.
func (s *Storage) List(ctx context.Context, limit int) ([]*resultstore.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, linkage, leaves, workers, vocabulary FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()
	var out []*resultstore.Run
	for rows.Next() {
		run, err := s.scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, run := range out {
		facets, err := s.loadFacets(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		run.Facets = facets
		run.Tree = nil
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Storage) scanRun(row rowScanner) (*resultstore.Run, error) {
	var (
		run     resultstore.Run
		created string
		linkage string
		leaves  int
	)
	if err := row.Scan(&run.ID, &created, &linkage, &leaves, &run.Workers, &run.Vocabulary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, resultstore.ErrNotFound
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("parsing run time: %w", err)
	}
	run.CreatedAt = t
	run.Tree = &cluster.MergeTree{Leaves: leaves, Linkage: cluster.Linkage(linkage)}
	return &run, nil
}

func (s *Storage) loadFacets(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM run_facets WHERE run_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("loading facets: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *Storage) loadDetail(ctx context.Context, run *resultstore.Run) error {
	facets, err := s.loadFacets(ctx, run.ID)
	if err != nil {
		return err
	}
	run.Facets = facets

	rows, err := s.db.QueryContext(ctx, `SELECT distance FROM run_distances WHERE run_id = ? ORDER BY idx`, run.ID)
	if err != nil {
		return fmt.Errorf("loading distances: %w", err)
	}
	for rows.Next() {
		var d float64
		if err := rows.Scan(&d); err != nil {
			rows.Close()
			return err
		}
		run.Condensed = append(run.Condensed, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT a, b, distance, size FROM run_merges WHERE run_id = ? ORDER BY step`, run.ID)
	if err != nil {
		return fmt.Errorf("loading merges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m cluster.Merge
		if err := rows.Scan(&m.A, &m.B, &m.Distance, &m.Size); err != nil {
			return err
		}
		run.Tree.Merges = append(run.Tree.Merges, m)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if err := run.Tree.Validate(); err != nil {
		return fmt.Errorf("stored run %s: %w", run.ID, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
