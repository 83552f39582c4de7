// Package history keeps a SQLite log of workflow runs and the outcome of
// every form field each run touched.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/roelfdiedericks/formclaw/internal/form"
	. "github.com/roelfdiedericks/formclaw/internal/logging"
)

// ErrRunNotFound is returned by Get for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run is one workflow execution.
type Run struct {
	ID            string
	URL           string
	StartedAt     time.Time
	FinishedAt    time.Time
	PDFPath       string
	DocumentChars int
	State         string
	Success       bool
	Error         string
	Fields        []Field
}

// Field is the stored form of form.FieldOutcome.
type Field struct {
	Key      string
	Question string
	Kind     string
	Answer   string
	Status   string
	Error    string
}

// FieldsFromReport converts a fill report's outcomes for storage.
func FieldsFromReport(r *form.Report) []Field {
	if r == nil {
		return nil
	}
	fields := make([]Field, 0, len(r.Fields))
	for _, f := range r.Fields {
		field := Field{
			Key:      f.Key,
			Question: f.Question,
			Kind:     string(f.Kind),
			Answer:   f.Answer,
			Status:   string(f.Status),
		}
		if f.Err != nil {
			field.Error = f.Err.Error()
		}
		fields = append(fields, field)
	}
	return fields
}

// Store is the SQLite-backed history.
type Store struct {
	db *sql.DB
}

const currentSchemaVersion = 2

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; keeps :memory: databases on a single connection
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	L_debug("history: store opened", "path", path)
	return s, nil
}

// Migrate brings the schema up to date.
func (s *Store) Migrate() error {
	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil {
		version = 0
	}
	if version >= currentSchemaVersion {
		return nil
	}

	L_info("history: migrating schema", "from", version, "to", currentSchemaVersion)

	migrations := []func(*sql.DB) error{
		migrateV1,
		migrateV2,
	}
	for i := version; i < len(migrations); i++ {
		if err := migrations[i](s.db); err != nil {
			return fmt.Errorf("migration v%d failed: %w", i+1, err)
		}
		L_debug("history: applied migration", "version", i+1)
	}
	return nil
}

func migrateV1(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	);
	INSERT INTO schema_version (version, applied_at) VALUES (1, ?);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		pdf_path TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		success INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS fields (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		field_key TEXT NOT NULL,
		question TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL DEFAULT '',
		answer TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema, time.Now().Unix())
	return err
}

// migrateV2 records how much text the OCR step produced.
func migrateV2(db *sql.DB) error {
	schema := `
	ALTER TABLE runs ADD COLUMN document_chars INTEGER NOT NULL DEFAULT 0;
	INSERT INTO schema_version (version, applied_at) VALUES (2, ?);
	`
	_, err := db.Exec(schema, time.Now().Unix())
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a run and its fields. An empty ID is assigned a new uuid.
func (s *Store) Record(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin failed: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, url, started_at, finished_at, pdf_path, document_chars, state, success, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.URL, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		run.PDFPath, run.DocumentChars, run.State, run.Success, run.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run failed: %w", err)
	}

	for i, f := range run.Fields {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO fields (run_id, seq, field_key, question, kind, answer, status, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, run.ID, i, f.Key, f.Question, f.Kind, f.Answer, f.Status, f.Error)
		if err != nil {
			return fmt.Errorf("insert field failed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	L_debug("history: run recorded", "id", run.ID, "success", run.Success, "fields", len(run.Fields))
	return nil
}

// List returns the most recent runs first, without fields. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, started_at, finished_at, pdf_path, document_chars, state, success, error
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Get returns one run with its fields in processing order.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, started_at, finished_at, pdf_path, document_chars, state, success, error
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT field_key, question, kind, answer, status, error
		FROM fields WHERE run_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query fields failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f Field
		if err := rows.Scan(&f.Key, &f.Question, &f.Kind, &f.Answer, &f.Status, &f.Error); err != nil {
			return nil, fmt.Errorf("scan field failed: %w", err)
		}
		run.Fields = append(run.Fields, f)
	}
	return run, rows.Err()
}

// Prune deletes runs that started before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var run Run
	var started, finished int64
	err := sc.Scan(&run.ID, &run.URL, &started, &finished, &run.PDFPath,
		&run.DocumentChars, &run.State, &run.Success, &run.Error)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run failed: %w", err)
	}
	run.StartedAt = time.UnixMilli(started)
	run.FinishedAt = time.UnixMilli(finished)
	return &run, nil
}
