// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger records pipeline runs in a SQLite database: one row per
// run, per contrast, per task-graph node and per enrichment record.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

// FileName is the ledger database name under the output directory.
const FileName = "ledger.db"

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its configuration in package globals.
var migrateMu sync.Mutex

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run is one pipeline invocation.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	OutputDir  string
	ParamsFile string
	Status     string
}

// Contrast is the recorded state of one contrast unit.
type Contrast struct {
	Name    string
	Dir     string
	GroupA  string
	GroupB  string
	State   types.ContrastState
	Outcome string
	Report  string
}

// Task is the recorded state of one task-graph node.
type Task struct {
	Unit      string
	Branch    string
	State     string
	Error     string
	UpdatedAt time.Time
}

// RunDetail is a run with everything recorded under it.
type RunDetail struct {
	Run         Run
	Contrasts   []Contrast
	Tasks       []Task
	Enrichments map[string]int
}

// Ledger is the run database. It is safe for concurrent use.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger at path and applies pending migrations.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	// One writer at a time; concurrent branches queue here.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()
	goose.SetBaseFS(migrations)
	goose.SetLogger(log.New(io.Discard, "", 0))
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// Close releases the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun inserts r with status running.
func (l *Ledger) StartRun(ctx context.Context, r Run) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, output_dir, params_file, status) VALUES (?, ?, ?, ?, ?)`,
		r.ID, formatTime(r.StartedAt), r.OutputDir, r.ParamsFile, RunRunning)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", r.ID, err)
	}
	return nil
}

// FinishRun sets the final status of run id.
func (l *Ledger) FinishRun(ctx context.Context, id, status string, at time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`, status, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", id, err)
	}
	return nil
}

// RecordContrast inserts or replaces the state of a contrast unit, keyed by
// its directory.
func (l *Ledger) RecordContrast(ctx context.Context, runID string, c Contrast) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO contrasts (run_id, name, dir, group_a, group_b, state, outcome, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, dir) DO UPDATE SET
		   state = excluded.state, outcome = excluded.outcome, report = excluded.report`,
		runID, c.Name, c.Dir, c.GroupA, c.GroupB, string(c.State), c.Outcome, c.Report)
	if err != nil {
		return fmt.Errorf("recording contrast %s: %w", c.Name, err)
	}
	return nil
}

// RecordTask inserts or replaces the state of a task-graph node.
func (l *Ledger) RecordTask(ctx context.Context, runID string, t Task) error {
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO tasks (run_id, unit, branch, state, error, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, unit, branch) DO UPDATE SET
		   state = excluded.state, error = excluded.error, updated_at = excluded.updated_at`,
		runID, t.Unit, t.Branch, t.State, t.Error, formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("recording task %s/%s: %w", t.Unit, t.Branch, err)
	}
	return nil
}

// RecordEnrichment stores the parsed enrichment records of one contrast.
func (l *Ledger) RecordEnrichment(ctx context.Context, runID, contrast string, recs []types.EnrichmentRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO enrichment_records (run_id, contrast, file_path, ontology, kind) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx, runID, contrast, r.FilePath, string(r.Ontology), string(r.Kind)); err != nil {
			return fmt.Errorf("recording enrichment record %s: %w", r.FilePath, err)
		}
	}
	return tx.Commit()
}

// Runs returns the most recent runs, newest first. limit <= 0 means all.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT id, started_at, COALESCE(finished_at, ''), output_dir, COALESCE(params_file, ''), status
	      FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Detail returns run id with its contrasts, tasks and enrichment counts per
// contrast.
func (l *Ledger) Detail(ctx context.Context, id string) (*RunDetail, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, started_at, COALESCE(finished_at, ''), output_dir, COALESCE(params_file, ''), status
		 FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	d := &RunDetail{Run: r, Enrichments: make(map[string]int)}

	crows, err := l.db.QueryContext(ctx,
		`SELECT name, dir, group_a, group_b, state, COALESCE(outcome, ''), COALESCE(report, '')
		 FROM contrasts WHERE run_id = ? ORDER BY dir`, id)
	if err != nil {
		return nil, fmt.Errorf("querying contrasts: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var c Contrast
		var state string
		if err := crows.Scan(&c.Name, &c.Dir, &c.GroupA, &c.GroupB, &state, &c.Outcome, &c.Report); err != nil {
			return nil, fmt.Errorf("scanning contrast: %w", err)
		}
		c.State = types.ContrastState(state)
		d.Contrasts = append(d.Contrasts, c)
	}
	if err := crows.Err(); err != nil {
		return nil, err
	}

	trows, err := l.db.QueryContext(ctx,
		`SELECT unit, branch, state, COALESCE(error, ''), updated_at
		 FROM tasks WHERE run_id = ? ORDER BY unit, branch`, id)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer trows.Close()
	for trows.Next() {
		var t Task
		var at string
		if err := trows.Scan(&t.Unit, &t.Branch, &t.State, &t.Error, &at); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		t.UpdatedAt = parseTime(at)
		d.Tasks = append(d.Tasks, t)
	}
	if err := trows.Err(); err != nil {
		return nil, err
	}

	erows, err := l.db.QueryContext(ctx,
		`SELECT contrast, count(*) FROM enrichment_records WHERE run_id = ? GROUP BY contrast`, id)
	if err != nil {
		return nil, fmt.Errorf("querying enrichment records: %w", err)
	}
	defer erows.Close()
	for erows.Next() {
		var name string
		var n int
		if err := erows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scanning enrichment count: %w", err)
		}
		d.Enrichments[name] = n
	}
	return d, erows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var r Run
	var started, finished string
	if err := s.Scan(&r.ID, &started, &finished, &r.OutputDir, &r.ParamsFile, &r.Status); err != nil {
		if err == sql.ErrNoRows {
			return r, err
		}
		return r, fmt.Errorf("scanning run: %w", err)
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	return r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
