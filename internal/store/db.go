// Package store archives completed research runs in SQLite so past
// answers and their supporting knowledge can be listed and revisited.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ChamsBouzaiene/ibis/internal/engine"
)

// RunRecord is one archived run.
type RunRecord struct {
	ID             string
	Question       string
	Answer         string
	Status         string
	Termination    string
	Steps          int
	KnowledgeItems int
	TokensTotal    int
	CreatedAt      time.Time
}

// DB provides run archive operations.
type DB struct {
	db *sql.DB
}

// NewDB opens (or creates) the archive at dbPath and initializes the
// schema. WAL mode allows readers alongside the single writer.
func NewDB(ctx context.Context, dbPath string) (*DB, error) {
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite does not support multiple writers well.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &DB{db: db}
	if err := d.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id          TEXT PRIMARY KEY,
		question        TEXT NOT NULL,
		answer          TEXT NOT NULL,
		status          TEXT NOT NULL,
		termination     TEXT NOT NULL,
		steps           INTEGER NOT NULL,
		knowledge_items INTEGER NOT NULL,
		tokens_total    INTEGER NOT NULL,
		created_at      INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS knowledge (
		item_id   TEXT PRIMARY KEY,
		run_id    TEXT NOT NULL,
		source_id TEXT NOT NULL,
		summary   TEXT NOT NULL,
		step      INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_knowledge_run ON knowledge(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
	`
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	return nil
}

// SaveRun archives a finished run with its knowledge items and returns
// the archive ID.
func (d *DB) SaveRun(ctx context.Context, question string, result engine.Result, items []engine.KnowledgeItem) (string, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	runID := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, question, answer, status, termination, steps, knowledge_items, tokens_total, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, question, result.Answer, string(result.Status), result.Termination,
		result.Steps, result.KnowledgeItems, result.Usage.Total, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for _, item := range items {
		id := item.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO knowledge (item_id, run_id, source_id, summary, step) VALUES (?, ?, ?, ?, ?)`,
			id, runID, item.SourceID, item.Summary, item.Step,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert knowledge item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return runID, nil
}

// ListRuns returns the most recent runs, newest first.
func (d *DB) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT run_id, question, answer, status, termination, steps, knowledge_items, tokens_total, created_at
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.Question, &r.Answer, &r.Status, &r.Termination,
			&r.Steps, &r.KnowledgeItems, &r.TokensTotal, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetRun loads one archived run with its knowledge items.
func (d *DB) GetRun(ctx context.Context, runID string) (RunRecord, []engine.KnowledgeItem, error) {
	var r RunRecord
	var createdAt int64
	err := d.db.QueryRowContext(ctx,
		`SELECT run_id, question, answer, status, termination, steps, knowledge_items, tokens_total, created_at
		 FROM runs WHERE run_id = ?`, runID).
		Scan(&r.ID, &r.Question, &r.Answer, &r.Status, &r.Termination,
			&r.Steps, &r.KnowledgeItems, &r.TokensTotal, &createdAt)
	if err != nil {
		return RunRecord{}, nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	r.CreatedAt = time.Unix(createdAt, 0)

	rows, err := d.db.QueryContext(ctx,
		`SELECT item_id, source_id, summary, step FROM knowledge WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return RunRecord{}, nil, fmt.Errorf("failed to query knowledge: %w", err)
	}
	defer rows.Close()

	var items []engine.KnowledgeItem
	for rows.Next() {
		var item engine.KnowledgeItem
		if err := rows.Scan(&item.ID, &item.SourceID, &item.Summary, &item.Step); err != nil {
			return RunRecord{}, nil, fmt.Errorf("failed to scan knowledge item: %w", err)
		}
		items = append(items, item)
	}
	return r, items, rows.Err()
}
