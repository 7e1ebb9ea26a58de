// Package runlog persists run and stage outcomes to a sqlite database so
// that past runs can be audited without their console output.
package runlog

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ravi-parthasarathy/megpipe/pkg/pipeline"
)

// SQLite is a pipeline.RunLog backed by a sqlite database with two tables:
// runs (one row per execution) and run_stages (one row per finished stage).
type SQLite struct {
	db *sql.DB
}

// Open connects to the database at path, creating the schema if absent.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			subject TEXT,
			session TEXT,
			pipeline TEXT,
			status TEXT,
			error TEXT,
			started_at DATETIME,
			finished_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS run_stages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT,
			stage TEXT,
			status TEXT,
			checkpoint_path TEXT,
			error TEXT,
			finished_at DATETIME
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("run log schema: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (l *SQLite) Close() error { return l.db.Close() }

func (l *SQLite) BeginRun(runID, subject, session, pipelineName string) error {
	_, err := l.db.Exec(
		`INSERT INTO runs (id, subject, session, pipeline, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, subject, session, pipelineName, string(pipeline.StatusRunning), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("run log begin: %w", err)
	}
	return nil
}

func (l *SQLite) StageDone(runID, stage string, status pipeline.Status, checkpointPath string, stageErr error) error {
	_, err := l.db.Exec(
		`INSERT INTO run_stages (run_id, stage, status, checkpoint_path, error, finished_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, stage, string(status), checkpointPath, errText(stageErr), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("run log stage: %w", err)
	}
	return nil
}

func (l *SQLite) EndRun(runID string, status pipeline.Status, runErr error) error {
	_, err := l.db.Exec(
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), errText(runErr), time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("run log end: %w", err)
	}
	return nil
}

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID       string
	Subject  string
	Session  string
	Pipeline string
	Status   string
	Error    string
}

// Runs lists recorded runs, most recent first.
func (l *SQLite) Runs() ([]RunRecord, error) {
	rows, err := l.db.Query(
		`SELECT id, subject, session, pipeline, status, COALESCE(error, '') FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("run log list: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Subject, &r.Session, &r.Pipeline, &r.Status, &r.Error); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
