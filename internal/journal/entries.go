package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const entryColumns = "id, run_id, batch_id, stage, status, items, error_kind, message, started_at, finished_at"

// Entry is one recorded batch attempt. Stage is the last stage the batch
// reached (0 when it failed during generation).
type Entry struct {
	ID         int64
	RunID      string
	BatchID    int
	Stage      int
	Status     Status
	Items      int
	ErrorKind  string
	Message    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the attempt took.
func (e Entry) Duration() time.Duration {
	if e.StartedAt.IsZero() || e.FinishedAt.Before(e.StartedAt) {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// RunStats aggregates the entries of one controller run.
type RunStats struct {
	RunID     string
	Batches   int
	Completed int
	Failed    int
	Items     int
	StartedAt time.Time
	EndedAt   time.Time
}

// RecordBatch appends entry and returns its row id. A nil journal records
// nothing.
func (j *Journal) RecordBatch(ctx context.Context, entry Entry) (int64, error) {
	if j == nil || j.db == nil {
		return 0, nil
	}
	if entry.RunID == "" {
		return 0, errors.New("journal entry requires a run id")
	}
	if entry.Status == "" {
		return 0, errors.New("journal entry requires a status")
	}
	finished := entry.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	started := entry.StartedAt
	if started.IsZero() {
		started = finished
	}

	res, err := j.db.ExecContext(ctx,
		`INSERT INTO batch_runs (run_id, batch_id, stage, status, items, error_kind, message, started_at, finished_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.BatchID,
		entry.Stage,
		string(entry.Status),
		entry.Items,
		nullableString(entry.ErrorKind),
		nullableString(entry.Message),
		formatTime(started),
		formatTime(finished),
	)
	if err != nil {
		return 0, fmt.Errorf("insert journal entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM batch_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Runs aggregates entries per run id, most recent run first.
func (j *Journal) Runs(ctx context.Context, limit int) ([]RunStats, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id,
                COUNT(1),
                SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
                SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
                SUM(CASE WHEN status = ? THEN items ELSE 0 END),
                MIN(started_at),
                MAX(finished_at)
         FROM batch_runs
         GROUP BY run_id
         ORDER BY MAX(id) DESC
         LIMIT ?`,
		string(StatusCompleted), string(StatusFailed), string(StatusCompleted), limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var stats []RunStats
	for rows.Next() {
		var (
			run                  RunStats
			startedRaw, endedRaw sql.NullString
		)
		if err := rows.Scan(&run.RunID, &run.Batches, &run.Completed, &run.Failed, &run.Items, &startedRaw, &endedRaw); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt, _ = parseTime(startedRaw.String)
		run.EndedAt, _ = parseTime(endedRaw.String)
		stats = append(stats, run)
	}
	return stats, rows.Err()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry       Entry
		status      string
		errorKind   sql.NullString
		message     sql.NullString
		startedRaw  string
		finishedRaw string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.RunID,
		&entry.BatchID,
		&entry.Stage,
		&status,
		&entry.Items,
		&errorKind,
		&message,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return Entry{}, err
	}
	entry.Status = Status(status)
	entry.ErrorKind = errorKind.String
	entry.Message = message.String
	if started, err := parseTime(startedRaw); err == nil {
		entry.StartedAt = started
	}
	if finished, err := parseTime(finishedRaw); err == nil {
		entry.FinishedAt = finished
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
