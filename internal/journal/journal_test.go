package journal_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"refinery/internal/journal"
)

func openJournal(t *testing.T) (*journal.Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	j, err := journal.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j, path
}

func TestRecordAndRecent(t *testing.T) {
	j, _ := openJournal(t)
	ctx := context.Background()
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	entries := []journal.Entry{
		{RunID: "run-a", BatchID: 6, Stage: 5, Status: journal.StatusCompleted, Items: 10, StartedAt: start, FinishedAt: start.Add(time.Minute)},
		{RunID: "run-a", BatchID: 7, Stage: 2, Status: journal.StatusFailed, ErrorKind: "fatal", Message: "bad request", StartedAt: start.Add(time.Minute), FinishedAt: start.Add(2 * time.Minute)},
		{RunID: "run-a", BatchID: 8, Stage: 5, Status: journal.StatusCompleted, Items: 10, StartedAt: start.Add(2 * time.Minute), FinishedAt: start.Add(3 * time.Minute)},
	}
	for _, entry := range entries {
		id, err := j.RecordBatch(ctx, entry)
		if err != nil {
			t.Fatalf("RecordBatch: %v", err)
		}
		if id == 0 {
			t.Fatal("expected row id")
		}
	}

	recent, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len = %d, want 2", len(recent))
	}
	if recent[0].BatchID != 8 || recent[1].BatchID != 7 {
		t.Fatalf("unexpected order: %d, %d", recent[0].BatchID, recent[1].BatchID)
	}
	failed := recent[1]
	if failed.Status != journal.StatusFailed || failed.ErrorKind != "fatal" || failed.Message != "bad request" || failed.Stage != 2 {
		t.Fatalf("failed entry = %+v", failed)
	}
	if failed.Duration() != time.Minute {
		t.Fatalf("Duration = %v", failed.Duration())
	}
	if !failed.StartedAt.Equal(start.Add(time.Minute)) {
		t.Fatalf("StartedAt = %v", failed.StartedAt)
	}
}

func TestRuns(t *testing.T) {
	j, _ := openJournal(t)
	ctx := context.Background()
	record := func(run string, batch int, status journal.Status, items int) {
		t.Helper()
		if _, err := j.RecordBatch(ctx, journal.Entry{RunID: run, BatchID: batch, Status: status, Items: items}); err != nil {
			t.Fatal(err)
		}
	}
	record("first", 1, journal.StatusCompleted, 10)
	record("first", 2, journal.StatusFailed, 0)
	record("second", 3, journal.StatusCompleted, 10)
	record("second", 4, journal.StatusCompleted, 10)
	record("second", 5, journal.StatusInterrupted, 0)

	runs, err := j.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "second" {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].Batches != 3 || runs[0].Completed != 2 || runs[0].Items != 20 || runs[0].Failed != 0 {
		t.Fatalf("second run stats = %+v", runs[0])
	}
	if runs[1].Completed != 1 || runs[1].Failed != 1 {
		t.Fatalf("first run stats = %+v", runs[1])
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	j, path := openJournal(t)
	ctx := context.Background()
	if _, err := j.RecordBatch(ctx, journal.Entry{RunID: "r", BatchID: 1, Status: journal.StatusCompleted}); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := journal.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	entries, err := reopened.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries after reopen = %d", len(entries))
	}
}

func TestRecordBatchValidation(t *testing.T) {
	j, _ := openJournal(t)
	if _, err := j.RecordBatch(context.Background(), journal.Entry{Status: journal.StatusCompleted}); err == nil {
		t.Fatal("expected error without run id")
	}
	if _, err := j.RecordBatch(context.Background(), journal.Entry{RunID: "r"}); err == nil {
		t.Fatal("expected error without status")
	}

	var nilJournal *journal.Journal
	if _, err := nilJournal.RecordBatch(context.Background(), journal.Entry{}); err != nil {
		t.Fatalf("nil journal should be a no-op, got %v", err)
	}
}
