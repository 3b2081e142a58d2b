package stage_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"refinery/internal/itemstore"
	"refinery/internal/logging"
	"refinery/internal/services"
	"refinery/internal/stage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeBatch(t *testing.T, store *itemstore.Store, dir string, id int, texts ...string) []itemstore.WorkItem {
	t.Helper()
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC).Add(time.Duration(id) * time.Minute)
	items := make([]itemstore.WorkItem, len(texts))
	for i, text := range texts {
		items[i] = itemstore.WorkItem{Text: text, Category: fmt.Sprintf("cat-%d", i), CreatedAt: created}
	}
	if err := store.SaveBatch(items, dir, itemstore.BatchFilename(id)); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	return items
}

func upper() stage.Transform {
	return stage.TransformFunc(func(_ context.Context, item itemstore.WorkItem) (itemstore.WorkItem, error) {
		return item.WithText(strings.ToUpper(item.Text)), nil
	})
}

func TestRunBatchPreservesOrderUnderConcurrency(t *testing.T) {
	root := t.TempDir()
	in, out := filepath.Join(root, "in"), filepath.Join(root, "out")
	store := itemstore.New()

	texts := make([]string, 25)
	for i := range texts {
		texts[i] = fmt.Sprintf("item-%02d", i)
	}
	inputs := writeBatch(t, store, in, 3, texts...)

	// Random delays make completion order differ from input order.
	jittery := stage.TransformFunc(func(_ context.Context, item itemstore.WorkItem) (itemstore.WorkItem, error) {
		time.Sleep(time.Duration(rand.IntN(5)) * time.Millisecond)
		return item.WithText("refined " + item.Text), nil
	})

	runner := stage.NewRunner(store, 8, logging.NewNop())
	n, err := runner.RunBatch(context.Background(), stage.Spec{Label: "1", InDir: in, OutDir: out, Transform: jittery}, itemstore.BatchFilename(3))
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if n != len(inputs) {
		t.Fatalf("RunBatch count = %d, want %d", n, len(inputs))
	}

	outputs, err := store.LoadBatch(out, itemstore.BatchFilename(3))
	if err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}
	if len(outputs) != len(inputs) {
		t.Fatalf("output len = %d, want %d", len(outputs), len(inputs))
	}
	for j := range inputs {
		if outputs[j].Text != "refined "+inputs[j].Text {
			t.Fatalf("item %d = %q, want transform of %q", j, outputs[j].Text, inputs[j].Text)
		}
	}
}

func TestRunBatchKeepsCategoryAndCreatedAt(t *testing.T) {
	root := t.TempDir()
	in, out := filepath.Join(root, "in"), filepath.Join(root, "out")
	store := itemstore.New()
	inputs := writeBatch(t, store, in, 1, "a", "b")

	meddling := stage.TransformFunc(func(_ context.Context, item itemstore.WorkItem) (itemstore.WorkItem, error) {
		return itemstore.WorkItem{Text: item.Text + "!", Category: "changed", CreatedAt: time.Now()}, nil
	})
	runner := stage.NewRunner(store, 1, nil)
	if _, err := runner.RunBatch(context.Background(), stage.Spec{Label: "1", InDir: in, OutDir: out, Transform: meddling}, itemstore.BatchFilename(1)); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	outputs, err := store.LoadBatch(out, itemstore.BatchFilename(1))
	if err != nil {
		t.Fatal(err)
	}
	for i := range inputs {
		if outputs[i].Category != inputs[i].Category || !outputs[i].CreatedAt.Equal(inputs[i].CreatedAt) {
			t.Fatalf("item %d metadata changed: %+v vs %+v", i, outputs[i], inputs[i])
		}
		if outputs[i].Text != inputs[i].Text+"!" {
			t.Fatalf("item %d text = %q", i, outputs[i].Text)
		}
	}
}

func TestRunBatchFailureWritesNothing(t *testing.T) {
	root := t.TempDir()
	in, out := filepath.Join(root, "in"), filepath.Join(root, "out")
	store := itemstore.New()
	writeBatch(t, store, in, 7, "ok", "poison", "ok")

	failing := stage.TransformFunc(func(_ context.Context, item itemstore.WorkItem) (itemstore.WorkItem, error) {
		if item.Text == "poison" {
			return itemstore.WorkItem{}, services.New(services.KindFatal, "generate", "bad request")
		}
		return item, nil
	})
	runner := stage.NewRunner(store, 2, logging.NewNop())
	_, err := runner.RunBatch(context.Background(), stage.Spec{Label: "2", InDir: in, OutDir: out, Transform: failing}, itemstore.BatchFilename(7))
	if !errors.Is(err, services.ErrFatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if store.Exists(out, itemstore.BatchFilename(7)) {
		t.Fatal("failed batch must not produce an output file")
	}
	if entries, _ := os.ReadDir(out); len(entries) != 0 {
		t.Fatalf("expected no files in output dir, found %d", len(entries))
	}
}

func TestRunKeepsFilenamesAcrossStages(t *testing.T) {
	root := t.TempDir()
	dirs := []string{filepath.Join(root, "raw"), filepath.Join(root, "1"), filepath.Join(root, "2"), filepath.Join(root, "3")}
	store := itemstore.New()
	writeBatch(t, store, dirs[0], 4, "x")
	writeBatch(t, store, dirs[0], 11, "y", "z")

	runner := stage.NewRunner(store, 1, logging.NewNop())
	for k := 1; k < len(dirs); k++ {
		n, err := runner.Run(context.Background(), dirs[k-1], dirs[k], upper())
		if err != nil {
			t.Fatalf("Run stage %d: %v", k, err)
		}
		if n != 3 {
			t.Fatalf("stage %d wrote %d items, want 3", k, n)
		}
	}
	for _, dir := range dirs {
		names, err := store.ListBatches(dir)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Join(names, ",") != "batch_004.json,batch_011.json" {
			t.Fatalf("%s holds %v", dir, names)
		}
	}
}

func TestRunMissingInputIsNotFound(t *testing.T) {
	runner := stage.NewRunner(itemstore.New(), 1, nil)
	root := t.TempDir()
	if _, err := runner.Run(context.Background(), filepath.Join(root, "missing"), filepath.Join(root, "out"), upper()); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := runner.Run(context.Background(), root, filepath.Join(root, "out"), upper()); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for empty dir, got %v", err)
	}
}

func TestRunBatchSkipExisting(t *testing.T) {
	root := t.TempDir()
	in, out := filepath.Join(root, "in"), filepath.Join(root, "out")
	store := itemstore.New()
	writeBatch(t, store, in, 2, "a", "b")

	var calls atomic.Int32
	counting := stage.TransformFunc(func(_ context.Context, item itemstore.WorkItem) (itemstore.WorkItem, error) {
		calls.Add(1)
		return item, nil
	})
	runner := stage.NewRunner(store, 1, nil)
	spec := stage.Spec{Label: "1", InDir: in, OutDir: out, Transform: counting, SkipExisting: true}
	for i := 0; i < 2; i++ {
		n, err := runner.RunBatch(context.Background(), spec, itemstore.BatchFilename(2))
		if err != nil || n != 2 {
			t.Fatalf("RunBatch pass %d = %d, %v", i, n, err)
		}
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("transform called %d times, want 2 (second pass skipped)", got)
	}
}

func TestRunBatchCancelledWritesNothing(t *testing.T) {
	root := t.TempDir()
	in, out := filepath.Join(root, "in"), filepath.Join(root, "out")
	store := itemstore.New()
	writeBatch(t, store, in, 1, "a", "b", "c")

	ctx, cancel := context.WithCancel(context.Background())
	blocking := stage.TransformFunc(func(ctx context.Context, item itemstore.WorkItem) (itemstore.WorkItem, error) {
		cancel()
		<-ctx.Done()
		return itemstore.WorkItem{}, ctx.Err()
	})
	runner := stage.NewRunner(store, 2, nil)
	_, err := runner.RunBatch(ctx, stage.Spec{Label: "1", InDir: in, OutDir: out, Transform: blocking}, itemstore.BatchFilename(1))
	if !stage.IsCancellation(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if store.Exists(out, itemstore.BatchFilename(1)) {
		t.Fatal("cancelled batch must not be written")
	}
}
