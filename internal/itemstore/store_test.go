package itemstore_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"refinery/internal/itemstore"
	"refinery/internal/services"
)

func sampleItems(n int, created time.Time) []itemstore.WorkItem {
	items := make([]itemstore.WorkItem, n)
	for i := range items {
		items[i] = itemstore.WorkItem{
			Text:      fmt.Sprintf("proposition %d <with> & \"quotes\" – ünïcode", i),
			Category:  "philosophy",
			CreatedAt: created,
		}
	}
	return items
}

func assertSameItems(t *testing.T, got, want []itemstore.WorkItem) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Text != want[i].Text || got[i].Category != want[i].Category || !got[i].CreatedAt.Equal(want[i].CreatedAt) {
			t.Fatalf("item %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSaveAndLoadRoundTripSequence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "stage")
	store := itemstore.New()
	created := time.Date(2025, 5, 1, 12, 30, 45, 123456789, time.UTC)
	items := sampleItems(3, created)

	if err := store.SaveBatch(items, dir, "batch_001.json"); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	got, err := store.LoadBatch(dir, "batch_001.json")
	if err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}
	assertSameItems(t, got, items)

	raw, err := os.ReadFile(filepath.Join(dir, "batch_001.json"))
	if err != nil {
		t.Fatal(err)
	}
	text := string(raw)
	if !strings.HasPrefix(text, "[\n  {\n    \"text\": ") {
		t.Fatalf("expected two-space indented sequence, got %q", text[:min(40, len(text))])
	}
	if !strings.HasSuffix(text, "]\n") {
		t.Fatal("expected trailing newline")
	}
	if strings.Contains(text, `\u003c`) || strings.Contains(text, `\u0026`) {
		t.Fatal("expected HTML characters to be written verbatim")
	}
}

func TestSaveSingleItemIsWrittenAsSequence(t *testing.T) {
	dir := t.TempDir()
	store := itemstore.New()
	items := sampleItems(1, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	if err := store.SaveBatch(items, dir, "batch_002.json"); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "batch_002.json"))
	if err != nil {
		t.Fatal(err)
	}
	if raw[0] != '[' {
		t.Fatalf("single item must be written as a sequence: %s", raw)
	}
}

func TestLoadSingleRecordShape(t *testing.T) {
	dir := t.TempDir()
	record := `{"text": "lonely", "category": "ethics", "createdAt": "2025-03-04T05:06:07.5Z"}`
	if err := os.WriteFile(filepath.Join(dir, "batch_001.json"), []byte("\n  "+record+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := itemstore.New()
	got, err := store.LoadBatch(dir, "batch_001.json")
	if err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}
	want := []itemstore.WorkItem{{
		Text:      "lonely",
		Category:  "ethics",
		CreatedAt: time.Date(2025, 3, 4, 5, 6, 7, 500000000, time.UTC),
	}}
	assertSameItems(t, got, want)

	// Re-saving the single record and reading it back keeps every field.
	if err := store.SaveBatch(got, dir, "batch_001.json"); err != nil {
		t.Fatal(err)
	}
	again, err := store.LoadBatch(dir, "batch_001.json")
	if err != nil {
		t.Fatal(err)
	}
	assertSameItems(t, again, want)
}

func TestLoadLegacyFieldNames(t *testing.T) {
	dir := t.TempDir()
	legacy := `[{"proposition": "Old claim", "domain": "logic", "timestamp": "2024-07-08T09:10:11.123456"}]`
	if err := os.WriteFile(filepath.Join(dir, "batch_004.json"), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := itemstore.New().LoadBatch(dir, "batch_004.json")
	if err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}
	want := time.Date(2024, 7, 8, 9, 10, 11, 123456000, time.Local)
	if got[0].Text != "Old claim" || got[0].Category != "logic" || !got[0].CreatedAt.Equal(want) {
		t.Fatalf("unexpected legacy decode: %+v", got[0])
	}
}

func TestLoadReportsParseErrorIndex(t *testing.T) {
	dir := t.TempDir()
	content := `[{"text": "fine", "category": "a"}, {"category": "no text"}]`
	if err := os.WriteFile(filepath.Join(dir, "batch_001.json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := itemstore.New().LoadBatch(dir, "batch_001.json")
	if !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
	var classified *services.Error
	if !errors.As(err, &classified) || classified.Index != 1 {
		t.Fatalf("expected record index 1, got %#v", err)
	}
	if !strings.Contains(err.Error(), "batch_001.json") {
		t.Fatalf("expected file name in error: %v", err)
	}
}

func TestLoadRejectsUnknownShape(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "batch_001.json"), []byte(`"just a string"`), 0o644); err != nil {
		t.Fatal(err)
	}
	store := itemstore.New()
	if _, err := store.LoadBatch(dir, "batch_001.json"); !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if _, err := store.CountItems(dir); !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected parse error from count, got %v", err)
	}
}

func TestCountItems(t *testing.T) {
	dir := t.TempDir()
	store := itemstore.New()
	created := time.Now()
	for i, size := range []int{3, 1, 4} {
		if err := store.SaveBatch(sampleItems(size, created), dir, itemstore.BatchFilename(i+1)); err != nil {
			t.Fatal(err)
		}
	}
	got, err := store.CountItems(dir)
	if err != nil {
		t.Fatalf("CountItems: %v", err)
	}
	if got != 8 {
		t.Fatalf("CountItems = %d, want 8", got)
	}

	missing, err := store.CountItems(filepath.Join(dir, "absent"))
	if err != nil || missing != 0 {
		t.Fatalf("CountItems(missing) = %d, %v; want 0, nil", missing, err)
	}
}

func TestCountIncludesSingleRecordFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "batch_001.json"), []byte(`{"text":"x"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "batch_002.json"), []byte(`[{"text":"a"},{"text":"b"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	stats, err := itemstore.New().Stat(dir)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Batches != 2 || stats.Items != 3 {
		t.Fatalf("Stat = %+v, want 2 batches / 3 items", stats)
	}
}

func TestCountRejectsWhatLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "scalar element", content: `[1, 2, 3]`},
		{name: "string element", content: `[{"text":"a"}, "b"]`},
		{name: "missing text", content: `[{"text":"a"}, {"category":"c"}]`},
		{name: "malformed single", content: `{"text":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "batch_001.json"), []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			store := itemstore.New()
			if _, err := store.LoadBatch(dir, "batch_001.json"); !errors.Is(err, services.ErrParse) {
				t.Fatalf("LoadBatch: expected parse error, got %v", err)
			}
			if n, err := store.CountItems(dir); !errors.Is(err, services.ErrParse) {
				t.Fatalf("CountItems = %d, %v; want parse error", n, err)
			}
		})
	}
}

func TestLoadDirNotFound(t *testing.T) {
	store := itemstore.New()
	if _, err := store.LoadDir(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for missing dir, got %v", err)
	}
	if _, err := store.LoadDir(t.TempDir()); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for empty dir, got %v", err)
	}
}

func TestLoadDirConcatenatesInBatchOrder(t *testing.T) {
	dir := t.TempDir()
	store := itemstore.New()
	for _, id := range []int{1000, 2, 10} {
		item := itemstore.WorkItem{Text: fmt.Sprint(id)}
		if err := store.SaveBatch([]itemstore.WorkItem{item}, dir, itemstore.BatchFilename(id)); err != nil {
			t.Fatal(err)
		}
	}
	items, err := store.LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, item := range items {
		order = append(order, item.Text)
	}
	if strings.Join(order, ",") != "2,10,1000" {
		t.Fatalf("order = %v, want 2,10,1000", order)
	}
}

func TestMaxBatchID(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a")
	b := filepath.Join(root, "b")
	store := itemstore.New()
	if err := store.SaveBatch(nil, a, itemstore.BatchFilename(3)); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveBatch(nil, b, itemstore.BatchFilename(12)); err != nil {
		t.Fatal(err)
	}
	got, err := store.MaxBatchID(a, b, filepath.Join(root, "missing"))
	if err != nil {
		t.Fatal(err)
	}
	if got != 12 {
		t.Fatalf("MaxBatchID = %d, want 12", got)
	}
}

func TestSaveBatchRejectsPathFilenames(t *testing.T) {
	store := itemstore.New()
	for _, name := range []string{"", "../escape.json", "sub/batch_001.json"} {
		if err := store.SaveBatch(nil, t.TempDir(), name); err == nil {
			t.Fatalf("expected error for filename %q", name)
		}
	}
}

func TestConcurrentSavesSameDirectory(t *testing.T) {
	dir := t.TempDir()
	store := itemstore.New()
	var wg sync.WaitGroup
	for id := 1; id <= 20; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := store.SaveBatch(sampleItems(2, time.Now()), dir, itemstore.BatchFilename(id)); err != nil {
				t.Errorf("SaveBatch %d: %v", id, err)
			}
		}(id)
	}
	wg.Wait()
	count, err := store.CountItems(dir)
	if err != nil {
		t.Fatal(err)
	}
	if count != 40 {
		t.Fatalf("CountItems = %d, want 40", count)
	}
}

func TestBatchFilenameRoundTrip(t *testing.T) {
	tests := []struct {
		id   int
		name string
	}{
		{1, "batch_001.json"},
		{42, "batch_042.json"},
		{999, "batch_999.json"},
		{1234, "batch_1234.json"},
	}
	for _, tt := range tests {
		if got := itemstore.BatchFilename(tt.id); got != tt.name {
			t.Fatalf("BatchFilename(%d) = %q, want %q", tt.id, got, tt.name)
		}
		if id, ok := itemstore.ParseBatchID(tt.name); !ok || id != tt.id {
			t.Fatalf("ParseBatchID(%q) = %d, %v", tt.name, id, ok)
		}
	}
	for _, bad := range []string{"batch_1.json", "batch_0001.json", "batch_000.json", "batch_abc.json", "other_001.json", "batch_001.txt"} {
		if _, ok := itemstore.ParseBatchID(bad); ok {
			t.Fatalf("ParseBatchID(%q) unexpectedly succeeded", bad)
		}
	}
}
