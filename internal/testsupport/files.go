package testsupport

import (
	"fmt"
	"testing"
	"time"

	"refinery/internal/itemstore"
)

// WriteBatch saves n items as batch id in dir and returns them. Texts are
// "<prefix> <id>.<index>".
func WriteBatch(t testing.TB, dir string, id, n int, prefix string) []itemstore.WorkItem {
	t.Helper()

	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute)
	items := make([]itemstore.WorkItem, n)
	for i := range items {
		items[i] = itemstore.WorkItem{
			Text:      fmt.Sprintf("%s %d.%d", prefix, id, i),
			Category:  "philosophy",
			CreatedAt: created,
		}
	}
	if err := itemstore.New().SaveBatch(items, dir, itemstore.BatchFilename(id)); err != nil {
		t.Fatalf("save batch %d in %s: %v", id, dir, err)
	}
	return items
}
