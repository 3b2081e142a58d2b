package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// runLogPattern matches the per-run JSON logs written by NewFromConfig.
const runLogPattern = "refinery-*.log"

// PruneRunLogs removes run logs in dir older than retentionDays. keep is never
// removed, even when its modification time is stale. A retentionDays value of
// zero disables pruning. It returns the number of files removed.
func PruneRunLogs(logger *slog.Logger, dir string, retentionDays int, keep string) int {
	dir = strings.TrimSpace(dir)
	if retentionDays <= 0 || dir == "" {
		return 0
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	keepAbs := ""
	if keep = strings.TrimSpace(keep); keep != "" {
		if abs, err := filepath.Abs(keep); err == nil {
			keepAbs = abs
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if matched, err := filepath.Match(runLogPattern, entry.Name()); err != nil || !matched {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if path == keepAbs {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			logger.Warn("run log prune failed; file remains",
				String("path", path),
				Error(err),
				Event("log_prune_failed"),
				Hint("check permissions on logging directory"),
			)
			continue
		}
		removed++
		logger.Debug("run log pruned", String("path", path), Event("log_pruned"))
	}
	return removed
}
