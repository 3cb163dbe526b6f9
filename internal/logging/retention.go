package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// PruneRunLogs removes files in dir matching pattern whose modification time
// is older than retentionDays. The active log is never removed. A
// retentionDays value of 0 disables pruning.
func PruneRunLogs(logger *slog.Logger, dir, pattern, active string, retentionDays int) int {
	if retentionDays <= 0 || dir == "" {
		return 0
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0
	}
	activeAbs, _ := filepath.Abs(active)
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	removed := 0
	for _, path := range matches {
		if abs, err := filepath.Abs(path); err == nil && abs == activeAbs {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(context.Background(), logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check file permissions and log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed++
	}
	if removed > 0 && logger != nil {
		logger.Info("old logs pruned",
			Int("count", removed),
			String(FieldEventType, "log_pruned"),
		)
	}
	return removed
}
