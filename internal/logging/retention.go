package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget specifies a directory and filename pattern to prune.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs removes files matching the targets whose modification time is
// older than retentionDays. Zero disables pruning. It returns the number of
// files removed.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	removed := 0
	for _, target := range targets {
		dir := strings.TrimSpace(target.Dir)
		if dir == "" {
			continue
		}
		excluded := make(map[string]struct{}, len(target.Exclude))
		for _, path := range target.Exclude {
			if abs, err := filepath.Abs(strings.TrimSpace(path)); err == nil {
				excluded[abs] = struct{}{}
			}
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !matchesPattern(target.Pattern, entry.Name()) {
				continue
			}
			fullPath, err := filepath.Abs(filepath.Join(dir, entry.Name()))
			if err != nil {
				continue
			}
			if _, skip := excluded[fullPath]; skip {
				continue
			}
			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(fullPath); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", fullPath),
					Error(err),
					String(FieldErrorHint, "check file permissions and log_dir ownership"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed++
			if logger != nil {
				logger.Info("log pruned", String("path", fullPath), String(FieldEventType, "log_pruned"))
			}
		}
	}
	return removed
}

func matchesPattern(pattern, name string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return true
	}
	matched, err := filepath.Match(pattern, name)
	return err == nil && matched
}
