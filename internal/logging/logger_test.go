package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trackbridge/internal/config"
	"trackbridge/internal/logging"
	"trackbridge/internal/services"
)

func TestNewFromConfigWritesDaemonLog(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon starting")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logging.DaemonLogName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "daemon starting") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerRendersJobSubject(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-job.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithJobID(context.Background(), "0123456789abcdef")
	ctx = services.WithJobKind(ctx, "export")
	ctx = services.WithUploadID(ctx, "upload-7")
	component := logging.NewComponentLogger(logger, "pipeline")
	logging.WithContext(ctx, component).Info("job started", logging.Int("progress", 0))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	for _, fragment := range []string{"INFO [pipeline] Job 01234567 (export) - job started", "upload_id: upload-7", "progress: 0"} {
		if !strings.Contains(text, fragment) {
			t.Fatalf("expected %q in %q", fragment, text)
		}
	}
	if strings.Contains(text, "job_id:") {
		t.Fatalf("expected job id in header only, got %q", text)
	}
}

func TestJSONLoggerUsesStandardKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithRequestID(context.Background(), "req-9")
	logging.WithContext(ctx, logger).Warn("slow request")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, content)
	}
	if entry["level"] != "warn" {
		t.Fatalf("expected lowercase level, got %v", entry["level"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", entry)
	}
	if entry[logging.FieldCorrelationID] != "req-9" {
		t.Fatalf("expected correlation id, got %v", entry)
	}
}

func TestJSONLoggerRendersDurationsAsText(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "duration.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("job complete", logging.Duration("duration", 1500*time.Millisecond+42*time.Microsecond))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, content)
	}
	if entry["duration"] != "1.5s" {
		t.Fatalf("expected duration 1.5s, got %v", entry["duration"])
	}
	ts, _ := entry["ts"].(string)
	if _, err := time.Parse(time.RFC3339Nano, ts); err != nil || !strings.Contains(ts, ".") {
		t.Fatalf("expected millisecond timestamp, got %q", ts)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "collaborator slow", "collaborator_slow", logging.String(logging.FieldImpact, "job delayed"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if entry[logging.FieldEventType] != "collaborator_slow" {
		t.Fatalf("unexpected event type: %v", entry)
	}
	if entry[logging.FieldErrorHint] == nil {
		t.Fatalf("expected default error hint: %v", entry)
	}
	if entry[logging.FieldImpact] != "job delayed" {
		t.Fatalf("expected caller impact preserved: %v", entry)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 12) {
		t.Fatal("expected nop logger to be disabled")
	}
	logging.NewComponentLogger(nil, "x").Info("ignored")
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "trackbridged-old.log")
	fresh := filepath.Join(dir, "trackbridged-new.log")
	active := filepath.Join(dir, "trackbridged.log")
	other := filepath.Join(dir, "notes.txt")
	for _, path := range []string{old, fresh, active, other} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{old, active, other} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatal(err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 7, logging.RetentionTarget{
		Dir:     dir,
		Pattern: "trackbridged*.log",
		Exclude: []string{active},
	})
	if removed != 1 {
		t.Fatalf("expected one file removed, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, path := range []string{fresh, active, other} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to remain: %v", path, err)
		}
	}
	if logging.CleanupOldLogs(nil, 0, logging.RetentionTarget{Dir: dir}) != 0 {
		t.Fatal("expected zero retention to disable pruning")
	}
}

func TestProgressSamplerBuckets(t *testing.T) {
	sampler := logging.NewProgressSampler(25)
	var logged []int
	for _, pct := range []int{-1, 0, 5, 20, 25, 26, 49, 50, 99, 100, 100} {
		if sampler.ShouldLog(pct) {
			logged = append(logged, pct)
		}
	}
	want := []int{0, 25, 50, 99, 100}
	if len(logged) != len(want) {
		t.Fatalf("logged %v, want %v", logged, want)
	}
	for i := range want {
		if logged[i] != want[i] {
			t.Fatalf("logged %v, want %v", logged, want)
		}
	}
}
