package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"trackbridge/internal/logs"
)

func writeLog(t *testing.T, path, content string, flag int) {
	t.Helper()
	f, err := os.OpenFile(path, flag|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write log: %v", err)
	}
}

func TestLastReturnsTrailingLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trackbridged.log")
	writeLog(t, path, "a\nb\nc\n", os.O_TRUNC)

	result, err := logs.Last(path, 2)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "b" || result.Lines[1] != "c" {
		t.Fatalf("unexpected lines %#v", result.Lines)
	}
	if result.Offset != 6 {
		t.Fatalf("expected offset 6, got %d", result.Offset)
	}
}

func TestLastMissingFile(t *testing.T) {
	result, err := logs.Last(filepath.Join(t.TempDir(), "absent.log"), 10)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestSinceHoldsBackPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trackbridged.log")
	writeLog(t, path, "one\ntw", os.O_TRUNC)

	first, err := logs.Since(path, 0)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(first.Lines) != 1 || first.Lines[0] != "one" || first.Offset != 4 {
		t.Fatalf("unexpected first read %+v", first)
	}

	writeLog(t, path, "o\nthree\n", os.O_APPEND)
	second, err := logs.Since(path, first.Offset)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(second.Lines) != 2 || second.Lines[0] != "two" || second.Lines[1] != "three" {
		t.Fatalf("unexpected second read %+v", second)
	}
}

func TestSinceRestartsAfterTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trackbridged.log")
	writeLog(t, path, "old line one\nold line two\n", os.O_TRUNC)
	writeLog(t, path, "new\n", os.O_TRUNC)

	result, err := logs.Since(path, 26)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "new" {
		t.Fatalf("expected re-read from start, got %+v", result)
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trackbridged.log")
	writeLog(t, path, "start\n", os.O_TRUNC)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, 6, 10*time.Millisecond, func(line string) {
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
		})
	}()

	writeLog(t, path, "next\n", os.O_APPEND)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "next" {
		t.Fatalf("unexpected followed lines %#v", got)
	}
}
