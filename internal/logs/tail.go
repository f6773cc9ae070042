package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const maxLineBytes = 1 << 20

// Result holds complete lines read and the offset just past the last one.
type Result struct {
	Lines  []string
	Offset int64
}

// Last returns up to n trailing lines of path. A missing file yields an empty
// result.
func Last(path string, n int) (Result, error) {
	all, err := Since(path, 0)
	if err != nil || n <= 0 {
		return Result{Offset: all.Offset}, err
	}
	if len(all.Lines) > n {
		all.Lines = all.Lines[len(all.Lines)-n:]
	}
	return all, nil
}

// Since returns the complete lines written to path after offset.
func Since(path string, offset int64) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, nil
		}
		return Result{Offset: offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Result{Offset: offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return Result{Offset: offset}, fmt.Errorf("log path %q is a directory", path)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return Result{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}

	result := Result{Offset: offset}
	reader := bufio.NewReaderSize(file, 64<<10)
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			result.Offset += int64(len(line))
			result.Lines = append(result.Lines, trimLine(line))
			continue
		}
		if errors.Is(err, io.EOF) {
			// Oversized partial lines are emitted rather than stalling follow.
			if len(line) >= maxLineBytes {
				result.Offset += int64(len(line))
				result.Lines = append(result.Lines, trimLine(line))
			}
			return result, nil
		}
		return result, fmt.Errorf("read log file: %w", err)
	}
}

// Follow polls path every interval starting at offset and calls emit for each
// new line until ctx ends. It returns nil on cancellation.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, emit func(string)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := Since(path, offset)
		if err != nil {
			return err
		}
		for _, line := range result.Lines {
			emit(line)
		}
		offset = result.Offset

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func trimLine(line string) string {
	return strings.TrimRight(line, "\r\n")
}
