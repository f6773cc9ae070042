package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// StreamResult describes the bytes persisted by WriteStreamAtomic.
type StreamResult struct {
	Size   int64
	SHA256 string
}

// WriteFileAtomic writes data to a temp file beside path and renames it into
// place so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	_, err := writeAtomic(path, mode, func(w io.Writer) (int64, error) {
		n, err := w.Write(data)
		return int64(n), err
	})
	return err
}

// WriteStreamAtomic copies r into path through a temp file, hashing the
// content on the way. The temp file is removed on any failure.
func WriteStreamAtomic(path string, r io.Reader, mode os.FileMode) (StreamResult, error) {
	hasher := sha256.New()
	size, err := writeAtomic(path, mode, func(w io.Writer) (int64, error) {
		return io.Copy(io.MultiWriter(w, hasher), r)
	})
	if err != nil {
		return StreamResult{}, err
	}
	return StreamResult{Size: size, SHA256: hex.EncodeToString(hasher.Sum(nil))}, nil
}

func writeAtomic(path string, mode os.FileMode, fill func(io.Writer) (int64, error)) (int64, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	written, err := fill(tmp)
	if err != nil {
		cleanup()
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return 0, fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("rename into %s: %w", path, err)
	}
	return written, nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// IsFile reports whether path exists and is a regular file.
func IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
