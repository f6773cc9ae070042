package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta.json")

	if err := WriteFileAtomic(path, []byte(`{"a":1}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(path, []byte(`{"a":2}`), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"a":2}` {
		t.Fatalf("content mismatch: %q", got)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected mode %v", info.Mode().Perm())
	}
	assertNoTempFiles(t, dir)
}

func TestWriteStreamAtomicHashes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.npz")
	content := "npz-bytes"

	res, err := WriteStreamAtomic(path, strings.NewReader(content), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256([]byte(content))
	if res.Size != int64(len(content)) || res.SHA256 != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected result: %+v", res)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteStreamAtomicCleansUpOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.npz")

	if _, err := WriteStreamAtomic(path, failingReader{}, 0o644); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no destination file, stat err=%v", err)
	}
	assertNoTempFiles(t, dir)
}

func TestIsDirIsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if !IsDir(dir) || IsDir(file) || IsDir(filepath.Join(dir, "nope")) {
		t.Fatal("IsDir mismatch")
	}
	if !IsFile(file) || IsFile(dir) {
		t.Fatal("IsFile mismatch")
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}
