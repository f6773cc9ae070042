package filestore_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"trackbridge/internal/filestore"
)

func openStore(t *testing.T) *filestore.Store {
	t.Helper()
	store, err := filestore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

func TestOpenCreatesAreas(t *testing.T) {
	store := openStore(t)
	for _, dir := range []string{"uploads", "processed", "exports"} {
		info, err := os.Stat(filepath.Join(store.Root(), dir))
		if err != nil || !info.IsDir() {
			t.Fatalf("expected %s directory: %v", dir, err)
		}
	}
	if _, err := filestore.Open("  "); !errors.Is(err, filestore.ErrIO) {
		t.Fatalf("expected ErrIO for empty root, got %v", err)
	}
}

func TestSaveAndLookup(t *testing.T) {
	store := openStore(t)
	upload, err := store.Save(strings.NewReader("tracking-data"), "Scene_01.NPZ")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := uuid.Parse(upload.ID); err != nil {
		t.Fatalf("expected uuid id, got %q", upload.ID)
	}
	if upload.Ext != ".npz" {
		t.Fatalf("expected lowercased extension, got %q", upload.Ext)
	}
	if upload.Path != filepath.Join(store.Root(), "uploads", upload.ID+".npz") {
		t.Fatalf("unexpected path %q", upload.Path)
	}
	if upload.Size != int64(len("tracking-data")) || upload.SHA256 == "" {
		t.Fatalf("unexpected size/hash: %+v", upload)
	}

	got, err := store.Lookup(upload.ID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.OriginalName != "Scene_01.NPZ" || got.Path != upload.Path || got.SHA256 != upload.SHA256 {
		t.Fatalf("lookup mismatch: %+v vs %+v", got, upload)
	}
	if !store.Exists(upload.ID) {
		t.Fatal("expected Exists to be true")
	}
	path, err := store.Path(upload.ID, filestore.KindUpload)
	if err != nil || path != upload.Path {
		t.Fatalf("Path(upload) = %q, %v", path, err)
	}
}

func TestSaveGeneratesDistinctIDs(t *testing.T) {
	store := openStore(t)
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		upload, err := store.Save(strings.NewReader("x"), "a.npz")
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		if seen[upload.ID] {
			t.Fatalf("duplicate id %s", upload.ID)
		}
		seen[upload.ID] = true
	}
}

func TestLookupRejectsUnknownAndMalformedIDs(t *testing.T) {
	store := openStore(t)
	for _, id := range []string{uuid.New().String(), "../etc/passwd", "", "not-a-uuid"} {
		if _, err := store.Lookup(id); !errors.Is(err, filestore.ErrNotFound) {
			t.Fatalf("Lookup(%q): expected ErrNotFound, got %v", id, err)
		}
		if store.Exists(id) {
			t.Fatalf("Exists(%q) should be false", id)
		}
	}
	if _, err := store.Path("../../x", filestore.KindExport); !errors.Is(err, filestore.ErrNotFound) {
		t.Fatalf("expected traversal id rejected, got %v", err)
	}
}

func TestLookupWithoutSidecar(t *testing.T) {
	store := openStore(t)
	id := uuid.New().String()
	path := filepath.Join(store.Root(), "uploads", id+".npz")
	if err := os.WriteFile(path, []byte("manual"), 0o644); err != nil {
		t.Fatal(err)
	}
	upload, err := store.Lookup(id)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if upload.Path != path || upload.Size != 6 {
		t.Fatalf("unexpected upload: %+v", upload)
	}
}

func TestLookupMissingPayload(t *testing.T) {
	store := openStore(t)
	upload, err := store.Save(strings.NewReader("x"), "a.npz")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(upload.Path); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Lookup(upload.ID); !errors.Is(err, filestore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound when payload vanished, got %v", err)
	}
}

func TestEnsureDirAndArchivePath(t *testing.T) {
	store := openStore(t)
	jobID := uuid.New().String()

	dir, err := store.EnsureDir(jobID, filestore.KindExport)
	if err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	if dir != filepath.Join(store.Root(), "exports", jobID) {
		t.Fatalf("unexpected export dir %q", dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected export dir created: %v", err)
	}
	processed, err := store.EnsureDir(jobID, filestore.KindProcessed)
	if err != nil || processed != filepath.Join(store.Root(), "processed", jobID) {
		t.Fatalf("unexpected processed dir %q, %v", processed, err)
	}
	if _, err := store.EnsureDir(jobID, filestore.KindUpload); err == nil {
		t.Fatal("expected upload kind rejected")
	}
	archive, err := store.ArchivePath(jobID)
	if err != nil || archive != filepath.Join(store.Root(), "exports", jobID+".zip") {
		t.Fatalf("unexpected archive path %q, %v", archive, err)
	}
}

func TestUsage(t *testing.T) {
	store := openStore(t)
	for _, body := range []string{"abc", "defgh"} {
		if _, err := store.Save(strings.NewReader(body), "x.npz"); err != nil {
			t.Fatal(err)
		}
	}
	usage, err := store.Usage()
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if usage.Uploads != 2 || usage.Bytes != 8 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}
