package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"trackbridge/internal/fileutil"
)

var (
	// ErrNotFound is returned for unknown or malformed identifiers.
	ErrNotFound = errors.New("file not found")
	// ErrIO marks filesystem failures.
	ErrIO = errors.New("file store i/o failure")
)

// Kind selects one of the three storage areas.
type Kind string

const (
	KindUpload    Kind = "upload"
	KindProcessed Kind = "processed"
	KindExport    Kind = "export"
)

const (
	uploadsDir   = "uploads"
	processedDir = "processed"
	exportsDir   = "exports"
	sidecarExt   = ".json"
)

// Upload describes a stored input file. Uploads are immutable once saved.
type Upload struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	Ext          string    `json:"ext"`
	Path         string    `json:"-"`
	Size         int64     `json:"size"`
	SHA256       string    `json:"sha256"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store owns the uploads/, processed/ and exports/ trees under one root.
type Store struct {
	root string
	now  func() time.Time
}

// Open prepares the storage areas under root.
func Open(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("%w: empty root", ErrIO)
	}
	for _, dir := range []string{uploadsDir, processedDir, exportsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("%w: create %s: %w", ErrIO, dir, err)
		}
	}
	return &Store{root: root, now: time.Now}, nil
}

// Root returns the storage root directory.
func (s *Store) Root() string {
	return s.root
}

// Save persists r under a freshly generated id, keeping the lowercased
// extension of originalName.
func (s *Store) Save(r io.Reader, originalName string) (Upload, error) {
	name := filepath.Base(strings.TrimSpace(originalName))
	if name == "." || name == string(filepath.Separator) {
		name = ""
	}
	upload := Upload{
		ID:           uuid.New().String(),
		OriginalName: name,
		Ext:          cleanExt(name),
		CreatedAt:    s.now().UTC(),
	}
	upload.Path = filepath.Join(s.root, uploadsDir, upload.ID+upload.Ext)

	res, err := fileutil.WriteStreamAtomic(upload.Path, r, 0o644)
	if err != nil {
		return Upload{}, fmt.Errorf("%w: save upload: %w", ErrIO, err)
	}
	upload.Size = res.Size
	upload.SHA256 = res.SHA256

	meta, err := json.MarshalIndent(upload, "", "  ")
	if err != nil {
		_ = os.Remove(upload.Path)
		return Upload{}, fmt.Errorf("%w: encode upload metadata: %w", ErrIO, err)
	}
	if err := fileutil.WriteFileAtomic(s.sidecarPath(upload.ID), meta, 0o644); err != nil {
		_ = os.Remove(upload.Path)
		return Upload{}, fmt.Errorf("%w: save upload metadata: %w", ErrIO, err)
	}
	return upload, nil
}

// Lookup returns the upload for id or ErrNotFound.
func (s *Store) Lookup(id string) (Upload, error) {
	if !validID(id) {
		return Upload{}, fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}
	data, err := os.ReadFile(s.sidecarPath(id))
	if err == nil {
		var upload Upload
		if err := json.Unmarshal(data, &upload); err != nil {
			return Upload{}, fmt.Errorf("%w: decode upload metadata %s: %w", ErrIO, id, err)
		}
		upload.ID = id
		upload.Path = filepath.Join(s.root, uploadsDir, id+upload.Ext)
		if !fileutil.IsFile(upload.Path) {
			return Upload{}, fmt.Errorf("%w: upload %s", ErrNotFound, id)
		}
		return upload, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return Upload{}, fmt.Errorf("%w: read upload metadata %s: %w", ErrIO, id, err)
	}
	return s.lookupWithoutSidecar(id)
}

// lookupWithoutSidecar finds files dropped into uploads/ by hand.
func (s *Store) lookupWithoutSidecar(id string) (Upload, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, uploadsDir, id+".*"))
	if err != nil {
		return Upload{}, fmt.Errorf("%w: glob upload %s: %w", ErrIO, id, err)
	}
	for _, match := range matches {
		if strings.HasSuffix(match, sidecarExt) {
			continue
		}
		info, err := os.Stat(match)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		return Upload{
			ID:           id,
			OriginalName: filepath.Base(match),
			Ext:          filepath.Ext(match),
			Path:         match,
			Size:         info.Size(),
			CreatedAt:    info.ModTime().UTC(),
		}, nil
	}
	return Upload{}, fmt.Errorf("%w: upload %s", ErrNotFound, id)
}

// Exists reports whether an upload with id is stored.
func (s *Store) Exists(id string) bool {
	_, err := s.Lookup(id)
	return err == nil
}

// Path resolves the location for id in the given area. Upload paths require
// the upload to exist; processed and export paths name the per-id directory.
func (s *Store) Path(id string, kind Kind) (string, error) {
	switch kind {
	case KindUpload:
		upload, err := s.Lookup(id)
		if err != nil {
			return "", err
		}
		return upload.Path, nil
	case KindProcessed:
		if !validID(id) {
			return "", fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
		}
		return filepath.Join(s.root, processedDir, id), nil
	case KindExport:
		if !validID(id) {
			return "", fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
		}
		return filepath.Join(s.root, exportsDir, id), nil
	default:
		return "", fmt.Errorf("unknown storage kind %q", kind)
	}
}

// EnsureDir resolves and creates the per-id directory for processed or export output.
func (s *Store) EnsureDir(id string, kind Kind) (string, error) {
	if kind == KindUpload {
		return "", fmt.Errorf("upload area has no per-id directories")
	}
	dir, err := s.Path(id, kind)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", ErrIO, dir, err)
	}
	return dir, nil
}

// ArchivePath returns where the export archive for jobID lives.
func (s *Store) ArchivePath(jobID string) (string, error) {
	if !validID(jobID) {
		return "", fmt.Errorf("%w: invalid id %q", ErrNotFound, jobID)
	}
	return filepath.Join(s.root, exportsDir, jobID+".zip"), nil
}

// Usage summarizes the upload area.
type Usage struct {
	Uploads int
	Bytes   int64
}

// Usage walks uploads/ and reports file count and total size.
func (s *Store) Usage() (Usage, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, uploadsDir))
	if err != nil {
		return Usage{}, fmt.Errorf("%w: read uploads: %w", ErrIO, err)
	}
	var usage Usage
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, sidecarExt) || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		usage.Uploads++
		usage.Bytes += info.Size()
	}
	return usage, nil
}

func (s *Store) sidecarPath(id string) string {
	return filepath.Join(s.root, uploadsDir, id+sidecarExt)
}

// validID only accepts canonical uuids so ids can never traverse paths.
func validID(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.String() == id
}

func cleanExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == sidecarExt || len(ext) < 2 || len(ext) > 16 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
