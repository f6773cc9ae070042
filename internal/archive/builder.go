package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"trackbridge/internal/logging"
	"trackbridge/internal/services"
)

// ManifestName is the archive entry the rendered manifest is stored under.
const ManifestName = "README.txt"

// Request describes one archive to build.
type Request struct {
	JobID      string
	SourceDirs []string // each added rooted at its base name; missing dirs are skipped
	ExtraFiles []string // added at the archive root by base name; missing files are skipped
	Manifest   string
	Dest       string
}

// Builder packages export folders into zip files.
type Builder struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewBuilder constructs a Builder.
func NewBuilder(logger *slog.Logger) *Builder {
	return &Builder{logger: logging.NewComponentLogger(logger, "archive"), now: time.Now}
}

type entry struct {
	name string // slash-separated archive path; directories end in "/"
	src  string
	info fs.FileInfo
}

func (e entry) isDir() bool {
	return strings.HasSuffix(e.name, "/")
}

// Build writes the archive described by req and returns its path. The archive
// appears at Dest only when complete.
func (b *Builder) Build(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Dest) == "" {
		return "", services.Wrap(services.ErrArchive, "archive", "build", "destination not set", nil)
	}
	entries, err := b.collect(req)
	if err != nil {
		return "", services.Wrap(services.ErrArchive, "archive", "collect", "", err)
	}

	if err := os.MkdirAll(filepath.Dir(req.Dest), 0o755); err != nil {
		return "", services.Wrap(services.ErrArchive, "archive", "prepare", "", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(req.Dest), "."+filepath.Base(req.Dest)+".*.tmp")
	if err != nil {
		return "", services.Wrap(services.ErrArchive, "archive", "prepare", "", err)
	}
	tmpPath := tmp.Name()
	fail := func(op string, cause error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", services.Wrap(services.ErrArchive, "archive", op, "", cause)
	}

	zw := zip.NewWriter(tmp)
	modified := b.now()
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return fail("cancelled", err)
		}
		if err := addFile(zw, e); err != nil {
			_ = zw.Close()
			return fail("write "+e.name, err)
		}
	}
	if req.Manifest != "" {
		header := &zip.FileHeader{Name: ManifestName, Method: zip.Deflate, Modified: modified}
		w, err := zw.CreateHeader(header)
		if err == nil {
			_, err = io.WriteString(w, req.Manifest)
		}
		if err != nil {
			_ = zw.Close()
			return fail("write manifest", err)
		}
	}
	if err := zw.Close(); err != nil {
		return fail("finalize", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", services.Wrap(services.ErrArchive, "archive", "close", "", err)
	}
	if err := os.Rename(tmpPath, req.Dest); err != nil {
		_ = os.Remove(tmpPath)
		return "", services.Wrap(services.ErrArchive, "archive", "rename", "", err)
	}

	logging.WithContext(services.WithJobID(ctx, req.JobID), b.logger).Info("archive written",
		logging.String("path", req.Dest),
		logging.Int("entries", len(entries)),
		logging.String(logging.FieldEventType, "archive_written"),
	)
	return req.Dest, nil
}

func (b *Builder) collect(req Request) ([]entry, error) {
	var entries []entry
	for _, dir := range req.SourceDirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			b.logger.Debug("source directory skipped", logging.String("path", dir))
			continue
		}
		root := filepath.Base(filepath.Clean(dir))
		err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if !d.IsDir() && !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			name := path.Join(root, filepath.ToSlash(rel))
			if d.IsDir() {
				name += "/"
			}
			entries = append(entries, entry{name: name, src: p, info: fi})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", dir, err)
		}
	}
	for _, file := range req.ExtraFiles {
		info, err := os.Stat(file)
		if err != nil || !info.Mode().IsRegular() {
			b.logger.Debug("extra file skipped", logging.String("path", file))
			continue
		}
		entries = append(entries, entry{name: filepath.Base(file), src: file, info: info})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	deduped := make([]entry, 0, len(entries))
	for _, e := range entries {
		if e.name == ManifestName && req.Manifest != "" {
			continue
		}
		if n := len(deduped); n > 0 && deduped[n-1].name == e.name {
			continue
		}
		deduped = append(deduped, e)
	}
	return deduped, nil
}

func addFile(zw *zip.Writer, e entry) error {
	header, err := zip.FileInfoHeader(e.info)
	if err != nil {
		return err
	}
	header.Name = e.name
	if e.isDir() {
		header.Method = zip.Store
		_, err = zw.CreateHeader(header)
		return err
	}
	header.Method = zip.Deflate
	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	f, err := os.Open(e.src)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// ExistingDirs filters dirs down to those that exist as directories, keeping
// their order.
func ExistingDirs(dirs []string) []string {
	out := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			out = append(out, dir)
		}
	}
	return out
}
