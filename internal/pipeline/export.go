package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"trackbridge/internal/archive"
	"trackbridge/internal/filestore"
	"trackbridge/internal/fileutil"
	"trackbridge/internal/jobs"
	"trackbridge/internal/logging"
	"trackbridge/internal/procrun"
	"trackbridge/internal/services"
)

// Folders the export collaborator may populate, in manifest order.
var exportFolders = []string{"trajectory", "pointcloud", "cameras"}

// ExportDefaults returns the configured export settings.
func (m *Manager) ExportDefaults() jobs.ExportParams {
	color, err := jobs.ParseColorSource(m.cfg.Export.DefaultColorSource)
	if err != nil {
		color = jobs.ColorVideo
	}
	return jobs.ExportParams{
		FPS:         m.cfg.Export.DefaultFPS,
		Scale:       m.cfg.Export.DefaultScale,
		ColorSource: color,
	}
}

// StartExport creates an export job for uploadID and launches the export
// collaborator. On a zero exit the output folder is packaged into a zip.
func (m *Manager) StartExport(ctx context.Context, uploadID string, params jobs.ExportParams) (jobs.Job, error) {
	color, err := jobs.ParseColorSource(string(params.ColorSource))
	if err != nil {
		return jobs.Job{}, services.Wrap(services.ErrInvalidParams, "export", "", "", err)
	}
	params.ColorSource = color
	if err := params.Validate(); err != nil {
		return jobs.Job{}, services.Wrap(services.ErrInvalidParams, "export", "", "", err)
	}
	upload, err := m.lookupUpload(uploadID, "export")
	if err != nil {
		return jobs.Job{}, err
	}
	job, err := m.registry.Create(jobs.KindExport, upload.ID, &params)
	if err != nil {
		return jobs.Job{}, err
	}

	outDir, err := m.store.EnsureDir(job.ID, filestore.KindExport)
	if err != nil {
		m.fail(m.logger, job.ID, err)
		return m.snapshot(job), nil
	}
	cmd := procrun.Command{
		Binary: m.cfg.Converter.Python,
		Args: []string{
			m.cfg.Converter.ExportScript,
			upload.Path,
			outDir,
			"--fps", strconv.Itoa(params.FPS),
			"--scale", strconv.FormatFloat(params.Scale, 'f', -1, 64),
			"--color", params.ColorSource.ScriptValue(),
		},
	}
	m.launch(job, cmd, func(ctx context.Context, job jobs.Job) (map[string]string, string, error) {
		dest, err := m.packageExport(ctx, job, upload, outDir, params)
		if err != nil {
			return nil, "", err
		}
		return map[string]string{jobs.OutputArchive: dest, jobs.OutputDirectory: outDir}, "Export ready", nil
	})
	return m.snapshot(job), nil
}

// exportMetadata is the subset of metadata.json the manifest reports.
type exportMetadata struct {
	TotalFrames int `json:"total_frames"`
	NumPoints   int `json:"num_points"`
}

func (m *Manager) packageExport(ctx context.Context, job jobs.Job, upload filestore.Upload, outDir string, params jobs.ExportParams) (string, error) {
	dest, err := m.store.ArchivePath(job.ID)
	if err != nil {
		return "", services.Wrap(services.ErrArchive, "export", "archive path", "", err)
	}

	candidates := make([]string, 0, len(exportFolders))
	for _, name := range exportFolders {
		candidates = append(candidates, filepath.Join(outDir, name))
	}
	sourceDirs := archive.ExistingDirs(candidates)
	folders := make([]archive.Folder, 0, len(sourceDirs))
	for _, dir := range sourceDirs {
		folders = append(folders, archive.Folder{Name: filepath.Base(dir), Files: countFiles(dir)})
	}

	var extras []string
	videos, _ := filepath.Glob(filepath.Join(outDir, "video.*"))
	sort.Strings(videos)
	for _, path := range append(videos, m.cfg.Export.ImporterScripts...) {
		if fileutil.IsFile(path) {
			extras = append(extras, path)
		} else {
			logging.WarnWithContext(m.logger, "archive input missing; skipped", "archive_input_missing",
				logging.String("path", path),
				logging.String(logging.FieldJobID, job.ID),
				logging.String(logging.FieldErrorHint, "check export.importer_scripts paths"),
				logging.String(logging.FieldImpact, "archive ships without this file"),
			)
		}
	}
	files := make([]string, 0, len(extras))
	for _, path := range extras {
		files = append(files, filepath.Base(path))
	}

	meta := m.readMetadata(job.ID, filepath.Join(outDir, "metadata.json"))
	manifest := archive.RenderManifest(archive.Manifest{
		JobID:       job.ID,
		Source:      upload.OriginalName,
		FPS:         params.FPS,
		Scale:       params.Scale,
		ColorSource: string(params.ColorSource),
		Frames:      meta.TotalFrames,
		Points:      meta.NumPoints,
		Folders:     folders,
		Files:       files,
		GeneratedAt: m.now(),
	})

	msg := "Packaging archive"
	if _, err := m.registry.Update(job.ID, jobs.Patch{Message: &msg}); err != nil {
		return "", fmt.Errorf("record packaging state: %w", err)
	}
	return m.builder.Build(ctx, archive.Request{
		JobID:      job.ID,
		SourceDirs: sourceDirs,
		ExtraFiles: extras,
		Manifest:   manifest,
		Dest:       dest,
	})
}

// readMetadata returns the zero value when metadata.json is absent or
// malformed; the manifest then reports zero frames and points.
func (m *Manager) readMetadata(jobID, path string) exportMetadata {
	var meta exportMetadata
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			m.logger.Debug("metadata unreadable", logging.String(logging.FieldJobID, jobID), logging.Error(err))
		}
		return meta
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		logging.WarnWithContext(m.logger, "metadata.json malformed; manifest counts zeroed", "export_metadata_invalid",
			logging.String("path", path),
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the exporter's metadata.json output"),
			logging.String(logging.FieldImpact, "README reports 0 frames and 0 points"),
		)
		return exportMetadata{}
	}
	return meta
}

func countFiles(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			count++
		}
	}
	return count
}
