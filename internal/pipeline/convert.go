package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"trackbridge/internal/filestore"
	"trackbridge/internal/fileutil"
	"trackbridge/internal/jobs"
	"trackbridge/internal/procrun"
	"trackbridge/internal/services"
)

// ViewerFileName is the document the convert collaborator writes.
const ViewerFileName = "viewer.html"

const maxViewerDimension = 8192

// ConvertOptions sizes the generated viewer. Zero values take config defaults.
type ConvertOptions struct {
	Width  int
	Height int
}

func (m *Manager) resolveConvertOptions(opts ConvertOptions) (ConvertOptions, error) {
	if opts.Width == 0 {
		opts.Width = m.cfg.Converter.ViewerWidth
	}
	if opts.Height == 0 {
		opts.Height = m.cfg.Converter.ViewerHeight
	}
	if opts.Width < 0 || opts.Height < 0 || opts.Width > maxViewerDimension || opts.Height > maxViewerDimension {
		return opts, services.Wrap(services.ErrInvalidParams, "convert", "", fmt.Sprintf("viewer size %dx%d out of range", opts.Width, opts.Height), nil)
	}
	return opts, nil
}

// StartConvert creates a convert job for uploadID and launches the viewer
// collaborator. The returned snapshot is already in Error when the process
// could not be started.
func (m *Manager) StartConvert(ctx context.Context, uploadID string, opts ConvertOptions) (jobs.Job, error) {
	opts, err := m.resolveConvertOptions(opts)
	if err != nil {
		return jobs.Job{}, err
	}
	upload, err := m.lookupUpload(uploadID, "convert")
	if err != nil {
		return jobs.Job{}, err
	}
	job, err := m.registry.Create(jobs.KindConvert, upload.ID, nil)
	if err != nil {
		return jobs.Job{}, err
	}

	outDir, err := m.store.EnsureDir(job.ID, filestore.KindProcessed)
	if err != nil {
		m.fail(m.logger, job.ID, err)
		return m.snapshot(job), nil
	}
	output := filepath.Join(outDir, ViewerFileName)
	cmd := procrun.Command{
		Binary: m.cfg.Converter.Python,
		Args: []string{
			m.cfg.Converter.ConvertScript,
			upload.Path,
			output,
			"--width", strconv.Itoa(opts.Width),
			"--height", strconv.Itoa(opts.Height),
		},
	}
	m.launch(job, cmd, func(_ context.Context, _ jobs.Job) (map[string]string, string, error) {
		if !fileutil.IsFile(output) {
			return nil, "", services.Wrap(services.ErrSubprocess, "", "", "convert finished without writing "+ViewerFileName, nil)
		}
		return map[string]string{jobs.OutputViewer: output}, "Viewer ready", nil
	})
	return m.snapshot(job), nil
}

func (m *Manager) lookupUpload(uploadID, kind string) (filestore.Upload, error) {
	upload, err := m.store.Lookup(uploadID)
	if err == nil {
		return upload, nil
	}
	if errors.Is(err, filestore.ErrNotFound) {
		return filestore.Upload{}, services.Wrap(services.ErrInputMissing, kind, "lookup", "unknown upload "+uploadID, err)
	}
	return filestore.Upload{}, err
}

// snapshot re-reads job so callers see a start failure recorded by launch.
func (m *Manager) snapshot(job jobs.Job) jobs.Job {
	if current, err := m.registry.Get(job.ID); err == nil {
		return current
	}
	return job
}
