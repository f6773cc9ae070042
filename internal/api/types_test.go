package api

import (
	"testing"
	"time"

	"trackbridge/internal/jobs"
)

func TestFromJobHidesOutputPaths(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job := jobs.Job{
		ID:        "job-1",
		Kind:      jobs.KindExport,
		UploadID:  "up-1",
		Status:    jobs.StatusComplete,
		Progress:  100,
		Message:   "Export ready",
		Outputs:   map[string]string{jobs.OutputArchive: "/data/exports/job-1.zip"},
		Export:    &jobs.ExportParams{FPS: 24, Scale: 2, ColorSource: jobs.ColorDepth},
		CreatedAt: created,
	}

	got := FromJob(job)
	if !got.Downloadable || got.ViewerReady {
		t.Fatalf("unexpected readiness flags: %+v", got)
	}
	if got.Export == nil || got.Export.ColorSource != "depth-heatmap" || got.Export.FPS != 24 {
		t.Fatalf("unexpected export options: %+v", got.Export)
	}
	if got.CreatedAt != "2026-03-01T12:00:00.000Z" {
		t.Fatalf("unexpected createdAt %q", got.CreatedAt)
	}
	if got.CompletedAt != "" {
		t.Fatalf("expected empty completedAt, got %q", got.CompletedAt)
	}
	if !got.IsTerminal() {
		t.Fatal("complete job should be terminal")
	}
}

func TestFromJobProcessingHasNoReadiness(t *testing.T) {
	job := jobs.Job{
		ID:      "job-2",
		Kind:    jobs.KindConvert,
		Status:  jobs.StatusProcessing,
		Outputs: map[string]string{jobs.OutputViewer: "/tmp/viewer.html"},
	}
	got := FromJob(job)
	if got.ViewerReady || got.IsTerminal() {
		t.Fatalf("processing job must not be ready: %+v", got)
	}
}
