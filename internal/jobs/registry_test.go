package jobs_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"trackbridge/internal/jobs"
)

func intPtr(v int) *int {
	return &v
}

func strPtr(v string) *string {
	return &v
}

func statusPtr(v jobs.Status) *jobs.Status {
	return &v
}

func TestCreateStartsProcessingAtZero(t *testing.T) {
	reg := jobs.NewRegistry()
	job, err := reg.Create(jobs.KindConvert, "upload-1", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Status != jobs.StatusProcessing || job.Progress != 0 {
		t.Fatalf("unexpected initial state: %+v", job)
	}
	if job.ID == "" || job.UploadID != "upload-1" || job.Kind != jobs.KindConvert {
		t.Fatalf("unexpected identity fields: %+v", job)
	}
	if _, err := reg.Create(jobs.Kind("resize"), "upload-1", nil); err == nil {
		t.Fatal("expected unsupported kind to fail")
	}
}

func TestCreateRejectsIDCollision(t *testing.T) {
	reg := jobs.NewRegistry(jobs.WithIDGenerator(func() string { return "fixed" }))
	if _, err := reg.Create(jobs.KindConvert, "u", nil); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := reg.Create(jobs.KindConvert, "u", nil); err == nil {
		t.Fatal("expected collision error")
	}
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	reg := jobs.NewRegistry()
	_, err := reg.Get("missing")
	if !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProgressIsMonotonicAndClamped(t *testing.T) {
	reg := jobs.NewRegistry()
	job, _ := reg.Create(jobs.KindExport, "u", nil)

	steps := []struct {
		in   int
		want int
	}{
		{10, 10},
		{5, 10},
		{-3, 10},
		{50, 50},
		{250, 100},
		{90, 100},
	}
	for _, step := range steps {
		got, err := reg.Update(job.ID, jobs.Patch{Progress: intPtr(step.in)})
		if err != nil {
			t.Fatalf("Update(%d): %v", step.in, err)
		}
		if got.Progress != step.want {
			t.Fatalf("Update(%d): progress %d, want %d", step.in, got.Progress, step.want)
		}
	}
}

func TestCompleteSetsFullProgressAndOutputs(t *testing.T) {
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	reg := jobs.NewRegistry(jobs.WithClock(func() time.Time { return clock }))
	job, _ := reg.Create(jobs.KindExport, "u", &jobs.ExportParams{FPS: 30, Scale: 1, ColorSource: jobs.ColorVideo})

	done, err := reg.Complete(job.ID, map[string]string{jobs.OutputArchive: "/tmp/a.zip"}, "")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != jobs.StatusComplete || done.Progress != 100 {
		t.Fatalf("unexpected completion: %+v", done)
	}
	if path, ok := done.Output(jobs.OutputArchive); !ok || path != "/tmp/a.zip" {
		t.Fatalf("missing archive output: %+v", done.Outputs)
	}
	if !done.CompletedAt.Equal(clock) {
		t.Fatalf("unexpected completion time: %v", done.CompletedAt)
	}
	if done.Message != "Complete" {
		t.Fatalf("expected default message, got %q", done.Message)
	}
}

func TestTerminalJobsRejectUpdates(t *testing.T) {
	reg := jobs.NewRegistry()
	job, _ := reg.Create(jobs.KindConvert, "u", nil)
	if _, err := reg.Update(job.ID, jobs.Patch{Progress: intPtr(40)}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	failed, err := reg.Fail(job.ID, "corrupt array")
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if failed.Status != jobs.StatusError || failed.Message != "corrupt array" {
		t.Fatalf("unexpected failure snapshot: %+v", failed)
	}

	_, err = reg.Update(job.ID, jobs.Patch{Progress: intPtr(90), Message: strPtr("late"), Status: statusPtr(jobs.StatusComplete)})
	if !errors.Is(err, jobs.ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	if _, err := reg.Complete(job.ID, nil, "done"); !errors.Is(err, jobs.ErrTerminal) {
		t.Fatalf("expected ErrTerminal on complete, got %v", err)
	}
	current, _ := reg.Get(job.ID)
	if current.Status != jobs.StatusError || current.Progress != 40 || current.Message != "corrupt array" {
		t.Fatalf("terminal job mutated: %+v", current)
	}
}

func TestSnapshotsAreIndependent(t *testing.T) {
	reg := jobs.NewRegistry()
	job, _ := reg.Create(jobs.KindExport, "u", &jobs.ExportParams{FPS: 24, Scale: 2, ColorSource: jobs.ColorWhite})
	job.Outputs["archive"] = "tampered"
	job.Export.FPS = 1

	fresh, _ := reg.Get(job.ID)
	if _, ok := fresh.Outputs["archive"]; ok {
		t.Fatal("snapshot mutation leaked into registry outputs")
	}
	if fresh.Export.FPS != 24 {
		t.Fatalf("snapshot mutation leaked into export params: %+v", fresh.Export)
	}
}

func TestListNewestFirst(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	reg := jobs.NewRegistry(jobs.WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}))
	var ids []string
	for i := 0; i < 3; i++ {
		job, _ := reg.Create(jobs.KindConvert, fmt.Sprintf("u%d", i), nil)
		ids = append(ids, job.ID)
	}
	list := reg.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(list))
	}
	if list[0].ID != ids[2] || list[2].ID != ids[0] {
		t.Fatalf("unexpected order: %v", []string{list[0].ID, list[1].ID, list[2].ID})
	}
	counts := reg.Counts()
	if counts[jobs.StatusProcessing] != 3 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestConcurrentUpdatesKeepMaximum(t *testing.T) {
	reg := jobs.NewRegistry()
	job, _ := reg.Create(jobs.KindExport, "u", nil)

	var wg sync.WaitGroup
	for i := 0; i <= 100; i++ {
		wg.Add(1)
		go func(pct int) {
			defer wg.Done()
			_, _ = reg.Update(job.ID, jobs.Patch{Progress: intPtr(pct)})
			_, _ = reg.Get(job.ID)
		}(i)
	}
	wg.Wait()

	got, _ := reg.Get(job.ID)
	if got.Progress != 100 {
		t.Fatalf("expected final progress 100, got %d", got.Progress)
	}
}

func TestParseColorSource(t *testing.T) {
	cases := map[string]jobs.ColorSource{
		"video":         jobs.ColorVideo,
		" Depth ":       jobs.ColorDepth,
		"depth-heatmap": jobs.ColorDepth,
		"white":         jobs.ColorWhite,
	}
	for in, want := range cases {
		got, err := jobs.ParseColorSource(in)
		if err != nil || got != want {
			t.Fatalf("ParseColorSource(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := jobs.ParseColorSource("rainbow"); err == nil {
		t.Fatal("expected error for unknown color source")
	}
	if jobs.ColorDepth.ScriptValue() != "depth" || jobs.ColorVideo.ScriptValue() != "video" {
		t.Fatal("unexpected script values")
	}
}

func TestExportParamsValidate(t *testing.T) {
	valid := jobs.ExportParams{FPS: 30, Scale: 1, ColorSource: jobs.ColorVideo}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid params, got %v", err)
	}
	for _, bad := range []jobs.ExportParams{
		{FPS: 0, Scale: 1, ColorSource: jobs.ColorVideo},
		{FPS: 30, Scale: 0, ColorSource: jobs.ColorVideo},
		{FPS: 30, Scale: 1, ColorSource: "sepia"},
	} {
		if err := bad.Validate(); err == nil {
			t.Fatalf("expected validation error for %+v", bad)
		}
	}
}
