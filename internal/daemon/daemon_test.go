package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trackbridge/internal/api"
	"trackbridge/internal/config"
	"trackbridge/internal/daemon"
	"trackbridge/internal/jobs"
	"trackbridge/internal/logging"
	"trackbridge/internal/pipeline"
)

func testConfig(t *testing.T, pythonBody string) *config.Config {
	t.Helper()
	base := t.TempDir()
	python := filepath.Join(base, "python")
	if err := os.WriteFile(python, []byte("#!/bin/sh\n"+pythonBody), 0o755); err != nil {
		t.Fatalf("write fake python: %v", err)
	}
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Converter.Python = python
	cfg.Converter.ConvertScript = filepath.Join(base, "create_viewer.py")
	cfg.Converter.ExportScript = filepath.Join(base, "export_ply.py")
	cfg.Export.ImporterScripts = nil
	return &cfg
}

func startDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testConfig(t, "exit 0\n")
	d := startDaemon(t, cfg)

	if _, err := os.Stat(cfg.LockPath()); err != nil {
		t.Fatalf("expected lock file: %v", err)
	}
	status := d.Status(context.Background())
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}
	if d.Addr() == "" {
		t.Fatal("expected listening address")
	}

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}

	d.Stop()
	if d.Status(context.Background()).Running {
		t.Fatal("expected daemon to report stopped")
	}
	if d.Addr() != "" {
		t.Fatal("expected no address after stop")
	}
}

func TestSecondInstanceRejected(t *testing.T) {
	cfg := testConfig(t, "exit 0\n")
	startDaemon(t, cfg)

	other, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	err = other.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected already running error, got %v", err)
	}
}

func TestStatusEndpointReportsDependencies(t *testing.T) {
	cfg := testConfig(t, "echo 'Python 3.12.0'\n")
	d := startDaemon(t, cfg)

	client, err := api.NewClient(d.Addr(), "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.PID != os.Getpid() {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(status.Dependencies) != 3 {
		t.Fatalf("expected interpreter and two scripts, got %+v", status.Dependencies)
	}
	if !status.Dependencies[0].Available || status.Dependencies[0].Detail != "Python 3.12.0" {
		t.Fatalf("unexpected interpreter status %+v", status.Dependencies[0])
	}
	if status.Dependencies[1].Available {
		t.Fatalf("viewer script does not exist, got %+v", status.Dependencies[1])
	}
}

func TestStopInterruptsRunningJobs(t *testing.T) {
	cfg := testConfig(t, "echo 'Progress: 10%'\nexec sleep 30\n")
	d := startDaemon(t, cfg)

	client, err := api.NewClient(d.Addr(), "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	input := filepath.Join(t.TempDir(), "scene.npz")
	if err := os.WriteFile(input, []byte("tracks"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	ctx := context.Background()
	upload, err := client.Upload(ctx, input)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	accepted, err := client.Export(ctx, upload.ID, api.ExportRequest{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		job, err := client.Job(ctx, accepted.JobID)
		if err != nil {
			t.Fatalf("Job: %v", err)
		}
		if job.Progress == 10 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never reported progress: %+v", job)
		}
		time.Sleep(20 * time.Millisecond)
	}

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(15 * time.Second):
		t.Fatal("Stop did not return")
	}

	job, err := d.Registry().Get(accepted.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != jobs.StatusError || job.Message != pipeline.ShutdownMessage {
		t.Fatalf("expected job interrupted by shutdown, got %+v", job)
	}
}
