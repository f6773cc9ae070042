package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"trackbridge/internal/api"
	"trackbridge/internal/config"
)

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadPID(filepath.Join(dir, "missing.pid")); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}

	bad := filepath.Join(dir, "bad.pid")
	if err := os.WriteFile(bad, []byte("nope\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadPID(bad); err == nil {
		t.Fatal("expected error for malformed pid")
	}

	good := filepath.Join(dir, "good.pid")
	if err := os.WriteFile(good, []byte("4242\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	pid, err := ReadPID(good)
	if err != nil || pid != 4242 {
		t.Fatalf("ReadPID = %d, %v", pid, err)
	}
}

func TestStopWhenDaemonUnreachable(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	client, err := api.NewClient("127.0.0.1:1", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := StopAndTerminate(context.Background(), client, &cfg, time.Second); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
	if err := WaitForShutdown(context.Background(), client, time.Second); err != nil {
		t.Fatalf("WaitForShutdown: %v", err)
	}
}

func TestEnsureStartedDetectsRunningDaemon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, PID: 77})
	}))
	defer srv.Close()

	client, err := api.NewClient(srv.URL, "")
	if err != nil {
		t.Fatal(err)
	}
	result, err := EnsureStarted(context.Background(), client, "/nonexistent/trackbridge", LaunchOptions{}, time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if result.State != StartStateAlreadyRunning || result.PID != 77 {
		t.Fatalf("unexpected result %+v", result)
	}

	status, err := WaitForAPI(context.Background(), client, time.Second)
	if err != nil || status.PID != 77 {
		t.Fatalf("WaitForAPI = %+v, %v", status, err)
	}
}
