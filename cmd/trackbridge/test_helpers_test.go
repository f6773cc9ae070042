package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"trackbridge/internal/api"
	"trackbridge/internal/config"
)

// fakeDaemon serves a scripted subset of the daemon API.
type fakeDaemon struct {
	t      *testing.T
	server *httptest.Server

	mu          sync.Mutex
	jobs        map[string][]api.Job
	polls       map[string]int
	exportBody  map[string]any
	archive     []byte
	lastAuthHdr string
}

func newFakeDaemon(t *testing.T) *fakeDaemon {
	t.Helper()
	f := &fakeDaemon{
		t:     t,
		jobs:  make(map[string][]api.Job),
		polls: make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		f.writeJSON(w, http.StatusOK, api.DaemonStatus{
			Running:   true,
			PID:       4242,
			JobCounts: map[string]int{"processing": 1, "complete": 2},
			Storage:   api.StorageStatus{DataDir: "/srv/trackbridge", Uploads: 3, Bytes: 3 << 20},
			Dependencies: []api.DependencyStatus{
				{Name: "Python", Available: true, Detail: "Python 3.12.1"},
				{Name: "Export script", Available: false, Detail: "file \"export_ply.py\" not found"},
			},
		})
	})
	mux.HandleFunc("GET /api/jobs", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		list := make([]api.Job, 0, len(f.jobs))
		for _, states := range f.jobs {
			list = append(list, states[len(states)-1])
		}
		f.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: list})
	})
	mux.HandleFunc("GET /api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		job, ok := f.nextState(r.PathValue("id"))
		if !ok {
			f.writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "job not found"})
			return
		}
		f.writeJSON(w, http.StatusOK, job)
	})
	mux.HandleFunc("POST /api/export/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.lastAuthHdr = r.Header.Get("Authorization")
		f.exportBody = map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&f.exportBody)
		f.mu.Unlock()
		f.writeJSON(w, http.StatusAccepted, api.JobAcceptedResponse{JobID: "job-export"})
	})
	mux.HandleFunc("GET /api/export/{id}/download", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		archive := f.archive
		f.mu.Unlock()
		if archive == nil {
			f.writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "export not ready"})
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(archive)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// setJob scripts the states returned for successive GET /api/jobs/{id}. The
// last state repeats once reached.
func (f *fakeDaemon) setJob(id string, states ...api.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id] = states
}

func (f *fakeDaemon) nextState(id string) (api.Job, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	states, ok := f.jobs[id]
	if !ok || len(states) == 0 {
		return api.Job{}, false
	}
	idx := f.polls[id]
	if idx >= len(states) {
		idx = len(states) - 1
	}
	f.polls[id]++
	return states[idx], true
}

func (f *fakeDaemon) bind() string {
	return strings.TrimPrefix(f.server.URL, "http://")
}

func (f *fakeDaemon) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		f.t.Errorf("encode: %v", err)
	}
}

// writeTestConfig writes a config whose data and log dirs live under a temp
// dir and whose API bind targets bind.
func writeTestConfig(t *testing.T, bind string) string {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", base)
	t.Setenv(config.EnvAPIToken, "")
	t.Setenv(config.EnvPython, "")

	path := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nlog_dir = %q\napi_bind = %q\napi_token = %q\n",
		filepath.Join(base, "data"),
		filepath.Join(base, "logs"),
		bind,
		"cli-token",
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
