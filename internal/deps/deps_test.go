package deps

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected blank command status: %#v", results[2])
	}
}

func TestCheckFiles(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "export_ply.py")
	if err := os.WriteFile(script, []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	results := CheckFiles([]Requirement{
		{Name: "Export script", Command: script},
		{Name: "Missing", Command: filepath.Join(dir, "absent.py"), Optional: true},
		{Name: "Directory", Command: dir},
		{Name: "Blank"},
	})

	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected script to be available, got %#v", results[0])
	}
	if results[1].Available || !strings.Contains(results[1].Detail, "not found") || !results[1].Optional {
		t.Fatalf("unexpected missing status: %#v", results[1])
	}
	if results[2].Available || !strings.Contains(results[2].Detail, "directory") {
		t.Fatalf("unexpected directory status: %#v", results[2])
	}
	if results[3].Available || results[3].Detail != "path not configured" {
		t.Fatalf("unexpected blank status: %#v", results[3])
	}
}

func TestCheckInterpreterReportsVersion(t *testing.T) {
	dir := t.TempDir()
	python := filepath.Join(dir, "python3")
	script := []byte("#!/bin/sh\necho 'Python 3.11.7'\n")
	if err := os.WriteFile(python, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	status := CheckInterpreter(context.Background(), python)
	if !status.Available {
		t.Fatalf("expected interpreter available, got %#v", status)
	}
	if status.Detail != "Python 3.11.7" {
		t.Fatalf("unexpected version detail %q", status.Detail)
	}
}

func TestCheckInterpreterFailingProbe(t *testing.T) {
	dir := t.TempDir()
	python := filepath.Join(dir, "python3")
	if err := os.WriteFile(python, []byte("#!/bin/sh\nexit 3\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	status := CheckInterpreter(context.Background(), python)
	if status.Available {
		t.Fatal("expected failing interpreter to be unavailable")
	}
	if !strings.Contains(status.Detail, "--version failed") {
		t.Fatalf("unexpected detail %q", status.Detail)
	}

	missing := CheckInterpreter(context.Background(), "clearly-not-a-python")
	if missing.Available || !strings.Contains(missing.Detail, "not found") {
		t.Fatalf("unexpected missing status %#v", missing)
	}
}
