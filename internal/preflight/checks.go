package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"trackbridge/internal/config"
	"trackbridge/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the interpreter and collaborator scripts for the
// given config. Both the daemon status endpoint and the CLI deps command use
// this so the requirement list lives in one place.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	if cfg == nil {
		return nil
	}
	results := []deps.Status{deps.CheckInterpreter(ctx, cfg.Converter.Python)}

	scripts := []deps.Requirement{
		{
			Name:        "Viewer script",
			Command:     cfg.Converter.ConvertScript,
			Description: "Required for NPZ to HTML viewer conversion",
		},
		{
			Name:        "Export script",
			Command:     cfg.Converter.ExportScript,
			Description: "Required for Blender exports",
		},
	}
	for _, importer := range cfg.Export.ImporterScripts {
		scripts = append(scripts, deps.Requirement{
			Name:        filepath.Base(importer),
			Command:     importer,
			Description: "Blender importer bundled into export archives",
			Optional:    true,
		})
	}
	return append(results, deps.CheckFiles(scripts)...)
}
