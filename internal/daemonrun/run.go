package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"trackbridge/internal/config"
	"trackbridge/internal/daemon"
	"trackbridge/internal/deps"
	"trackbridge/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the trackbridge daemon and blocks until ctx is cancelled or the
// process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logPath := filepath.Join(cfg.Paths.LogDir, logging.DaemonLogName)
	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(signalCtx, logger, cfg)
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check api_bind, data_dir permissions, and whether another daemon holds the lock"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("trackbridge daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	python := deps.CheckInterpreter(ctx, cfg.Converter.Python)
	scripts := deps.CheckFiles([]deps.Requirement{
		{Name: "convert_script", Command: cfg.Converter.ConvertScript},
		{Name: "export_script", Command: cfg.Converter.ExportScript},
	})
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("python_available", python.Available),
		logging.String("python_binary", python.Command),
		logging.String("python_version", python.Detail),
		logging.Bool("convert_script_present", scripts[0].Available),
		logging.String("convert_script", scripts[0].Command),
		logging.Bool("export_script_present", scripts[1].Available),
		logging.String("export_script", scripts[1].Command),
		logging.Int("importer_scripts", len(cfg.Export.ImporterScripts)),
		logging.Bool("api_token_present", strings.TrimSpace(cfg.Paths.APIToken) != ""),
		logging.String("progress_format", cfg.Converter.ProgressFormat),
	)
}
