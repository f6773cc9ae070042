package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"trackbridge/internal/config"
	"trackbridge/internal/deps"
	"trackbridge/internal/filestore"
	"trackbridge/internal/jobs"
	"trackbridge/internal/logging"
	"trackbridge/internal/pipeline"
	"trackbridge/internal/preflight"
	"trackbridge/internal/procrun"
)

// Daemon owns the HTTP API, the job pipeline, and the single-instance lock.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *jobs.Registry
	runner   procrun.Starter

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	store     *filestore.Store
	manager   *pipeline.Manager
	api       *apiServer
	startedAt time.Time

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithRunner replaces the process runner used to launch collaborators.
func WithRunner(runner procrun.Starter) Option {
	return func(d *Daemon) {
		if runner != nil {
			d.runner = runner
		}
	}
}

// WithRegistry injects the job registry.
func WithRegistry(registry *jobs.Registry) Option {
	return func(d *Daemon) {
		if registry != nil {
			d.registry = registry
		}
	}
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	LockFilePath string
	StartedAt    time.Time
	JobCounts    map[jobs.Status]int
	Storage      filestore.Usage
	DataDir      string
	Dependencies []deps.Status
}

// New constructs a daemon. Nothing is started until Start.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		registry: jobs.NewRegistry(),
		runner:   procrun.New(),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the daemon lock, opens the file store, and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another trackbridge daemon instance is already running")
	}

	store, err := filestore.Open(d.cfg.Paths.DataDir)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("open file store: %w", err)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	manager, err := pipeline.NewManager(d.ctx, d.cfg, store, d.registry, d.runner, d.logger)
	if err != nil {
		d.abortStart()
		return fmt.Errorf("start pipeline: %w", err)
	}

	d.mu.Lock()
	d.store = store
	d.manager = manager
	d.startedAt = time.Now()
	d.mu.Unlock()

	server := newAPIServer(d.cfg, manager, store, d.apiStatus, d.logger)
	if err := server.start(d.ctx); err != nil {
		d.abortStart()
		return err
	}
	d.mu.Lock()
	d.api = server
	d.mu.Unlock()

	d.running.Store(true)
	d.pruneLogs()
	d.runPreflight()
	d.logger.Info("trackbridge daemon started",
		logging.String("lock", d.lockPath),
		logging.String("data_dir", d.cfg.Paths.DataDir),
		logging.String("address", server.addr()),
	)
	return nil
}

func (d *Daemon) abortStart() {
	d.cancel()
	d.ctx = nil
	d.cancel = nil
	_ = d.lock.Unlock()
}

// Stop shuts down the API, interrupts in-flight jobs, and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	server := d.api
	manager := d.manager
	d.api = nil
	d.mu.Unlock()

	server.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if manager != nil {
		manager.Wait()
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock",
			logging.String(logging.FieldErrorHint, "remove the lock file manually if the next start fails"),
			logging.Error(err),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("trackbridge daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Addr returns the address the API listens on, or "" when stopped.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.api.addr()
}

// Registry exposes the job registry.
func (d *Daemon) Registry() *jobs.Registry {
	return d.registry
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	store := d.store
	startedAt := d.startedAt
	d.mu.Unlock()

	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		StartedAt:    startedAt,
		JobCounts:    d.registry.Counts(),
		DataDir:      d.cfg.Paths.DataDir,
		Dependencies: preflight.CheckSystemDeps(ctx, d.cfg),
	}
	if store != nil {
		if usage, err := store.Usage(); err == nil {
			status.Storage = usage
		} else {
			d.logger.Debug("storage usage unavailable", logging.Error(err))
		}
	}
	return status
}

func (d *Daemon) pruneLogs() {
	removed := logging.CleanupOldLogs(d.logger, d.cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:     d.cfg.Paths.LogDir,
		Pattern: "*.log*",
		Exclude: []string{filepath.Join(d.cfg.Paths.LogDir, logging.DaemonLogName)},
	})
	if removed > 0 {
		d.logger.Info("pruned old log files", logging.Int("removed", removed))
	}
}

func (d *Daemon) runPreflight() {
	for _, result := range preflight.Failed(preflight.RunAll(d.ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "jobs depending on this check will fail"),
			logging.String(logging.FieldErrorHint, "run `trackbridge deps` for details"),
		)
	}
}
