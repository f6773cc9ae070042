package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"trackbridge/internal/api"
	"trackbridge/internal/config"
)

// ErrDaemonNotRunning indicates the daemon API is unreachable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

// StartState describes how EnsureStarted concluded.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Launch starts a detached "serve" process from executablePath.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"serve"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForAPI polls the status endpoint until the daemon answers.
func WaitForAPI(ctx context.Context, client *api.Client, timeout time.Duration) (api.DaemonStatus, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		status, err := client.Status(ctx)
		if err == nil && status.Running {
			return status, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return api.DaemonStatus{}, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return api.DaemonStatus{}, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless one already answers at the
// configured bind address.
func EnsureStarted(ctx context.Context, client *api.Client, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if status, err := client.Status(ctx); err == nil && status.Running {
		return StartResult{State: StartStateAlreadyRunning, PID: status.PID}, nil
	} else if err != nil && !api.IsAPIUnavailable(err) {
		return StartResult{}, err
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	status, err := WaitForAPI(ctx, client, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, PID: status.PID}, nil
}

// WaitForShutdown waits until the daemon API stops answering.
func WaitForShutdown(ctx context.Context, client *api.Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := client.Status(ctx); err != nil && api.IsAPIUnavailable(err) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return fmt.Errorf("daemon did not stop within %s", timeout)
}

// ReadPID returns the pid recorded by a running daemon.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrDaemonNotRunning
		}
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %q", pidPath)
	}
	return pid, nil
}

// StopAndTerminate sends SIGTERM to the daemon recorded in the pid file and
// escalates to SIGKILL when the API is still answering after gracePeriod.
func StopAndTerminate(ctx context.Context, client *api.Client, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	pid := 0
	if status, err := client.Status(ctx); err == nil {
		pid = status.PID
	} else if api.IsAPIUnavailable(err) {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid == 0 {
		recorded, err := ReadPID(cfg.PIDPath())
		if err != nil {
			return StopResult{}, err
		}
		pid = recorded
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return StopResult{}, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return StopResult{}, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	result := StopResult{PID: pid}
	if err := WaitForShutdown(ctx, client, gracePeriod); err == nil {
		return result, nil
	}

	if err := proc.Kill(); err != nil {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	_ = os.Remove(cfg.PIDPath())
	_ = os.Remove(cfg.LockPath())
	result.ForcedKill = true
	return result, nil
}
