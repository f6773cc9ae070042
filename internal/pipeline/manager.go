package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"trackbridge/internal/archive"
	"trackbridge/internal/config"
	"trackbridge/internal/filestore"
	"trackbridge/internal/jobs"
	"trackbridge/internal/logging"
	"trackbridge/internal/procrun"
	"trackbridge/internal/progress"
	"trackbridge/internal/services"
)

// ShutdownMessage is recorded on jobs interrupted by daemon shutdown.
const ShutdownMessage = "daemon stopped"

// Manager launches convert and export jobs and drives them to a terminal state.
type Manager struct {
	cfg      *config.Config
	store    *filestore.Store
	registry *jobs.Registry
	runner   procrun.Starter
	builder  *archive.Builder
	parser   progress.Parser
	logger   *slog.Logger
	now      func() time.Time

	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewManager wires the pipeline. Jobs run under ctx; cancelling it stops every
// in-flight collaborator.
func NewManager(ctx context.Context, cfg *config.Config, store *filestore.Store, registry *jobs.Registry, runner procrun.Starter, logger *slog.Logger) (*Manager, error) {
	if cfg == nil || store == nil || registry == nil || runner == nil {
		return nil, errors.New("pipeline: config, store, registry and runner are required")
	}
	parser, err := progress.ForFormat(cfg.Converter.ProgressFormat)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "progress parser", "", err)
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		registry: registry,
		runner:   runner,
		builder:  archive.NewBuilder(logger),
		parser:   parser,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		now:      time.Now,
		baseCtx:  ctx,
	}, nil
}

// Registry exposes the job registry the manager updates.
func (m *Manager) Registry() *jobs.Registry {
	return m.registry
}

// Wait blocks until every launched job reached a terminal state.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// finisher runs after a zero exit and returns the job outputs.
type finisher func(ctx context.Context, job jobs.Job) (outputs map[string]string, message string, err error)

// launch starts cmd for job and attaches the continuation that feeds the
// registry. Start failures are recorded on the job rather than returned.
func (m *Manager) launch(job jobs.Job, cmd procrun.Command, finish finisher) {
	ctx := services.WithJobID(m.baseCtx, job.ID)
	ctx = services.WithJobKind(ctx, string(job.Kind))
	ctx = services.WithUploadID(ctx, job.UploadID)
	logger := logging.WithContext(ctx, m.logger)

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout := m.cfg.JobTimeout(); timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}

	logger.Info("job started",
		logging.String("command", cmd.String()),
		logging.String(logging.FieldEventType, "job_started"),
	)
	handle, err := m.runner.Start(runCtx, cmd)
	if err != nil {
		cancel()
		m.fail(logger, job.ID, services.Wrap(services.ErrSubprocess, "", "", fmt.Sprintf("could not start %s", job.Kind), err))
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.follow(runCtx, logger, job, handle, finish)
	}()
}

func (m *Manager) follow(ctx context.Context, logger *slog.Logger, job jobs.Job, handle *procrun.Handle, finish finisher) {
	sink := newProgressSink(m.registry, m.parser, job.ID, logger)
	for line := range handle.Lines() {
		sink.Observe(line)
	}
	res := handle.Wait()

	if !res.Success() {
		m.fail(logger, job.ID, failureError(job.Kind, res, sink.LastError(), m.cfg.JobTimeout()),
			logging.Int("exit_code", res.ExitCode),
			logging.String("stderr_tail", res.Stderr),
			logging.Duration("duration", res.Duration),
		)
		return
	}

	outputs, message, err := finish(ctx, job)
	if err != nil {
		m.fail(logger, job.ID, err, logging.Duration("duration", res.Duration))
		return
	}
	if _, err := m.registry.Complete(job.ID, outputs, message); err != nil {
		logging.WarnWithContext(logger, "job completion not recorded", "job_complete_rejected",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job keeps its earlier terminal state"),
		)
		return
	}
	logger.Info("job complete",
		logging.Duration("duration", res.Duration),
		logging.String(logging.FieldEventType, "job_complete"),
	)
}

func (m *Manager) fail(logger *slog.Logger, jobID string, err error, attrs ...logging.Attr) {
	message := jobMessage(err)
	if _, updateErr := m.registry.Fail(jobID, message); updateErr != nil {
		logger.Debug("job failure not recorded", logging.Error(updateErr))
	}
	attrs = append(attrs,
		logging.Error(err),
		logging.String(logging.FieldErrorHint, errorHint(err)),
	)
	logging.ErrorWithContext(logger, "job failed", "job_failed", attrs...)
}

// failureError classifies a non-successful Result into a user-facing error.
func failureError(kind jobs.Kind, res procrun.Result, lastError string, timeout time.Duration) error {
	switch {
	case errors.Is(res.Err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "", "", fmt.Sprintf("%s timed out after %s", kind, timeout), nil)
	case errors.Is(res.Err, context.Canceled):
		return services.Wrap(services.ErrSubprocess, "", "", ShutdownMessage, nil)
	case res.Err != nil:
		return services.Wrap(services.ErrSubprocess, "", "", fmt.Sprintf("%s failed", kind), res.Err)
	}
	detail := lastError
	if detail == "" {
		detail = lastLine(res.Stderr)
	}
	message := fmt.Sprintf("%s failed (exit status %d)", kind, res.ExitCode)
	if detail != "" {
		message += ": " + detail
	}
	return services.Wrap(services.ErrSubprocess, "", "", message, nil)
}

// jobMessage strips the marker prefix so users see the failure detail only.
func jobMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, marker := range []error{
		services.ErrSubprocess, services.ErrArchive, services.ErrTimeout,
		services.ErrInputMissing, services.ErrConfiguration,
	} {
		if errors.Is(err, marker) {
			msg = strings.TrimPrefix(msg, marker.Error()+": ")
			break
		}
	}
	return msg
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, services.ErrTimeout):
		return "raise converter.timeout_seconds or check the collaborator for hangs"
	case errors.Is(err, services.ErrArchive):
		return "check free space and permissions under the data directory"
	case errors.Is(err, services.ErrSubprocess):
		return "run the collaborator script by hand with the logged command"
	default:
		return "check logs for details"
	}
}

func lastLine(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
