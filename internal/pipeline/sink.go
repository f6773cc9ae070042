package pipeline

import (
	"log/slog"
	"strings"

	"trackbridge/internal/jobs"
	"trackbridge/internal/logging"
	"trackbridge/internal/procrun"
	"trackbridge/internal/progress"
)

// progressSink feeds collaborator output into the registry. It sits in front
// of the registry so the line protocol can change without touching job state.
type progressSink struct {
	registry  *jobs.Registry
	parser    progress.Parser
	jobID     string
	logger    *slog.Logger
	sampler   *logging.ProgressSampler
	lastError string
}

func newProgressSink(registry *jobs.Registry, parser progress.Parser, jobID string, logger *slog.Logger) *progressSink {
	return &progressSink{
		registry: registry,
		parser:   parser,
		jobID:    jobID,
		logger:   logger,
		sampler:  logging.NewProgressSampler(25),
	}
}

// Observe applies one output line. Lines from either stream update progress
// and message, since the tracker reports through a logger on stderr. Only
// stdout "Error:" lines are kept as the failure detail.
func (s *progressSink) Observe(line procrun.Line) {
	if line.Stream == procrun.Stderr {
		if text := strings.TrimSpace(line.Text); text != "" {
			s.logger.Debug("collaborator stderr", logging.String("line", text))
		}
	}
	update, ok := s.parser.Parse(line.Text)
	if !ok {
		return
	}
	if line.Stream == procrun.Stdout {
		if detail, ok := errorDetail(update.Message); ok {
			s.lastError = detail
		}
	}

	patch := jobs.Patch{Message: &update.Message}
	if update.HasPercent() {
		percent := update.Percent
		patch.Progress = &percent
	}
	job, err := s.registry.Update(s.jobID, patch)
	if err != nil {
		s.logger.Debug("progress update dropped", logging.Error(err))
		return
	}
	if update.HasPercent() && s.sampler.ShouldLog(job.Progress) {
		s.logger.Info("job progress",
			logging.Int("progress", job.Progress),
			logging.String("message", update.Message),
		)
	}
}

// LastError returns the detail of the most recent "Error: ..." stdout line.
func (s *progressSink) LastError() string {
	return s.lastError
}

// errorDetail extracts "corrupt array" from "Error: corrupt array".
func errorDetail(text string) (string, bool) {
	text = strings.TrimSpace(text)
	const prefix = "error:"
	if len(text) <= len(prefix) || !strings.EqualFold(text[:len(prefix)], prefix) {
		return "", false
	}
	detail := strings.TrimSpace(text[len(prefix):])
	return detail, detail != ""
}
