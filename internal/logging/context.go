package logging

import (
	"context"
	"log/slog"

	"trackbridge/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID is the standardized structured logging key for job identifiers.
	FieldJobID = "job_id"
	// FieldJobKind is the standardized structured logging key for job kinds (convert/export).
	FieldJobKind = "job_kind"
	// FieldUploadID is the standardized structured logging key for upload identifiers.
	FieldUploadID = "upload_id"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for filtering (e.g. job_failed).
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldImpact describes the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.JobIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldJobID, id))
	}
	if kind, ok := services.JobKindFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldJobKind, kind))
	}
	if id, ok := services.UploadIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldUploadID, id))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
