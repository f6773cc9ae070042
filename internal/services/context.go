package services

import "context"

type contextKey string

const (
	jobIDKey     contextKey = "job_id"
	uploadIDKey  contextKey = "upload_id"
	jobKindKey   contextKey = "job_kind"
	requestIDKey contextKey = "request_id"
)

// WithJobID annotates context with the job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, jobIDKey)
}

// WithUploadID annotates context with the upload the work operates on.
func WithUploadID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, uploadIDKey, id)
}

// UploadIDFromContext returns the upload identifier if present.
func UploadIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, uploadIDKey)
}

// WithJobKind annotates context with the job kind (convert/export).
func WithJobKind(ctx context.Context, kind string) context.Context {
	if kind == "" {
		return ctx
	}
	return context.WithValue(ctx, jobKindKey, kind)
}

// JobKindFromContext returns the job kind if present.
func JobKindFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, jobKindKey)
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
