// Package api defines wire-format types for the trackbridge HTTP API and a
// small client the CLI uses to talk to a running daemon.
//
// # Key Types
//
// Job: transport representation of a convert or export job with status,
// progress, message, and (for exports) the chosen parameters.
//
// UploadResponse / JobAcceptedResponse: responses to upload and job submission.
//
// DaemonStatus: running state, job counts, storage usage, and dependency
// readiness.
//
// # Converters
//
// FromJob: jobs.Job -> Job. Output paths are reduced to presence flags so the
// daemon's filesystem layout is not exposed to clients.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for browser consumers. Enums are exposed as
// lowercase strings. Timestamps use RFC3339 with milliseconds.
package api
