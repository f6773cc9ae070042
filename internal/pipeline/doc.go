// Package pipeline turns convert and export requests into jobs.
//
// For each request the Manager resolves the stored upload, registers a job,
// launches the Python collaborator through a procrun.Starter, and attaches a
// continuation that streams output lines through the configured progress
// parser into the job registry. A non-zero exit marks the job errored with the
// collaborator's last error line; a zero exit runs the job's finisher (viewer
// check for convert, zip packaging for export) before marking it complete.
//
// Failures are recorded on the job and never retried.
package pipeline
