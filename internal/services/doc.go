// Package services defines shared utilities consumed by the job pipeline and
// the HTTP layer.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, upload IDs, job kinds, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified with errors.Is (client mistake vs collaborator failure)
//     without string matching.
//
// Use these helpers when wiring new job kinds so operational behaviour (error
// handling, observability) stays uniform across the daemon.
package services
