// Package jobs owns the in-memory job registry shared by the HTTP handlers and
// the goroutines that drive external collaborators.
//
// A job starts in processing at 0%, receives monotonic progress and message
// updates, and ends in exactly one terminal state (complete or error). Terminal
// jobs reject further updates. Readers always receive copies, never pointers
// into registry-owned state. Nothing is persisted; a daemon restart forgets
// every job.
package jobs
