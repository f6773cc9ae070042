// Package daemon coordinates the long-running trackbridge process.
//
// It wires configuration, the file store, the job registry, and the pipeline
// manager into a single lifecycle with flock-based locking to prevent multiple
// instances, and serves the HTTP API: upload, convert, export, job polling,
// artifact download, and status.
//
// Keep orchestration logic here: job execution lives in the pipeline package
// while the daemon focuses on startup, shutdown, and request handling.
package daemon
