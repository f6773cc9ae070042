// Package main hosts the trackbridge CLI.
//
// The Cobra command tree covers daemon lifecycle (serve, start, stop, status),
// the upload/convert/export workflow against a running daemon's HTTP API, and
// local utilities that need no daemon: dependency checks and configuration
// scaffolding. Configuration is resolved once per invocation through
// commandContext; commands that must work without a valid config carry the
// skipConfigLoad annotation.
package main
