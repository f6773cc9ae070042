// Package logs reads the daemon log file for the CLI: the last N lines, lines
// appended since a byte offset, and a polling follow mode. Offsets only ever
// advance past complete lines so a line still being written is returned whole
// on a later read. A file that shrinks below the offset is treated as rotated
// and re-read from the start.
package logs
