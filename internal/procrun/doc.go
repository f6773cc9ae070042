// Package procrun launches external collaborator processes and streams their
// output line by line.
//
// Start returns a Handle as soon as the process is running. Lines from stdout
// and stderr arrive on one channel, ordered within each stream; Wait yields the
// exit code, a bounded stderr tail, and the elapsed time. The caller's context
// is the only way to stop a process early.
package procrun
