// Package progress interprets collaborator output lines as job progress.
//
// The Parser interface keeps the line protocol swappable: PercentParser reads
// the "Progress: N%" markers the Python tools print today, JSONParser reads a
// structured line-delimited protocol. Both degrade to message-only updates for
// lines they do not recognize.
package progress
