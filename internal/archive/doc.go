// Package archive packages export folders, loose files, and a rendered README
// manifest into a single zip.
//
// Missing inputs are skipped rather than treated as errors, since a collaborator
// may legitimately omit the dense point cloud or the video. Entries are written
// in sorted order and the archive is renamed into place only when complete.
// Every failure is tagged with services.ErrArchive.
package archive
