// Package filestore persists uploaded inputs and names the locations where
// collaborators write their outputs.
//
// Layout under the data directory:
//
//	uploads/<id><ext>      the uploaded file
//	uploads/<id>.json      sidecar metadata (original name, size, sha256)
//	processed/<jobID>/     convert job output (viewer document)
//	exports/<jobID>/       export job output folder
//	exports/<jobID>.zip    packaged export archive
//
// Identifiers are random UUIDs and are validated before any filesystem
// access, so callers can pass request path values straight through.
package filestore
