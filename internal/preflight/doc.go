// Package preflight provides readiness checks for the filesystem paths and
// external collaborators trackbridge depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failed check so a
//     missing interpreter or script is visible before the first job fails.
//   - The status endpoint and the CLI "deps" command use CheckSystemDeps to
//     display dependency health.
package preflight
