// Package textutil sanitizes user-supplied names before they reach the
// filesystem or a Content-Disposition header.
package textutil
