package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInputMissing  = errors.New("input missing")
	ErrUploadInvalid = errors.New("invalid upload")
	ErrInvalidParams = errors.New("invalid parameters")
	ErrSubprocess    = errors.New("subprocess failed")
	ErrArchive       = errors.New("archive failed")
	ErrNotReady      = errors.New("not ready")
	ErrConfiguration = errors.New("configuration error")
	ErrTimeout       = errors.New("timeout")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker so callers can classify it with errors.Is. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrSubprocess
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsClientError reports whether err was caused by the caller's input rather
// than by the daemon or one of its collaborators.
func IsClientError(err error) bool {
	for _, marker := range []error{ErrUploadInvalid, ErrInvalidParams, ErrInputMissing, ErrNotReady} {
		if errors.Is(err, marker) {
			return true
		}
	}
	return false
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
