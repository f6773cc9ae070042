package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"trackbridge/internal/api"
	"trackbridge/internal/jobs"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// dependencyLines renders one line per dependency followed by a summary of
// required dependencies that are missing.
func dependencyLines(deps []api.DependencyStatus, colorize bool) []string {
	lines := make([]string, 0, len(deps)+1)
	var missing []string
	for _, dep := range deps {
		if dep.Available {
			message := "Ready"
			if dep.Detail != "" {
				message = fmt.Sprintf("Ready (%s)", dep.Detail)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
			detail += " (optional)"
		} else {
			missing = append(missing, dep.Name)
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing", statusError, strings.Join(missing, ", "), colorize))
	}
	return lines
}

// jobStatusKind maps a job status onto a display severity.
func jobStatusKind(status string) statusKind {
	switch jobs.Status(status) {
	case jobs.StatusComplete:
		return statusOK
	case jobs.StatusError:
		return statusError
	case jobs.StatusProcessing:
		return statusInfo
	default:
		return statusWarn
	}
}

// displayLabel turns wire identifiers like "depth-heatmap" into "Depth Heatmap".
func displayLabel(value string) string {
	value = strings.TrimSpace(strings.NewReplacer("-", " ", "_", " ").Replace(value))
	if value == "" {
		return "-"
	}
	return cases.Title(language.Und).String(value)
}
