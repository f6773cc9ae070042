package jobs

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// Kind identifies what a job produces.
type Kind string

const (
	KindConvert Kind = "convert"
	KindExport  Kind = "export"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

// ColorSource selects how exported points are colored.
type ColorSource string

const (
	ColorVideo ColorSource = "video"
	ColorDepth ColorSource = "depth-heatmap"
	ColorWhite ColorSource = "white"
)

// ParseColorSource accepts the API names plus the short "depth" alias.
func ParseColorSource(value string) (ColorSource, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "video":
		return ColorVideo, nil
	case "depth", "depth-heatmap", "depth_heatmap":
		return ColorDepth, nil
	case "white":
		return ColorWhite, nil
	default:
		return "", fmt.Errorf("unsupported color source %q (want video, depth-heatmap or white)", value)
	}
}

// ScriptValue returns the token the export collaborator expects for --color.
func (c ColorSource) ScriptValue() string {
	if c == ColorDepth {
		return "depth"
	}
	return string(c)
}

// ExportParams captures the user-selected export settings.
type ExportParams struct {
	FPS         int         `json:"fps"`
	Scale       float64     `json:"scale"`
	ColorSource ColorSource `json:"colorSource"`
}

// Validate checks the ranges the export collaborator accepts.
func (p ExportParams) Validate() error {
	if p.FPS < 1 || p.FPS > 240 {
		return fmt.Errorf("fps must be between 1 and 240, got %d", p.FPS)
	}
	if p.Scale <= 0 || p.Scale > 1000 {
		return fmt.Errorf("scale must be greater than 0 and at most 1000, got %g", p.Scale)
	}
	if _, err := ParseColorSource(string(p.ColorSource)); err != nil {
		return err
	}
	return nil
}

// Job is a snapshot of a unit of asynchronous work.
type Job struct {
	ID          string
	Kind        Kind
	UploadID    string
	Status      Status
	Progress    int
	Message     string
	Outputs     map[string]string
	Export      *ExportParams
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time
}

// Output returns the named output path, if recorded.
func (j Job) Output(name string) (string, bool) {
	path, ok := j.Outputs[name]
	return path, ok && path != ""
}

func (j *Job) clone() Job {
	out := *j
	out.Outputs = maps.Clone(j.Outputs)
	if j.Export != nil {
		params := *j.Export
		out.Export = &params
	}
	return out
}

// Well-known output names recorded on completed jobs.
const (
	OutputViewer    = "viewer"
	OutputArchive   = "archive"
	OutputDirectory = "directory"
)
