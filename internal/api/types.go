package api

import (
	"time"

	"trackbridge/internal/jobs"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a job in a transport-friendly format.
type Job struct {
	ID           string         `json:"id"`
	Kind         string         `json:"kind"`
	UploadID     string         `json:"uploadId"`
	Status       string         `json:"status"`
	Progress     int            `json:"progress"`
	Message      string         `json:"message"`
	Export       *ExportOptions `json:"export,omitempty"`
	ViewerReady  bool           `json:"viewerReady,omitempty"`
	Downloadable bool           `json:"downloadable,omitempty"`
	CreatedAt    string         `json:"createdAt,omitempty"`
	UpdatedAt    string         `json:"updatedAt,omitempty"`
	CompletedAt  string         `json:"completedAt,omitempty"`
}

// ExportOptions echoes the parameters an export job runs with.
type ExportOptions struct {
	FPS         int     `json:"fps"`
	Scale       float64 `json:"scale"`
	ColorSource string  `json:"colorSource"`
}

// IsTerminal reports whether the job reached complete or error.
func (j Job) IsTerminal() bool {
	return jobs.Status(j.Status).IsTerminal()
}

// FromJob converts a registry snapshot to its wire form.
func FromJob(job jobs.Job) Job {
	out := Job{
		ID:          job.ID,
		Kind:        string(job.Kind),
		UploadID:    job.UploadID,
		Status:      string(job.Status),
		Progress:    job.Progress,
		Message:     job.Message,
		CreatedAt:   formatTime(job.CreatedAt),
		UpdatedAt:   formatTime(job.UpdatedAt),
		CompletedAt: formatTime(job.CompletedAt),
	}
	if job.Export != nil {
		out.Export = &ExportOptions{
			FPS:         job.Export.FPS,
			Scale:       job.Export.Scale,
			ColorSource: string(job.Export.ColorSource),
		}
	}
	if job.Status == jobs.StatusComplete {
		_, out.ViewerReady = job.Output(jobs.OutputViewer)
		_, out.Downloadable = job.Output(jobs.OutputArchive)
	}
	return out
}

// FromJobs converts a slice of snapshots, preserving order.
func FromJobs(list []jobs.Job) []Job {
	out := make([]Job, 0, len(list))
	for _, job := range list {
		out = append(out, FromJob(job))
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// UploadResponse acknowledges a stored upload.
type UploadResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// JobAcceptedResponse is returned when a job was created.
type JobAcceptedResponse struct {
	JobID string `json:"jobId"`
}

// ConvertRequest carries optional viewer dimensions.
type ConvertRequest struct {
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// ExportRequest carries export parameters. Nil fields take daemon defaults.
type ExportRequest struct {
	FPS         *int     `json:"fps,omitempty"`
	Scale       *float64 `json:"scale,omitempty"`
	ColorSource *string  `json:"colorSource,omitempty"`
}

// JobListResponse wraps a collection of jobs, newest first.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// StorageStatus summarizes the upload store.
type StorageStatus struct {
	DataDir string `json:"dataDir"`
	Uploads int    `json:"uploads"`
	Bytes   int64  `json:"bytes"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	LockFilePath string             `json:"lockFilePath"`
	StartedAt    string             `json:"startedAt,omitempty"`
	JobCounts    map[string]int     `json:"jobCounts"`
	Storage      StorageStatus      `json:"storage"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}
