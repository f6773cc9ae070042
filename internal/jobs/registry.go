package jobs

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = errors.New("job not found")
	// ErrTerminal is returned when updating a job that already finished.
	ErrTerminal = errors.New("job already finished")
)

// Patch describes a partial job update. Nil fields are left untouched.
type Patch struct {
	Progress *int
	Message  *string
	Status   *Status
	Outputs  map[string]string
}

// Registry holds every job known to the daemon. It is the only shared mutable
// structure between request handlers and job goroutines.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	now   func() time.Time
	newID func() string
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator overrides job id generation.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		jobs:  make(map[string]*Job),
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new processing job at 0% and returns its snapshot.
func (r *Registry) Create(kind Kind, uploadID string, params *ExportParams) (Job, error) {
	if kind != KindConvert && kind != KindExport {
		return Job{}, fmt.Errorf("create job: unsupported kind %q", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	if _, exists := r.jobs[id]; exists || strings.TrimSpace(id) == "" {
		return Job{}, fmt.Errorf("create job: id collision for %q", id)
	}
	now := r.now().UTC()
	job := &Job{
		ID:        id,
		Kind:      kind,
		UploadID:  uploadID,
		Status:    StatusProcessing,
		Message:   "Starting...",
		Outputs:   map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if params != nil {
		copied := *params
		job.Export = &copied
	}
	r.jobs[id] = job
	return job.clone(), nil
}

// Get returns a snapshot of the job or ErrNotFound.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job.clone(), nil
}

// List returns snapshots of every job, newest first.
func (r *Registry) List() []Job {
	r.mu.RLock()
	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Update applies a patch. Progress is clamped to [0,100] and never decreases.
// Updates to terminal jobs are rejected with ErrTerminal and change nothing.
func (r *Registry) Update(id string, patch Patch) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if job.Status.IsTerminal() {
		return job.clone(), fmt.Errorf("%w: %s is %s", ErrTerminal, id, job.Status)
	}

	if patch.Progress != nil {
		value := clampPercent(*patch.Progress)
		if value > job.Progress {
			job.Progress = value
		}
	}
	if patch.Message != nil {
		job.Message = *patch.Message
	}
	if len(patch.Outputs) > 0 {
		maps.Copy(job.Outputs, patch.Outputs)
	}
	now := r.now().UTC()
	if patch.Status != nil && *patch.Status != job.Status {
		switch *patch.Status {
		case StatusComplete:
			job.Progress = 100
			job.CompletedAt = now
		case StatusError:
			job.CompletedAt = now
		}
		job.Status = *patch.Status
	}
	job.UpdatedAt = now
	return job.clone(), nil
}

// Complete marks a job finished with its outputs.
func (r *Registry) Complete(id string, outputs map[string]string, message string) (Job, error) {
	status := StatusComplete
	if strings.TrimSpace(message) == "" {
		message = "Complete"
	}
	return r.Update(id, Patch{Status: &status, Outputs: outputs, Message: &message})
}

// Fail marks a job errored with a human-readable message.
func (r *Registry) Fail(id, message string) (Job, error) {
	status := StatusError
	if strings.TrimSpace(message) == "" {
		message = "job failed"
	}
	return r.Update(id, Patch{Status: &status, Message: &message})
}

// Counts summarizes jobs by status.
func (r *Registry) Counts() map[Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[Status]int, 3)
	for _, job := range r.jobs {
		counts[job.Status]++
	}
	return counts
}

func clampPercent(value int) int {
	switch {
	case value < 0:
		return 0
	case value > 100:
		return 100
	default:
		return value
	}
}
