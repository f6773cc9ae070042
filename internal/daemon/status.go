package daemon

import (
	"context"
	"time"

	"trackbridge/internal/api"
)

// apiStatus renders Status for the /api/status endpoint.
func (d *Daemon) apiStatus(ctx context.Context) api.DaemonStatus {
	status := d.Status(ctx)
	counts := make(map[string]int, len(status.JobCounts))
	for state, n := range status.JobCounts {
		counts[string(state)] = n
	}
	deps := make([]api.DependencyStatus, len(status.Dependencies))
	for i, dep := range status.Dependencies {
		deps[i] = api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		LockFilePath: status.LockFilePath,
		JobCounts:    counts,
		Storage: api.StorageStatus{
			DataDir: status.DataDir,
			Uploads: status.Storage.Uploads,
			Bytes:   status.Storage.Bytes,
		},
		Dependencies: deps,
	}
	if !status.StartedAt.IsZero() {
		payload.StartedAt = status.StartedAt.UTC().Format(time.RFC3339)
	}
	return payload
}
