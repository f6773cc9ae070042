package preflight

import (
	"context"
	"fmt"

	"trackbridge/internal/config"
	"trackbridge/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the startup checks for the given config: the data and log
// directories must be usable and every required dependency must be present.
// Optional dependencies never fail a run.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{CheckDirectoryAccess("Data directory", cfg.Paths.DataDir)}
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	for _, status := range CheckSystemDeps(ctx, cfg) {
		results = append(results, fromDependency(status))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}

func fromDependency(status deps.Status) Result {
	result := Result{Name: status.Name, Passed: status.Available || status.Optional}
	switch {
	case status.Available:
		result.Detail = status.Command
	case status.Optional:
		result.Detail = fmt.Sprintf("%s (optional)", status.Detail)
	default:
		result.Detail = status.Detail
	}
	return result
}
