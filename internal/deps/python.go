package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const versionProbeTimeout = 5 * time.Second

// CheckInterpreter verifies the Python interpreter resolves and runs. On
// success Detail carries the reported version.
func CheckInterpreter(ctx context.Context, python string) Status {
	status := Status{
		Name:        "Python",
		Command:     strings.TrimSpace(python),
		Description: "Runs the SpaTracker2 viewer and export scripts",
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	resolved, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}

	probeCtx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()
	out, err := exec.CommandContext(probeCtx, resolved, "--version").CombinedOutput()
	if err != nil {
		status.Detail = fmt.Sprintf("%s --version failed: %v", status.Command, err)
		return status
	}
	status.Available = true
	status.Detail = strings.TrimSpace(string(out))
	return status
}
