package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Requirement defines an external dependency trackbridge relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := newStatus(req, cmd)
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// CheckFiles reports whether each requirement's Command names a readable
// regular file. Collaborator scripts are checked this way since they are run
// through the interpreter rather than resolved from PATH.
func CheckFiles(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		path := strings.TrimSpace(req.Command)
		status := newStatus(req, path)
		switch info, err := os.Stat(path); {
		case path == "":
			status.Detail = "path not configured"
		case err != nil && os.IsNotExist(err):
			status.Detail = fmt.Sprintf("file %q not found", path)
		case err != nil:
			status.Detail = fmt.Sprintf("stat %q: %v", path, err)
		case info.IsDir():
			status.Detail = fmt.Sprintf("%q is a directory", path)
		default:
			if f, openErr := os.Open(path); openErr != nil {
				status.Detail = fmt.Sprintf("file %q not readable", path)
			} else {
				_ = f.Close()
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}

func newStatus(req Requirement, command string) Status {
	return Status{
		Name:        req.Name,
		Command:     command,
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
}
