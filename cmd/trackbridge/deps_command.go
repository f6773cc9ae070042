package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"trackbridge/internal/api"
	"trackbridge/internal/deps"
	"trackbridge/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check the Python interpreter and collaborator scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := toAPIDependencies(preflight.CheckSystemDeps(cmd.Context(), cfg))
			if err := emit(cmd, asJSON, statuses, func(out io.Writer) {
				fmt.Fprint(out, renderDependencyTable(statuses))
			}); err != nil {
				return err
			}
			if missing := missingRequired(statuses); missing > 0 {
				return fmt.Errorf("%d required dependencies unavailable", missing)
			}
			return nil
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func toAPIDependencies(statuses []deps.Status) []api.DependencyStatus {
	out := make([]api.DependencyStatus, len(statuses))
	for i, s := range statuses {
		out[i] = api.DependencyStatus{
			Name:        s.Name,
			Command:     s.Command,
			Description: s.Description,
			Optional:    s.Optional,
			Available:   s.Available,
			Detail:      s.Detail,
		}
	}
	return out
}

func renderDependencyTable(statuses []api.DependencyStatus) string {
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, []string{s.Name, s.Command, yesNo(!s.Optional), yesNo(s.Available), s.Detail})
	}
	return renderTable([]string{"Dependency", "Path", "Required", "Available", "Detail"}, rows, nil)
}

func missingRequired(statuses []api.DependencyStatus) int {
	n := 0
	for _, s := range statuses {
		if !s.Optional && !s.Available {
			n++
		}
	}
	return n
}
