package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"trackbridge/internal/logging"
	"trackbridge/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, logging.DaemonLogName)
			out := cmd.OutOrStdout()

			result, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			for _, line := range result.Lines {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, result.Offset, 500*time.Millisecond, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	return cmd
}
