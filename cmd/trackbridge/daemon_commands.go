package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"trackbridge/internal/api"
	"trackbridge/internal/daemonctl"
	"trackbridge/internal/daemonrun"
)

const (
	startWaitTimeout = 10 * time.Second
	stopGracePeriod  = 10 * time.Second
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var development bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the trackbridge daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.logLevel(),
				Development: development,
			})
		},
	}
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")
	return cmd
}

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the trackbridge daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), client, exe, daemonLaunchOptions(ctx), startWaitTimeout)
			if err != nil {
				return err
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the trackbridge daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			result, err := daemonctl.StopAndTerminate(cmd.Context(), client, ctx.configValue(), stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and job status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				if !api.IsAPIUnavailable(err) {
					return err
				}
				status = api.DaemonStatus{Running: false, JobCounts: map[string]int{}}
			}
			return emit(cmd, statusJSON, status, func(out io.Writer) {
				fmt.Fprint(out, renderDaemonStatus(status, ctx.configValue().Paths.APIBind, shouldColorize(out)))
			})
		},
	}
	addJSONFlag(statusCmd, &statusJSON)

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

// renderDaemonStatus formats a status snapshot in sections. A zero status is
// rendered as a stopped daemon.
func renderDaemonStatus(status api.DaemonStatus, bind string, colorize bool) string {
	var lines []string
	lines = append(lines, renderSectionHeader("Daemon", colorize)...)
	if !status.Running {
		lines = append(lines, renderStatusLine("trackbridge", statusError, "Not running", colorize))
		lines = append(lines, renderStatusLine("API", statusInfo, bind, colorize))
		return joinLines(lines)
	}
	lines = append(lines, renderStatusLine("trackbridge", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
	lines = append(lines, renderStatusLine("API", statusInfo, bind, colorize))
	if status.StartedAt != "" {
		lines = append(lines, renderStatusLine("Started", statusInfo, status.StartedAt, colorize))
	}
	lines = append(lines, renderStatusLine("Data", statusInfo,
		fmt.Sprintf("%s (%d uploads, %s)", status.Storage.DataDir, status.Storage.Uploads, formatBytes(status.Storage.Bytes)), colorize))
	lines = append(lines, "")

	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	lines = append(lines, dependencyLines(status.Dependencies, colorize)...)
	lines = append(lines, "")

	lines = append(lines, renderSectionHeader("Jobs", colorize)...)
	rows := jobCountRows(status.JobCounts)
	if len(rows) == 0 {
		lines = append(lines, "No jobs")
		return joinLines(lines)
	}
	return joinLines(lines) + renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
}

func jobCountRows(counts map[string]int) [][]string {
	keys := make([]string, 0, len(counts))
	for key, n := range counts {
		if n > 0 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{displayLabel(key), strconv.Itoa(counts[key])})
	}
	return rows
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n") + "\n"
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{
		ConfigPath: ctx.configFlagValue(),
		LogLevel:   ctx.logLevel(),
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = ctx.configPath
	}
	return opts
}
