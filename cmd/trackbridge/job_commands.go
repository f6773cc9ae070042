package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"trackbridge/internal/api"
	"trackbridge/internal/fileutil"
	"trackbridge/internal/jobs"
)

const defaultPollInterval = time.Second

func newJobCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newUploadCommand(ctx),
		newConvertCommand(ctx),
		newExportCommand(ctx),
		newJobsCommand(ctx),
		newJobCommand(ctx),
		newWaitCommand(ctx),
		newDownloadCommand(ctx),
		newViewerCommand(ctx),
	}
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "upload <file.npz>",
		Short: "Upload a SpaTracker2 NPZ result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Upload(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return emit(cmd, asJSON, resp, func(out io.Writer) {
					fmt.Fprintf(out, "Uploaded %s (%s)\n", resp.Filename, formatBytes(resp.Size))
					fmt.Fprintf(out, "Upload ID: %s\n", resp.ID)
				})
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var width, height int
	var wait bool
	cmd := &cobra.Command{
		Use:   "convert <uploadId>",
		Short: "Build an interactive 3D viewer for an upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Convert(cmd.Context(), args[0], api.ConvertRequest{Width: width, Height: height})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Convert job queued: %s\n", resp.JobID)
				if !wait {
					return nil
				}
				return waitAndReport(cmd, client, resp.JobID, defaultPollInterval)
			})
		},
	}
	cmd.Flags().IntVar(&width, "width", 0, "Viewer width in pixels (default from config)")
	cmd.Flags().IntVar(&height, "height", 0, "Viewer height in pixels (default from config)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the job to finish")
	return cmd
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var fps int
	var scale float64
	var color string
	var wait bool
	cmd := &cobra.Command{
		Use:   "export <uploadId>",
		Short: "Export an upload as Blender-ready point clouds and cameras",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req api.ExportRequest
			if cmd.Flags().Changed("fps") {
				req.FPS = &fps
			}
			if cmd.Flags().Changed("scale") {
				req.Scale = &scale
			}
			if cmd.Flags().Changed("color") {
				req.ColorSource = &color
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Export(cmd.Context(), args[0], req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Export job queued: %s\n", resp.JobID)
				if !wait {
					return nil
				}
				return waitAndReport(cmd, client, resp.JobID, defaultPollInterval)
			})
		},
	}
	cmd.Flags().IntVar(&fps, "fps", 0, "Frame rate written to the manifest (1-120)")
	cmd.Flags().Float64Var(&scale, "scale", 0, "Scene scale factor (0.01-100)")
	cmd.Flags().StringVar(&color, "color", "", "Point color source: video, depth-heatmap, or white")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the job to finish")
	return cmd
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				list, err := client.Jobs(cmd.Context())
				if err != nil {
					return err
				}
				return emit(cmd, asJSON, list, func(out io.Writer) {
					if len(list) == 0 {
						fmt.Fprintln(out, "No jobs")
						return
					}
					fmt.Fprint(out, renderJobTable(list))
				})
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newJobCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "job <jobId>",
		Short: "Show a single job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.Job(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return emit(cmd, asJSON, job, func(out io.Writer) {
					fmt.Fprint(out, renderJobDetail(job, shouldColorize(out)))
				})
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newWaitCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "wait <jobId>",
		Short: "Wait for a job to complete or fail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if timeout > 0 {
				waitCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				cmd.SetContext(waitCtx)
			}
			return ctx.withClient(func(client *api.Client) error {
				return waitAndReport(cmd, client, args[0], interval)
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", defaultPollInterval, "Polling interval")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this long (0 waits forever)")
	return cmd
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download <jobId>",
		Short: "Download the ZIP archive of a finished export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]
			target := strings.TrimSpace(output)
			if target == "" {
				target = jobID + "_blender_export.zip"
			}
			return ctx.withClient(func(client *api.Client) error {
				return saveArtifact(cmd, target, func(w io.Writer) (int64, error) {
					return client.Download(cmd.Context(), jobID, w)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (\"-\" for stdout)")
	return cmd
}

func newViewerCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "viewer <jobId>",
		Short: "Fetch the viewer HTML of a finished convert job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]
			target := strings.TrimSpace(output)
			if target == "" {
				target = jobID + "_viewer.html"
			}
			return ctx.withClient(func(client *api.Client) error {
				return saveArtifact(cmd, target, func(w io.Writer) (int64, error) {
					return client.Viewer(cmd.Context(), jobID, w)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (\"-\" for stdout)")
	return cmd
}

// saveArtifact streams fetch into target atomically, or to stdout when target
// is "-". A failed fetch leaves no partial file behind.
func saveArtifact(cmd *cobra.Command, target string, fetch func(io.Writer) (int64, error)) error {
	if target == "-" {
		_, err := fetch(cmd.OutOrStdout())
		return err
	}
	pr, pw := io.Pipe()
	go func() {
		_, err := fetch(pw)
		pw.CloseWithError(err)
	}()
	result, err := fileutil.WriteStreamAtomic(target, pr, 0o644)
	_ = pr.Close()
	if err != nil {
		return unwrapFetchError(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s, sha256 %s)\n", target, formatBytes(result.Size), result.SHA256[:12])
	return nil
}

// unwrapFetchError surfaces the API error carried through the pipe instead of
// the file write wrapper around it.
func unwrapFetchError(err error) error {
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		return statusErr
	}
	return err
}

// waitAndReport polls jobID until it reaches a terminal state, printing
// progress changes. A failed job is returned as an error.
func waitAndReport(cmd *cobra.Command, client *api.Client, jobID string, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	out := cmd.OutOrStdout()
	lastProgress, lastMessage := -1, ""
	for {
		job, err := client.Job(cmd.Context(), jobID)
		if err != nil {
			return err
		}
		if job.Progress != lastProgress || job.Message != lastMessage {
			fmt.Fprintf(out, "[%3d%%] %s\n", job.Progress, job.Message)
			lastProgress, lastMessage = job.Progress, job.Message
		}
		if job.IsTerminal() {
			if job.Status == string(jobs.StatusError) {
				return fmt.Errorf("job %s failed: %s", job.ID, job.Message)
			}
			fmt.Fprintf(out, "Job %s complete\n", job.ID)
			return nil
		}
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-time.After(interval):
		}
	}
}

func renderJobTable(list []api.Job) string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		rows = append(rows, []string{
			job.ID,
			displayLabel(job.Kind),
			job.UploadID,
			displayLabel(job.Status),
			strconv.Itoa(job.Progress) + "%",
			job.Message,
			job.CreatedAt,
		})
	}
	return renderTable(
		[]string{"ID", "Kind", "Upload", "Status", "Progress", "Message", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func renderJobDetail(job api.Job, colorize bool) string {
	lines := renderSectionHeader("Job "+job.ID, colorize)
	lines = append(lines,
		renderStatusLine("Status", jobStatusKind(job.Status), fmt.Sprintf("%s (%d%%)", displayLabel(job.Status), job.Progress), colorize),
		renderStatusLine("Kind", statusInfo, displayLabel(job.Kind), colorize),
		renderStatusLine("Upload", statusInfo, job.UploadID, colorize),
	)
	if job.Message != "" {
		lines = append(lines, renderStatusLine("Message", jobStatusKind(job.Status), job.Message, colorize))
	}
	if job.Export != nil {
		lines = append(lines, renderStatusLine("Export", statusInfo,
			fmt.Sprintf("%d fps, scale %g, color %s", job.Export.FPS, job.Export.Scale, displayLabel(job.Export.ColorSource)), colorize))
	}
	if job.Kind == string(jobs.KindConvert) {
		lines = append(lines, renderStatusLine("Viewer ready", statusInfo, yesNo(job.ViewerReady), colorize))
	}
	if job.Kind == string(jobs.KindExport) {
		lines = append(lines, renderStatusLine("Downloadable", statusInfo, yesNo(job.Downloadable), colorize))
	}
	if job.CreatedAt != "" {
		lines = append(lines, renderStatusLine("Created", statusInfo, job.CreatedAt, colorize))
	}
	if job.CompletedAt != "" {
		lines = append(lines, renderStatusLine("Completed", statusInfo, job.CompletedAt, colorize))
	}
	return joinLines(lines)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
