package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"trackbridge/internal/config"
	"trackbridge/internal/preflight"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigValidateCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			var err error
			if target == "" {
				target, err = config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
			} else {
				target, err = config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Point converter.convert_script and converter.export_script at the SpaTracker2 tools before starting the daemon.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			data, err := cfg.Encode()
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n", ctx.configPath)
			_, err = out.Write(data)
			return err
		},
	}
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and run startup checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			if _, err := os.Stat(ctx.configPath); errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}

			results := preflight.RunAll(cmd.Context(), cfg)
			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight checks failed", len(failed))
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}
