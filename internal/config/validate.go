package config

import (
	"errors"
	"fmt"
	"net"

	"trackbridge/internal/jobs"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateConverter(); err != nil {
		return err
	}
	if err := c.validateExport(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q must be host:port: %w", c.Paths.APIBind, err)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.MaxUploadMB <= 0 {
		return errors.New("server.max_upload_mb must be positive")
	}
	if c.Server.ReadTimeoutSeconds < 0 || c.Server.WriteTimeoutSeconds < 0 {
		return errors.New("server timeouts must not be negative")
	}
	return nil
}

func (c *Config) validateConverter() error {
	if c.Converter.ConvertScript == "" {
		return errors.New("converter.convert_script must be set")
	}
	if c.Converter.ExportScript == "" {
		return errors.New("converter.export_script must be set")
	}
	if c.Converter.ViewerWidth <= 0 || c.Converter.ViewerHeight <= 0 {
		return errors.New("converter.viewer_width and converter.viewer_height must be positive")
	}
	if c.Converter.TimeoutSeconds < 0 {
		return errors.New("converter.timeout_seconds must be 0 (unbounded) or positive")
	}
	switch c.Converter.ProgressFormat {
	case "percent", "json":
	default:
		return fmt.Errorf("converter.progress_format must be percent or json, got %q", c.Converter.ProgressFormat)
	}
	return nil
}

func (c *Config) validateExport() error {
	color, err := jobs.ParseColorSource(c.Export.DefaultColorSource)
	if err != nil {
		return fmt.Errorf("export.default_color_source: %w", err)
	}
	params := jobs.ExportParams{FPS: c.Export.DefaultFPS, Scale: c.Export.DefaultScale, ColorSource: color}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("export defaults: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}
