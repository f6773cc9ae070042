package config

import (
	"fmt"
	"os"
	"strings"

	"trackbridge/internal/jobs"
)

// Environment fallbacks consulted when the config file leaves a value empty.
const (
	EnvAPIToken = "TRACKBRIDGE_API_TOKEN"
	EnvPython   = "TRACKBRIDGE_PYTHON"
)

// EnvConfigPath names the config file used by the standalone daemon binary.
const EnvConfigPath = "TRACKBRIDGE_CONFIG"

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	if err := c.normalizeConverter(); err != nil {
		return err
	}
	if err := c.normalizeExport(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv(EnvAPIToken); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeServer() {
	origins := make([]string, 0, len(c.Server.AllowedOrigins))
	for _, origin := range c.Server.AllowedOrigins {
		if trimmed := strings.TrimRight(strings.TrimSpace(origin), "/"); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.Server.AllowedOrigins = origins
}

func (c *Config) normalizeConverter() error {
	c.Converter.Python = strings.TrimSpace(c.Converter.Python)
	if value, ok := os.LookupEnv(EnvPython); ok && strings.TrimSpace(value) != "" {
		c.Converter.Python = strings.TrimSpace(value)
	}
	if c.Converter.Python == "" {
		c.Converter.Python = defaultPython
	}
	var err error
	if c.Converter.ConvertScript, err = expandPath(strings.TrimSpace(c.Converter.ConvertScript)); err != nil {
		return fmt.Errorf("converter.convert_script: %w", err)
	}
	if c.Converter.ExportScript, err = expandPath(strings.TrimSpace(c.Converter.ExportScript)); err != nil {
		return fmt.Errorf("converter.export_script: %w", err)
	}
	c.Converter.ProgressFormat = strings.ToLower(strings.TrimSpace(c.Converter.ProgressFormat))
	if c.Converter.ProgressFormat == "" {
		c.Converter.ProgressFormat = defaultProgressFormat
	}
	return nil
}

func (c *Config) normalizeExport() error {
	c.Export.DefaultColorSource = strings.TrimSpace(c.Export.DefaultColorSource)
	if c.Export.DefaultColorSource == "" {
		c.Export.DefaultColorSource = defaultColorSource
	}
	if color, err := jobs.ParseColorSource(c.Export.DefaultColorSource); err == nil {
		c.Export.DefaultColorSource = string(color)
	}
	scripts := make([]string, 0, len(c.Export.ImporterScripts))
	for _, script := range c.Export.ImporterScripts {
		script = strings.TrimSpace(script)
		if script == "" {
			continue
		}
		expanded, err := expandPath(script)
		if err != nil {
			return fmt.Errorf("export.importer_scripts: %w", err)
		}
		scripts = append(scripts, expanded)
	}
	c.Export.ImporterScripts = scripts
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
