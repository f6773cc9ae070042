package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Server contains HTTP listener settings.
type Server struct {
	AllowedOrigins      []string `toml:"allowed_origins"`
	MaxUploadMB         int      `toml:"max_upload_mb"`
	ReadTimeoutSeconds  int      `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `toml:"write_timeout_seconds"`
}

// Converter describes how the external collaborators are invoked.
type Converter struct {
	Python         string `toml:"python"`
	ConvertScript  string `toml:"convert_script"`
	ExportScript   string `toml:"export_script"`
	ViewerWidth    int    `toml:"viewer_width"`
	ViewerHeight   int    `toml:"viewer_height"`
	TimeoutSeconds int    `toml:"timeout_seconds"` // 0 = unbounded
	ProgressFormat string `toml:"progress_format"`
}

// Export contains defaults applied when an export request omits a field, and
// the importer scripts bundled into every archive.
type Export struct {
	DefaultFPS         int      `toml:"default_fps"`
	DefaultScale       float64  `toml:"default_scale"`
	DefaultColorSource string   `toml:"default_color_source"`
	ImporterScripts    []string `toml:"importer_scripts"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for trackbridge.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories, API bind address and token
//   - Server: CORS origins, upload limit, HTTP timeouts
//   - Converter: python interpreter, collaborator scripts, viewer size, job timeout
//   - Export: export defaults and bundled importer scripts
//   - Logging: log format, level, and retention
type Config struct {
	Paths     Paths     `toml:"paths"`
	Server    Server    `toml:"server"`
	Converter Converter `toml:"converter"`
	Export    Export    `toml:"export"`
	Logging   Logging   `toml:"logging"`
}

const (
	defaultConfigPath = "~/.config/trackbridge/config.toml"
	projectConfigName = "trackbridge.toml"
)

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JobTimeout returns the per-job collaborator deadline, or zero when unbounded.
func (c *Config) JobTimeout() time.Duration {
	if c.Converter.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Converter.TimeoutSeconds) * time.Second
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

// ReadTimeout returns the HTTP server read timeout.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the HTTP server write timeout.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Server.WriteTimeoutSeconds) * time.Second
}

// LockPath returns the single-instance lock file inside the data directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "trackbridged.lock")
}

// PIDPath returns where a running daemon records its process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "trackbridged.pid")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML with the API token redacted.
func (c *Config) Encode() ([]byte, error) {
	redacted := *c
	if redacted.Paths.APIToken != "" {
		redacted.Paths.APIToken = "<redacted>"
	}
	return toml.Marshal(redacted)
}
