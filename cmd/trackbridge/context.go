package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"trackbridge/internal/api"
	"trackbridge/internal/config"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(c.configFlagValue())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) configFlagValue() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) logLevel() string {
	if c.logLevelFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.logLevelFlag)
}

// apiClient returns a client for the daemon configured in the loaded config.
func (c *commandContext) apiClient() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	client, err := api.NewClient(cfg.Paths.APIBind, cfg.Paths.APIToken)
	if err != nil {
		return nil, fmt.Errorf("api client: %w", err)
	}
	return client, nil
}

// withClient runs fn against the daemon API and rewrites connection failures
// into a hint for starting the daemon.
func (c *commandContext) withClient(fn func(*api.Client) error) error {
	client, err := c.apiClient()
	if err != nil {
		return err
	}
	if err := fn(client); err != nil {
		return wrapAPIError(err, c.configValue())
	}
	return nil
}

func wrapAPIError(err error, cfg *config.Config) error {
	if !api.IsAPIUnavailable(err) {
		return err
	}
	bind := ""
	if cfg != nil {
		bind = cfg.Paths.APIBind
	}
	return fmt.Errorf("connect to daemon at %s: not reachable; start it with `trackbridge start`", bind)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
