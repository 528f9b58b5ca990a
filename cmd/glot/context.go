package main

import (
	"fmt"
	"strings"

	"glot/internal/config"
)

// commandContext carries lazily loaded configuration and the daemon API
// client shared by every subcommand.
type commandContext struct {
	serverFlag *string
	configFlag *string

	cfg        *config.Config
	configPath string
}

func newCommandContext(serverFlag, configFlag *string) *commandContext {
	return &commandContext{serverFlag: serverFlag, configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	path := ""
	if c.configFlag != nil {
		path = *c.configFlag
	}
	cfg, resolved, _, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg
	c.configPath = resolved
	return cfg, nil
}

func (c *commandContext) client() (*apiClient, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	base := ""
	if c.serverFlag != nil {
		base = strings.TrimSpace(*c.serverFlag)
	}
	if base == "" {
		if cfg.Paths.APIBind == "" {
			return nil, fmt.Errorf("no daemon API address: set paths.api_bind or pass --server")
		}
		base = "http://" + cfg.Paths.APIBind
	}
	return newAPIClient(base, cfg.Paths.APIToken), nil
}
