package main

import (
	"strings"
	"sync"

	"shuttle/internal/client"
	"shuttle/internal/config"
)

// commandContext carries lazily-loaded configuration and the API client
// across commands.
type commandContext struct {
	serverFlag *string
	configFlag *string

	mu         sync.Mutex
	cfg        *config.Config
	configPath string
}

func newCommandContext(serverFlag, configFlag *string) *commandContext {
	return &commandContext{serverFlag: serverFlag, configFlag: configFlag}
}

// ensureConfig loads the configuration once. Commands that only talk to
// the API still load it to learn the default bind address.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg != nil {
		return c.cfg, nil
	}

	path := ""
	if c.configFlag != nil {
		path = *c.configFlag
	}
	cfg, resolvedPath, _, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	c.configPath = resolvedPath
	return cfg, nil
}

// apiClient resolves the server address (flag first, then config) and
// returns a client for it.
func (c *commandContext) apiClient() (*client.Client, error) {
	if c.serverFlag != nil && strings.TrimSpace(*c.serverFlag) != "" {
		return client.New(*c.serverFlag), nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return client.New(cfg.Paths.APIBind), nil
}
