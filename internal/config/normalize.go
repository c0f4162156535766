package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProviders()
	c.normalizeDownload()
	c.normalizeWorkflow()
	if err := c.normalizeTargets(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	return nil
}

func (c *Config) normalizeProviders() {
	if key, ok := os.LookupEnv("OMDB_API_KEY"); ok && strings.TrimSpace(c.OMDb.APIKey) == "" {
		c.OMDb.APIKey = key
	}
	if key, ok := os.LookupEnv("TMDB_API_KEY"); ok && strings.TrimSpace(c.TMDB.APIKey) == "" {
		c.TMDB.APIKey = key
	}
	c.OMDb.APIKey = strings.TrimSpace(c.OMDb.APIKey)
	c.OMDb.BaseURL = strings.TrimRight(strings.TrimSpace(c.OMDb.BaseURL), "/")
	c.TMDB.APIKey = strings.TrimSpace(c.TMDB.APIKey)
	c.TMDB.BaseURL = strings.TrimRight(strings.TrimSpace(c.TMDB.BaseURL), "/")
	c.Scanner.URL = strings.TrimRight(strings.TrimSpace(c.Scanner.URL), "/")
	c.Scanner.APIKey = strings.TrimSpace(c.Scanner.APIKey)
}

func (c *Config) normalizeDownload() {
	if len(c.Download.ConnectionSequence) == 0 {
		c.Download.ConnectionSequence = []int{8, 6, 4}
	}
	if strings.TrimSpace(c.Download.Aria2Binary) == "" {
		c.Download.Aria2Binary = "aria2c"
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = 2
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = 5
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = 10
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = 15
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		c.Workflow.HeartbeatTimeout = 180
	}
}

func (c *Config) normalizeTargets() error {
	for i := range c.Targets {
		target := &c.Targets[i]
		target.Name = strings.TrimSpace(target.Name)
		target.Kind = strings.ToLower(strings.TrimSpace(target.Kind))
		target.Host = strings.TrimSpace(target.Host)
		target.Share = strings.TrimSpace(target.Share)

		var err error
		if target.Path != "" {
			if target.Path, err = expandPath(target.Path); err != nil {
				return fmt.Errorf("targets[%d].path: %w", i, err)
			}
		}
		if target.MountPoint != "" {
			if target.MountPoint, err = expandPath(target.MountPoint); err != nil {
				return fmt.Errorf("targets[%d].mount_point: %w", i, err)
			}
		}
	}
	c.DefaultTarget = strings.TrimSpace(c.DefaultTarget)
	if c.DefaultTarget == "" && len(c.Targets) > 0 {
		c.DefaultTarget = c.Targets[0].Name
	}
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
