package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateScanner(); err != nil {
		return err
	}
	if err := c.validateTargets(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DownloadDir == "" {
		return errors.New("paths.download_dir must be set")
	}
	if c.Paths.StagingDir == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateDownload() error {
	for i, connections := range c.Download.ConnectionSequence {
		if connections <= 0 {
			return fmt.Errorf("download.connection_sequence[%d] must be positive", i)
		}
	}
	if c.Download.MinFreeDiskGiB < 0 {
		return errors.New("download.min_free_disk_gib must not be negative")
	}
	return nil
}

func (c *Config) validateScanner() error {
	if !c.Scanner.Enabled {
		return nil
	}
	if c.Scanner.URL == "" {
		return errors.New("scanner.url must be set when scanner.enabled is true")
	}
	if c.Scanner.APIKey == "" {
		return errors.New("scanner.api_key must be set when scanner.enabled is true")
	}
	return nil
}

func (c *Config) validateTargets() error {
	if len(c.Targets) == 0 {
		return errors.New("at least one [[targets]] entry must be configured")
	}
	seen := make(map[string]struct{}, len(c.Targets))
	for i, target := range c.Targets {
		if target.Name == "" {
			return fmt.Errorf("targets[%d].name must be set", i)
		}
		key := strings.ToLower(target.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate target name %q", target.Name)
		}
		seen[key] = struct{}{}

		switch target.Kind {
		case "local":
			if target.Path == "" {
				return fmt.Errorf("targets[%d] (%s): local targets require path", i, target.Name)
			}
		case "nas":
			if target.Host == "" || target.Share == "" {
				return fmt.Errorf("targets[%d] (%s): nas targets require host and share", i, target.Name)
			}
			if target.MountPoint == "" {
				return fmt.Errorf("targets[%d] (%s): nas targets require mount_point", i, target.Name)
			}
		default:
			return fmt.Errorf("targets[%d] (%s): kind must be \"local\" or \"nas\"", i, target.Name)
		}
	}
	if _, ok := c.TargetByName(c.DefaultTarget); !ok {
		return fmt.Errorf("default_target %q does not match any configured target", c.DefaultTarget)
	}
	return nil
}
