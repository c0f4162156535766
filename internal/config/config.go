package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DownloadDir string `toml:"download_dir"`
	StagingDir  string `toml:"staging_dir"`
	LogDir      string `toml:"log_dir"`
	APIBind     string `toml:"api_bind"`
}

// OMDb contains configuration for the OMDb metadata API (primary
// identification source).
type OMDb struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// TMDB contains configuration for The Movie Database API (secondary
// enrichment source for episode titles).
type TMDB struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// Scanner contains configuration for the media-server library rescan hook.
type Scanner struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	APIKey  string `toml:"api_key"`
}

// Download contains download behavior settings.
type Download struct {
	// ConnectionSequence holds the per-attempt parallel connection counts.
	// Each retry uses the next, lower entry.
	ConnectionSequence []int  `toml:"connection_sequence"`
	MinFreeDiskGiB     int    `toml:"min_free_disk_gib"`
	Aria2Binary        string `toml:"aria2_binary"`
}

// Workflow contains worker pool timing and intervals.
type Workflow struct {
	Workers                int `toml:"workers"`
	QueuePollInterval      int `toml:"queue_poll_interval"`
	ErrorRetryInterval     int `toml:"error_retry_interval"`
	HeartbeatInterval      int `toml:"heartbeat_interval"`
	HeartbeatTimeout       int `toml:"heartbeat_timeout"`
	CompletedRetentionDays int `toml:"completed_retention_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Target describes one storage destination. Local targets use Path; NAS
// targets carry mount coordinates and their own category folder table.
type Target struct {
	Name            string            `toml:"name"`
	Kind            string            `toml:"kind"`
	Path            string            `toml:"path"`
	Host            string            `toml:"host"`
	Share           string            `toml:"share"`
	MountPoint      string            `toml:"mount_point"`
	CategoryFolders map[string]string `toml:"category_folders"`
}

// Config encapsulates all configuration values for shuttle.
type Config struct {
	// DefaultTarget must precede the table sections so a marshalled
	// document keeps it at the top level.
	DefaultTarget string   `toml:"default_target"`
	Paths         Paths    `toml:"paths"`
	OMDb          OMDb     `toml:"omdb"`
	TMDB          TMDB     `toml:"tmdb"`
	Scanner       Scanner  `toml:"scanner"`
	Download      Download `toml:"download"`
	Workflow      Workflow `toml:"workflow"`
	Logging       Logging  `toml:"logging"`
	Targets       []Target `toml:"targets"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/shuttle/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
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
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
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

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("shuttle.toml")
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
// Local target paths are created best-effort so the daemon can start when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DownloadDir, c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	for _, target := range c.Targets {
		if target.Kind == "local" && strings.TrimSpace(target.Path) != "" {
			_ = os.MkdirAll(target.Path, 0o755)
		}
	}
	return nil
}

// TargetByName returns the named storage target definition.
func (c *Config) TargetByName(name string) (Target, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = c.DefaultTarget
	}
	for _, target := range c.Targets {
		if strings.EqualFold(target.Name, name) {
			return target, true
		}
	}
	return Target{}, false
}

// MinFreeDiskBytes converts the configured free-disk floor to bytes.
func (c *Config) MinFreeDiskBytes() uint64 {
	if c.Download.MinFreeDiskGiB <= 0 {
		return 0
	}
	return uint64(c.Download.MinFreeDiskGiB) << 30
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
