// Package download wraps the aria2c command-line downloader.
package download

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"shuttle/internal/queue"
	"shuttle/internal/services"
)

var commandContext = exec.CommandContext

// progressPattern matches aria2c console summary lines, e.g.
// [#2089b0 400MiB/512MiB(78%) CN:8 DL:2.1MiB ETA:50s]
var progressPattern = regexp.MustCompile(`\((\d{1,3})%\)`)

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default aria2c binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if strings.TrimSpace(binary) != "" {
			c.binary = binary
		}
	}
}

// CLI wraps the aria2c command-line downloader.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "aria2c"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Download fetches all sources into req.Dir with the attempt's parallel
// connection count, then enumerates the completed payloads. A leftover
// .aria2 control file means the payload is incomplete and is not listed.
func (c *CLI) Download(ctx context.Context, req services.DownloadRequest, progress services.ProgressFunc) (*services.DownloadResult, error) {
	if len(req.Sources) == 0 {
		return nil, services.Wrap(services.ErrValidation, string(queue.PhaseDownloading), "aria2c", "no sources", nil)
	}
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrValidation, string(queue.PhaseDownloading), "aria2c", "create download directory", err)
	}

	connections := req.Connections
	if connections <= 0 {
		connections = 1
	}

	args := []string{
		"--dir", req.Dir,
		"--max-connection-per-server", strconv.Itoa(connections),
		"--split", strconv.Itoa(connections),
		"--continue=true",
		"--summary-interval=1",
		"--console-log-level=warn",
		"--show-console-readout=false",
	}
	args = append(args, req.Sources...)

	start := time.Now()
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrTransient, string(queue.PhaseDownloading), "aria2c", "start downloader", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		match := progressPattern.FindStringSubmatch(line)
		if match == nil || progress == nil {
			continue
		}
		percent, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		progress(float64(percent)/100, "")
	}
	if err := scanner.Err(); err != nil {
		_ = cmd.Wait()
		return nil, services.Wrap(services.ErrTransient, string(queue.PhaseDownloading), "aria2c", "read downloader output", err)
	}

	if err := cmd.Wait(); err != nil {
		return nil, services.Wrap(services.ErrTransient, string(queue.PhaseDownloading), "aria2c", "download failed", err)
	}

	files, totalSize, err := collectCompleted(req.Dir)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start).Seconds()
	speed := 0.0
	if elapsed > 0 {
		speed = float64(totalSize) / elapsed
	}
	for i := range files {
		files[i].Speed = speed
	}
	return &services.DownloadResult{Files: files}, nil
}

// CleanupPartial removes incomplete payloads and their .aria2 control
// files after the retry sequence is exhausted.
func (c *CLI) CleanupPartial(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read download directory: %w", err)
	}
	var firstErr error
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".aria2") {
			continue
		}
		control := filepath.Join(dir, name)
		payload := strings.TrimSuffix(control, ".aria2")
		for _, path := range []string{payload, control} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func collectCompleted(dir string) ([]services.DownloadedFile, int64, error) {
	var (
		files     []services.DownloadedFile
		totalSize int64
	)
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || strings.HasSuffix(path, ".aria2") {
			return nil
		}
		if _, statErr := os.Stat(path + ".aria2"); statErr == nil {
			// Control file still present: the payload is incomplete.
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		files = append(files, services.DownloadedFile{Path: path, Size: info.Size()})
		totalSize += info.Size()
		return nil
	})
	if err != nil {
		return nil, 0, services.Wrap(services.ErrTransient, string(queue.PhaseDownloading), "aria2c", "enumerate downloads", err)
	}
	if len(files) == 0 {
		return nil, 0, services.Wrap(services.ErrTransient, string(queue.PhaseDownloading), "aria2c", "no completed files", nil)
	}
	return files, totalSize, nil
}

var _ services.Downloader = (*CLI)(nil)
