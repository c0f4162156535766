// Package audiofilter strips unwanted audio tracks from media containers
// with mkvmerge and probes track languages with ffprobe.
package audiofilter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"shuttle/internal/metadata"
	"shuttle/internal/queue"
	"shuttle/internal/services"
)

var commandContext = exec.CommandContext

// mkvmerge prints "Progress: 45%" lines on stdout.
var mkvmergeProgress = regexp.MustCompile(`Progress:\s+(\d{1,3})%`)

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default mkvmerge binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if strings.TrimSpace(binary) != "" {
			c.binary = binary
		}
	}
}

// CLI wraps the mkvmerge command-line muxer.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "mkvmerge"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// FilterTracks writes a copy of the container keeping only audio tracks
// in the requested language plus all video and subtitle tracks, and
// returns the output path.
func (c *CLI) FilterTracks(ctx context.Context, req services.FilterRequest, progress services.ProgressFunc) (string, error) {
	code := metadata.TrackCode(req.KeepLanguage)
	if code == "" {
		return "", services.Wrap(services.ErrValidation, string(queue.PhaseFiltering), "mkvmerge", fmt.Sprintf("unsupported language %q", req.KeepLanguage), nil)
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrValidation, string(queue.PhaseFiltering), "mkvmerge", "create output directory", err)
	}

	outputPath := filepath.Join(req.OutputDir, filepath.Base(req.Path))
	args := []string{
		"-o", outputPath,
		"--audio-tracks", "lang:" + code,
		req.Path,
	}

	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return "", services.Wrap(services.ErrTransient, string(queue.PhaseFiltering), "mkvmerge", "start muxer", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		match := mkvmergeProgress.FindStringSubmatch(scanner.Text())
		if match == nil || progress == nil {
			continue
		}
		if percent, err := strconv.Atoi(match[1]); err == nil {
			progress(float64(percent)/100, "")
		}
	}
	if err := scanner.Err(); err != nil {
		_ = cmd.Wait()
		return "", services.Wrap(services.ErrTransient, string(queue.PhaseFiltering), "mkvmerge", "read muxer output", err)
	}

	// Exit code 1 is warnings only; the output container is still valid.
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			return "", services.Wrap(services.ErrTransient, string(queue.PhaseFiltering), "mkvmerge", "mux failed", err)
		}
	}
	return outputPath, nil
}

var _ services.AudioFilter = (*CLI)(nil)
