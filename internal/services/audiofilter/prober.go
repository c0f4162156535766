package audiofilter

import (
	"context"
	"encoding/json"
	"strings"

	"shuttle/internal/services"
)

// Prober reads audio-track languages with ffprobe.
type Prober struct {
	binary string
}

// ProberOption configures the prober.
type ProberOption func(*Prober)

// WithProbeBinary overrides the default ffprobe binary name.
func WithProbeBinary(binary string) ProberOption {
	return func(p *Prober) {
		if strings.TrimSpace(binary) != "" {
			p.binary = binary
		}
	}
}

// NewProber constructs a prober using defaults.
func NewProber(opts ...ProberOption) *Prober {
	prober := &Prober{binary: "ffprobe"}
	for _, opt := range opts {
		opt(prober)
	}
	return prober
}

// AudioLanguages returns the language tags of the container's audio
// streams in stream order. Untagged streams are skipped.
func (p *Prober) AudioLanguages(ctx context.Context, path string) ([]string, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream_tags=language",
		"-of", "json",
		path,
	}
	cmd := commandContext(ctx, p.binary, args...) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "", "ffprobe", "probe audio streams", err)
	}

	var payload struct {
		Streams []struct {
			Tags struct {
				Language string `json:"language"`
			} `json:"tags"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(output, &payload); err != nil {
		return nil, services.Wrap(services.ErrTransient, "", "ffprobe", "parse probe output", err)
	}

	var languages []string
	for _, stream := range payload.Streams {
		if language := strings.TrimSpace(stream.Tags.Language); language != "" {
			languages = append(languages, language)
		}
	}
	return languages, nil
}

var _ services.TrackProber = (*Prober)(nil)
