package metadata

import (
	"context"
	"log/slog"
	"strings"

	"shuttle/internal/logging"
)

// Source identifies which cascade step produced a resolution.
type Source string

const (
	SourceMetadataAPI       Source = "metadata_api"
	SourceFilenameHeuristic Source = "filename_heuristic"
	SourceAudioProbe        Source = "audio_probe"
	SourceUserLanguage      Source = "user_language"
	SourceDefaultFallback   Source = "default_fallback"
)

// Resolved is the cascade's output: identity plus the category decision.
type Resolved struct {
	Title        string   `json:"title"`
	Year         int      `json:"year,omitempty"`
	IMDbID       string   `json:"imdb_id,omitempty"`
	TMDBID       int64    `json:"tmdb_id,omitempty"`
	IsSeries     bool     `json:"is_series"`
	Season       int      `json:"season,omitempty"`
	Episode      int      `json:"episode,omitempty"`
	Language     string   `json:"language,omitempty"`
	EpisodeTitle string   `json:"episode_title,omitempty"`
	Category     Category `json:"category"`
	Source       Source   `json:"source"`
}

// Input carries everything the cascade may consult.
type Input struct {
	Filename       string
	TrackLanguages []string
	FilterLanguage string
}

// Identity is a metadata API match.
type Identity struct {
	Title    string
	Year     int
	IMDbID   string
	Series   bool
	Language string
}

// Identifier is the primary metadata API lookup. A nil result with a nil
// error means no match.
type Identifier interface {
	Identify(ctx context.Context, title string, year int) (*Identity, error)
}

// Enricher supplies secondary identifiers and episode titles for
// already-identified series. It never contributes to the identity or
// category decision.
type Enricher interface {
	FindSeriesID(ctx context.Context, title string, year int) (int64, error)
	EpisodeTitle(ctx context.Context, seriesID int64, season, episode int) (string, error)
}

// Resolver runs the strict priority cascade. First successful source wins;
// sources are never merged except that the Enricher may add a TMDB id to a
// series the Identifier already matched.
type Resolver struct {
	identifier Identifier
	enricher   Enricher
	logger     *slog.Logger
}

// NewResolver builds a resolver. Both providers are optional; a nil
// identifier simply skips the metadata API step.
func NewResolver(identifier Identifier, enricher Enricher, logger *slog.Logger) *Resolver {
	return &Resolver{
		identifier: identifier,
		enricher:   enricher,
		logger:     logging.NewComponentLogger(logger, "metadata"),
	}
}

// Resolve never fails: when every source comes up empty it returns the
// deliberate Malayalam default, logged as such.
func (r *Resolver) Resolve(ctx context.Context, in Input) Resolved {
	parsed := ParseFilename(in.Filename)
	resolved := Resolved{
		Title:   parsed.Title,
		Year:    parsed.Year,
		Season:  parsed.Season,
		Episode: parsed.Episode,
	}

	if IsAudioContainer(in.Filename) {
		resolved.Category = CategoryMusic
		resolved.Source = SourceFilenameHeuristic
		return resolved
	}

	if identity := r.identify(ctx, parsed); identity != nil {
		resolved.Title = identity.Title
		if identity.Year > 0 {
			resolved.Year = identity.Year
		}
		resolved.IMDbID = identity.IMDbID
		resolved.IsSeries = identity.Series || parsed.Series
		resolved.Language = primaryLanguage(identity.Language)
		resolved.Category = categoryForLanguage(resolved.Language, resolved.IsSeries)
		resolved.Source = SourceMetadataAPI
		r.enrich(ctx, &resolved)
		return resolved
	}

	resolved.IsSeries = parsed.Series

	if language := languageFromTokens(parsed.Tokens); language != "" {
		resolved.Language = language
		resolved.Category = categoryForLanguage(language, parsed.Series)
		resolved.Source = SourceFilenameHeuristic
		return resolved
	}

	if language := languageFromTracks(in.TrackLanguages); language != "" {
		resolved.Language = language
		resolved.Category = categoryForLanguage(language, parsed.Series)
		resolved.Source = SourceAudioProbe
		return resolved
	}

	if language := normalizeLanguage(in.FilterLanguage); language != "" {
		resolved.Language = language
		resolved.Category = categoryForLanguage(language, parsed.Series)
		resolved.Source = SourceUserLanguage
		return resolved
	}

	resolved.Category = fallbackCategory(parsed.Series)
	resolved.Source = SourceDefaultFallback
	r.logger.Warn("no metadata source matched, using default category",
		logging.String("filename", in.Filename),
		logging.String(logging.FieldCategory, string(resolved.Category)),
	)
	return resolved
}

func (r *Resolver) identify(ctx context.Context, parsed ParsedName) *Identity {
	if r.identifier == nil || strings.TrimSpace(parsed.Title) == "" {
		return nil
	}
	identity, err := r.identifier.Identify(ctx, parsed.Title, parsed.Year)
	if err != nil {
		r.logger.Warn("metadata api lookup failed, continuing cascade",
			logging.String("title", parsed.Title),
			logging.Error(err),
		)
		return nil
	}
	return identity
}

// enrich fills the TMDB id and episode title for series matches.
// Enrichment failures are ignored; the enricher never changes the
// identity.
func (r *Resolver) enrich(ctx context.Context, resolved *Resolved) {
	if r.enricher == nil || !resolved.IsSeries {
		return
	}
	id, err := r.enricher.FindSeriesID(ctx, resolved.Title, resolved.Year)
	if err != nil {
		r.logger.Debug("tmdb enrichment skipped", logging.Error(err))
		return
	}
	resolved.TMDBID = id

	if id > 0 && resolved.Season > 0 && resolved.Episode > 0 {
		title, err := r.enricher.EpisodeTitle(ctx, id, resolved.Season, resolved.Episode)
		if err != nil {
			r.logger.Debug("episode title enrichment skipped", logging.Error(err))
			return
		}
		resolved.EpisodeTitle = title
	}
}

// primaryLanguage extracts the first entry of a comma-separated language
// list, the form the metadata API reports.
func primaryLanguage(languages string) string {
	for _, language := range strings.Split(languages, ",") {
		if language = strings.TrimSpace(language); language != "" {
			return normalizeLanguage(language)
		}
	}
	return ""
}
