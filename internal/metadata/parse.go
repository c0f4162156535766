package metadata

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ParsedName is the identity extracted from a release file name.
type ParsedName struct {
	Title   string
	Year    int
	Series  bool
	Season  int
	Episode int
	Tokens  []string
}

var (
	yearPattern    = regexp.MustCompile(`^(19|20)\d{2}$`)
	seasonEpisode  = regexp.MustCompile(`(?i)^s(\d{1,2})e(\d{1,3})$`)
	crossEpisode   = regexp.MustCompile(`^(\d{1,2})x(\d{2,3})$`)
	seasonWord     = regexp.MustCompile(`(?i)^season$`)
	tokenSeparator = regexp.MustCompile(`[.\s_\-\[\]()]+`)
)

// Tokens that end the title portion of a release name once seen.
var releaseNoise = map[string]struct{}{
	"480p": {}, "720p": {}, "1080p": {}, "2160p": {}, "4k": {},
	"web": {}, "webrip": {}, "webdl": {}, "web-dl": {}, "hdrip": {},
	"bluray": {}, "brrip": {}, "bdrip": {}, "dvdrip": {}, "hdtv": {},
	"x264": {}, "x265": {}, "h264": {}, "h265": {}, "hevc": {}, "avc": {},
	"aac": {}, "ac3": {}, "dts": {}, "ddp5": {}, "esub": {}, "esubs": {},
	"proper": {}, "repack": {}, "remux": {}, "uncut": {}, "extended": {},
}

var audioExtensions = map[string]struct{}{
	".mp3": {}, ".flac": {}, ".m4a": {}, ".ogg": {}, ".opus": {}, ".wav": {},
}

// ParseFilename extracts a searchable title, optional year, and TV markers
// from a release file name.
func ParseFilename(name string) ParsedName {
	base := filepath.Base(strings.TrimSpace(name))
	if ext := filepath.Ext(base); len(ext) > 1 && len(ext) <= 6 && !strings.ContainsAny(ext[1:], " ") {
		base = strings.TrimSuffix(base, ext)
	}

	rawTokens := tokenSeparator.Split(base, -1)
	tokens := make([]string, 0, len(rawTokens))
	for _, token := range rawTokens {
		token = strings.ToLower(strings.TrimSpace(token))
		if token != "" {
			tokens = append(tokens, token)
		}
	}

	parsed := ParsedName{Tokens: tokens}
	titleEnd := len(tokens)
	for i, token := range tokens {
		if m := seasonEpisode.FindStringSubmatch(token); m != nil {
			parsed.Series = true
			parsed.Season, _ = strconv.Atoi(m[1])
			parsed.Episode, _ = strconv.Atoi(m[2])
			if i < titleEnd {
				titleEnd = i
			}
			continue
		}
		if m := crossEpisode.FindStringSubmatch(token); m != nil {
			parsed.Series = true
			parsed.Season, _ = strconv.Atoi(m[1])
			parsed.Episode, _ = strconv.Atoi(m[2])
			if i < titleEnd {
				titleEnd = i
			}
			continue
		}
		if seasonWord.MatchString(token) {
			parsed.Series = true
			if i < titleEnd {
				titleEnd = i
			}
			if i+1 < len(tokens) {
				if season, err := strconv.Atoi(tokens[i+1]); err == nil {
					parsed.Season = season
				}
			}
			continue
		}
		if yearPattern.MatchString(token) && i > 0 {
			if year, err := strconv.Atoi(token); err == nil && parsed.Year == 0 {
				parsed.Year = year
				if i < titleEnd {
					titleEnd = i
				}
			}
			continue
		}
		if _, noisy := releaseNoise[token]; noisy {
			if i < titleEnd {
				titleEnd = i
			}
		}
	}

	titleTokens := make([]string, 0, titleEnd)
	for _, token := range tokens[:titleEnd] {
		if _, noisy := releaseNoise[token]; noisy {
			continue
		}
		if _, lang := languageKeywords[token]; lang {
			continue
		}
		titleTokens = append(titleTokens, token)
	}
	parsed.Title = strings.Join(titleTokens, " ")
	return parsed
}

// IsAudioContainer reports whether a path names an audio-only container.
func IsAudioContainer(path string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}
