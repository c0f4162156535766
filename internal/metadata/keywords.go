package metadata

import "strings"

// DefaultLanguage is the deliberate fallback when no cascade source
// produced a language signal; it matches the default category mapping.
const DefaultLanguage = "malayalam"

// languageKeywords maps release-name tokens to the canonical language name
// used for category mapping. Tokens are matched against the tokenized
// filename, not as substrings, so "male" never matches "mal".
var languageKeywords = map[string]string{
	"malayalam": "malayalam",
	"mal":       "malayalam",
	"mollywood": "malayalam",
	"hindi":     "hindi",
	"hin":       "hindi",
	"bollywood": "hindi",
	"english":   "english",
	"eng":       "english",
}

// audioLanguageCodes maps ISO 639 track language codes to canonical names.
var audioLanguageCodes = map[string]string{
	"ml":  "malayalam",
	"mal": "malayalam",
	"hi":  "hindi",
	"hin": "hindi",
	"en":  "english",
	"eng": "english",
}

// normalizeLanguage canonicalizes any language spelling or code the
// cascade may encounter.
func normalizeLanguage(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	if canonical, ok := audioLanguageCodes[value]; ok {
		return canonical
	}
	if canonical, ok := languageKeywords[value]; ok {
		return canonical
	}
	return value
}

// TrackCode returns the ISO 639-2 code media containers use for a
// canonical language name. Unknown languages map to the empty string.
func TrackCode(language string) string {
	switch normalizeLanguage(language) {
	case "malayalam":
		return "mal"
	case "hindi":
		return "hin"
	case "english":
		return "eng"
	default:
		return ""
	}
}

// languageFromTokens scans filename tokens for a language keyword.
func languageFromTokens(tokens []string) string {
	for _, token := range tokens {
		if language, ok := languageKeywords[token]; ok {
			return language
		}
	}
	return ""
}

// languageFromTracks picks the first recognized audio-track language.
func languageFromTracks(trackLanguages []string) string {
	for _, code := range trackLanguages {
		if language, ok := audioLanguageCodes[strings.ToLower(strings.TrimSpace(code))]; ok {
			return language
		}
	}
	return ""
}
