// Package metadata resolves a release's identity and destination category
// through a strict priority cascade: metadata API, filename heuristics,
// embedded audio-track languages, the user's filter language, and finally a
// logged Malayalam default.
package metadata
