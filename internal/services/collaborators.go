package services

import (
	"context"

	"shuttle/internal/metadata"
)

// ProgressFunc receives sub-progress from a collaborator as a fraction in
// [0, 1] plus a short human-readable note.
type ProgressFunc func(fraction float64, message string)

// DownloadRequest describes one download attempt.
type DownloadRequest struct {
	Sources     []string
	Dir         string
	Connections int
}

// DownloadedFile records one completed payload.
type DownloadedFile struct {
	Path  string
	Size  int64
	Speed float64 // bytes per second, averaged over the transfer
}

// DownloadResult aggregates a successful download attempt.
type DownloadResult struct {
	Files []DownloadedFile
}

// Downloader fetches the job's sources into a directory. CleanupPartial
// removes incomplete payloads and their sidecar control files after the
// retry sequence is exhausted.
type Downloader interface {
	Download(ctx context.Context, req DownloadRequest, progress ProgressFunc) (*DownloadResult, error)
	CleanupPartial(dir string) error
}

// FilterRequest asks for an audio-track filtered copy of a container.
type FilterRequest struct {
	Path         string
	KeepLanguage string
	OutputDir    string
}

// AudioFilter strips audio tracks other than the requested language.
type AudioFilter interface {
	FilterTracks(ctx context.Context, req FilterRequest, progress ProgressFunc) (string, error)
}

// TrackProber reads embedded audio-track languages from a media container.
type TrackProber interface {
	AudioLanguages(ctx context.Context, path string) ([]string, error)
}

// Renamer rewrites a file name from resolved metadata and returns the new
// path. Series content keeps its own per-episode identity.
type Renamer interface {
	Rename(ctx context.Context, path string, meta metadata.Resolved) (string, error)
}

// TransferResult enumerates what a transfer moved before any failure.
type TransferResult struct {
	Transferred []string
	Failed      []string
	BytesCopied int64
}

// StorageTransfer copies files to the routed destination directory.
type StorageTransfer interface {
	Transfer(ctx context.Context, files []string, destDir string, progress ProgressFunc) (*TransferResult, error)
}

// LibraryScanner triggers a media-server library rescan. Best effort.
type LibraryScanner interface {
	Scan(ctx context.Context) error
}
