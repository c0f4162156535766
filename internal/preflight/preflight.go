package preflight

import (
	"context"

	"shuttle/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable checks for the given config. Checks for
// optional features only run when the feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Download directory", cfg.Paths.DownloadDir),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckFreeSpace("Download disk space", cfg.Paths.DownloadDir, cfg.MinFreeDiskBytes()),
		CheckBinary("aria2c", cfg.Download.Aria2Binary, "required for downloads"),
		CheckBinary("mkvmerge", "mkvmerge", "required for audio-track filtering"),
		CheckBinary("ffprobe", "ffprobe", "required for audio-language probing"),
	}

	if cfg.OMDb.APIKey != "" {
		results = append(results, CheckOMDb(ctx, cfg.OMDb.BaseURL, cfg.OMDb.APIKey))
	}
	if cfg.Scanner.Enabled {
		results = append(results, CheckScanner(ctx, cfg.Scanner.URL, cfg.Scanner.APIKey))
	}

	return results
}

// Failures filters results down to the failed checks.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
