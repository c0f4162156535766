package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"shuttle/internal/fileutil"
	"shuttle/internal/metadata"
	"shuttle/internal/queue"
	"shuttle/internal/retry"
	"shuttle/internal/services"
)

func (e *Executor) runDownloading(ctx context.Context, state *pipelineState, b band) error {
	if e.collab.Downloader == nil {
		return services.Wrap(services.ErrValidation, string(queue.PhaseDownloading), "download", "no downloader configured", nil)
	}
	job := state.job
	dir := filepath.Join(e.cfg.Paths.DownloadDir, job.ID)

	policy := retry.DownloadPolicy(
		e.cfg.Download.ConnectionSequence,
		time.Duration(e.cfg.Workflow.ErrorRetryInterval)*time.Second,
	)

	var result *services.DownloadResult
	err := e.retries.Run(ctx, policy, retry.Op{
		Name: "download",
		// Download sources declare no size before transfer begins, so
		// only the floor applies here.
		Preflight: e.diskPreflight(queue.PhaseDownloading, e.cfg.Paths.DownloadDir, 0),
		Do: func(ctx context.Context, attempt retry.Attempt) error {
			res, err := e.collab.Downloader.Download(ctx, services.DownloadRequest{
				Sources:     job.Input,
				Dir:         dir,
				Connections: attempt.Connections,
			}, e.bandProgress(ctx, job, queue.PhaseDownloading, b))
			if err != nil {
				return err
			}
			result = res
			return nil
		},
		Cleanup: func() error {
			return e.collab.Downloader.CleanupPartial(dir)
		},
	})
	if err != nil {
		return err
	}

	state.files = state.files[:0]
	for _, file := range result.Files {
		state.files = append(state.files, file.Path)
		job.Summary.Downloaded++
		job.Summary.TotalSize += file.Size
		e.pub.Log(ctx, job.ID, queue.LevelInfo, "downloaded %s (%s, %s/s)",
			filepath.Base(file.Path),
			humanize.Bytes(uint64(file.Size)),
			humanize.Bytes(uint64(file.Speed)),
		)
	}
	if len(state.files) == 0 {
		return services.Wrap(services.ErrTransient, string(queue.PhaseDownloading), "download", "no files produced", nil)
	}
	return nil
}

// diskPreflight checks the destination volume once before a phase begins
// to write; a full disk is never retried. declared is the known payload
// size, added on top of the configured floor.
func (e *Executor) diskPreflight(phase queue.Phase, dir string, declared uint64) func(context.Context) error {
	return func(context.Context) error {
		floor := e.cfg.MinFreeDiskBytes()
		if floor == 0 {
			return nil
		}
		required := floor + declared
		free, err := fileutil.FreeSpace(dir)
		if err != nil {
			return services.Wrap(services.ErrValidation, string(phase), "preflight", "cannot determine free disk space", err)
		}
		if free < required {
			return services.Wrap(
				services.ErrInsufficientSpace,
				string(phase),
				"preflight",
				fmt.Sprintf("%s free, %s required", humanize.Bytes(free), humanize.Bytes(required)),
				nil,
			)
		}
		return nil
	}
}

func (e *Executor) runFiltering(ctx context.Context, state *pipelineState, b band) error {
	if e.collab.AudioFilter == nil {
		return services.Wrap(services.ErrValidation, string(queue.PhaseFiltering), "filter", "no audio filter configured", nil)
	}
	job := state.job
	// Filtered copies land in staging at up to the source size.
	if err := e.diskPreflight(queue.PhaseFiltering, e.cfg.Paths.StagingDir, state.inputBytes())(ctx); err != nil {
		return err
	}
	keep := strings.TrimSpace(job.TargetLanguage)
	if keep == "" {
		// No explicit choice; each file keeps the language the metadata
		// cascade decided for it.
		if err := e.ensureResolved(ctx, state); err != nil {
			return err
		}
	}

	outputDir := filepath.Join(e.cfg.Paths.StagingDir, job.ID)
	total := len(state.files)
	for i, path := range state.files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		language := keep
		if language == "" {
			language = state.resolved[path].Language
		}
		if language == "" {
			language = metadata.DefaultLanguage
		}
		out, err := e.collab.AudioFilter.FilterTracks(ctx, services.FilterRequest{
			Path:         path,
			KeepLanguage: language,
			OutputDir:    outputDir,
		}, func(fraction float64, message string) {
			overall := (float64(i) + fraction) / float64(total)
			e.pub.Progress(ctx, job, queue.PhaseFiltering, b.at(overall), message)
		})
		if err != nil {
			return err
		}
		state.files[i] = out
		job.Summary.Filtered++
		e.pub.Log(ctx, job.ID, queue.LevelInfo, "filtered %s to %s audio", filepath.Base(path), language)
	}
	job.Output = outputDir
	return nil
}

func (e *Executor) runOrganizing(ctx context.Context, state *pipelineState, b band) error {
	if e.collab.Renamer == nil {
		return services.Wrap(services.ErrValidation, string(queue.PhaseOrganizing), "organize", "no renamer configured", nil)
	}
	if err := e.ensureResolved(ctx, state); err != nil {
		return err
	}

	job := state.job
	total := len(state.files)
	for i, path := range state.files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resolved := state.resolved[path]
		renamed, err := e.collab.Renamer.Rename(ctx, path, resolved)
		if err != nil {
			return err
		}
		if renamed != path {
			delete(state.resolved, path)
			state.resolved[renamed] = resolved
			state.files[i] = renamed
			e.pub.Log(ctx, job.ID, queue.LevelInfo, "renamed %s to %s", filepath.Base(path), filepath.Base(renamed))
		}
		job.Summary.Renamed++
		e.pub.Progress(ctx, job, queue.PhaseOrganizing, b.at(float64(i+1)/float64(total)), "")
	}
	return nil
}

func (e *Executor) runUploading(ctx context.Context, state *pipelineState, b band) error {
	if e.collab.Transfer == nil || e.collab.Router == nil {
		return services.Wrap(services.ErrValidation, string(queue.PhaseUploading), "upload", "no storage transfer configured", nil)
	}
	if err := e.ensureResolved(ctx, state); err != nil {
		return err
	}
	job := state.job

	// Route per category so a mixed batch lands in the right folders.
	groups := make(map[metadata.Category][]string)
	order := make([]metadata.Category, 0, 2)
	for _, path := range state.files {
		category := state.resolved[path].Category
		if _, seen := groups[category]; !seen {
			order = append(order, category)
		}
		groups[category] = append(groups[category], path)
	}

	done := 0
	total := len(state.files)
	for _, category := range order {
		files := groups[category]
		destDir, err := e.collab.Router.Resolve(ctx, category, job.Destination)
		if err != nil {
			return err
		}

		var result *services.TransferResult
		err = e.retries.Run(ctx, retry.SimplePolicy(2, time.Duration(e.cfg.Workflow.ErrorRetryInterval)*time.Second), retry.Op{
			Name: "transfer",
			Do: func(ctx context.Context, _ retry.Attempt) error {
				res, err := e.collab.Transfer.Transfer(ctx, files, destDir, func(fraction float64, message string) {
					overall := (float64(done) + fraction*float64(len(files))) / float64(total)
					e.pub.Progress(ctx, job, queue.PhaseUploading, b.at(overall), message)
				})
				if res != nil {
					result = res
				}
				return err
			},
		})
		if result != nil {
			job.Summary.Transferred += len(result.Transferred)
			job.Summary.Failed += len(result.Failed)
			job.Summary.TotalSize += result.BytesCopied
		}
		if err != nil {
			return err
		}

		done += len(files)
		job.Output = destDir
		e.pub.Log(ctx, job.ID, queue.LevelInfo, "transferred %d file(s) to %s", len(files), destDir)
	}
	return nil
}

func (e *Executor) runScanning(ctx context.Context, job *queue.Job) error {
	if e.collab.Scanner == nil {
		return nil
	}
	return e.retries.Run(ctx, retry.SimplePolicy(2, 5*time.Second), retry.Op{
		Name: "library scan",
		Do: func(ctx context.Context, _ retry.Attempt) error {
			return e.collab.Scanner.Scan(ctx)
		},
	})
}

// ensureResolved runs the metadata cascade once per file. Organizing and
// uploading both call it; whichever runs first pays the cost.
func (e *Executor) ensureResolved(ctx context.Context, state *pipelineState) error {
	if e.collab.Resolver == nil {
		return services.Wrap(services.ErrValidation, "", "metadata", "no resolver configured", nil)
	}
	job := state.job
	for _, path := range state.files {
		if _, ok := state.resolved[path]; ok {
			continue
		}
		input := metadata.Input{
			Filename:       filepath.Base(path),
			FilterLanguage: job.TargetLanguage,
		}
		if e.collab.TrackProber != nil {
			languages, err := e.collab.TrackProber.AudioLanguages(ctx, path)
			if err == nil {
				input.TrackLanguages = languages
			}
		}
		resolved := e.collab.Resolver.Resolve(ctx, input)
		state.resolved[path] = resolved
		e.pub.Log(ctx, job.ID, queue.LevelInfo, "resolved %s as %q (%s, via %s)",
			filepath.Base(path), resolved.Title, resolved.Category, resolved.Source)

		if job.ResolvedJSON == "" {
			if encoded, err := json.Marshal(resolved); err == nil {
				job.ResolvedJSON = string(encoded)
			}
		}
	}
	return nil
}

func (e *Executor) bandProgress(ctx context.Context, job *queue.Job, phase queue.Phase, b band) services.ProgressFunc {
	return func(fraction float64, message string) {
		e.pub.Progress(ctx, job, phase, b.at(fraction), message)
	}
}
