package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"shuttle/internal/config"
	"shuttle/internal/fileutil"
	"shuttle/internal/logging"
	"shuttle/internal/metadata"
	"shuttle/internal/nas"
	"shuttle/internal/publisher"
	"shuttle/internal/queue"
	"shuttle/internal/retry"
	"shuttle/internal/services"
)

// Collaborators are the service clients the executor drives. Nil entries
// disable the phases that need them; Execute fails jobs that require a
// missing collaborator.
type Collaborators struct {
	Downloader  services.Downloader
	AudioFilter services.AudioFilter
	TrackProber services.TrackProber
	Renamer     services.Renamer
	Transfer    services.StorageTransfer
	Scanner     services.LibraryScanner
	Resolver    *metadata.Resolver
	Router      *nas.Router
}

// Executor walks one claimed job through the phases its type requires.
// A job failure never propagates out of Execute; the worker loop must
// survive to claim the next job.
type Executor struct {
	cfg     *config.Config
	store   *queue.Store
	pub     *publisher.Publisher
	collab  Collaborators
	retries *retry.Controller
	logger  *slog.Logger
}

// NewExecutor builds an executor over the given collaborators.
func NewExecutor(cfg *config.Config, store *queue.Store, pub *publisher.Publisher, collab Collaborators, logger *slog.Logger) *Executor {
	return &Executor{
		cfg:     cfg,
		store:   store,
		pub:     pub,
		collab:  collab,
		retries: retry.New(logger),
		logger:  logging.NewComponentLogger(logger, "executor"),
	}
}

// pipelineState carries the working set between phases.
type pipelineState struct {
	job      *queue.Job
	files    []string
	resolved map[string]metadata.Resolved
}

// inputBytes sums the sizes of the current working files. Files that
// cannot be measured count as zero.
func (s *pipelineState) inputBytes() uint64 {
	var total uint64
	for _, path := range s.files {
		if size, err := fileutil.FileSize(path); err == nil && size > 0 {
			total += uint64(size)
		}
	}
	return total
}

// Execute runs the job to a terminal state. The returned error is only
// context.Canceled on daemon shutdown; job failures are persisted and
// absorbed.
func (e *Executor) Execute(ctx context.Context, job *queue.Job) error {
	logger := e.logger.With(
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldJobType, string(job.Type)),
	)
	start := time.Now()
	logger.Info("job started", logging.String(logging.FieldEventType, "job_start"))
	e.pub.Status(job)

	phases := phasesFor(job.Type, e.collab.Scanner != nil)
	if len(phases) == 0 {
		return e.fail(ctx, job, logger, services.Wrap(services.ErrValidation, "", "pipeline", fmt.Sprintf("job type %q has no phases", job.Type), nil))
	}
	bands := progressBands(phases)

	state := &pipelineState{job: job, resolved: make(map[string]metadata.Resolved)}
	if phases[0] != queue.PhaseDownloading {
		if err := e.seedLocalInput(state); err != nil {
			return e.fail(ctx, job, logger, err)
		}
	}

	for i, phase := range phases {
		if cancelled, err := e.observeCancellation(ctx, job, logger); cancelled || err != nil {
			return err
		}

		e.pub.Progress(ctx, job, phase, bands[i].start, "")
		e.pub.Log(ctx, job.ID, queue.LevelInfo, "%s started", phase)
		phaseStart := time.Now()

		err := e.runPhase(ctx, state, phase, bands[i])
		if err != nil {
			if ctx.Err() != nil {
				return context.Canceled
			}
			if phase == queue.PhaseScanning {
				// Scans are best effort; the payload is already delivered.
				e.pub.Log(ctx, job.ID, queue.LevelWarning, "library scan failed: %v", err)
				logger.Warn("library scan failed",
					logging.String(logging.FieldPhase, string(phase)),
					logging.Error(err),
				)
				continue
			}
			return e.fail(ctx, job, logger, err)
		}

		e.pub.Progress(ctx, job, phase, bands[i].at(1), "")
		e.pub.Log(ctx, job.ID, queue.LevelInfo, "%s finished", phase)
		logger.Info("phase completed",
			logging.String(logging.FieldPhase, string(phase)),
			logging.Duration("phase_duration", time.Since(phaseStart)),
		)
	}

	job.SetCompleted()
	if err := e.store.Update(ctx, job); err != nil {
		logger.Error("failed to persist completion", logging.Error(err))
	}
	e.pub.Log(ctx, job.ID, queue.LevelSuccess, "job completed")
	e.pub.Status(job)
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.Duration("job_duration", time.Since(start)),
	)
	return nil
}

func (e *Executor) runPhase(ctx context.Context, state *pipelineState, phase queue.Phase, b band) error {
	switch phase {
	case queue.PhaseDownloading:
		return e.runDownloading(ctx, state, b)
	case queue.PhaseFiltering:
		return e.runFiltering(ctx, state, b)
	case queue.PhaseOrganizing:
		return e.runOrganizing(ctx, state, b)
	case queue.PhaseUploading:
		return e.runUploading(ctx, state, b)
	case queue.PhaseScanning:
		return e.runScanning(ctx, state.job)
	default:
		return services.Wrap(services.ErrValidation, string(phase), "pipeline", "unknown phase", nil)
	}
}

// observeCancellation is the phase-boundary cancellation point. Work in
// flight inside a phase completes before the flag is honored.
func (e *Executor) observeCancellation(ctx context.Context, job *queue.Job, logger *slog.Logger) (bool, error) {
	if ctx.Err() != nil {
		return false, context.Canceled
	}
	requested, err := e.store.CancelRequested(ctx, job.ID)
	if err != nil {
		logger.Warn("cancellation check failed", logging.Error(err))
		return false, nil
	}
	if !requested {
		return false, nil
	}

	job.SetCancelled()
	if err := e.store.Update(ctx, job); err != nil && !errors.Is(err, queue.ErrAlreadyTerminal) {
		logger.Error("failed to persist cancellation", logging.Error(err))
	}
	e.pub.Log(ctx, job.ID, queue.LevelWarning, "job cancelled")
	e.pub.Status(job)
	logger.Info("job cancelled", logging.String(logging.FieldEventType, "job_cancelled"))
	return true, nil
}

func (e *Executor) fail(ctx context.Context, job *queue.Job, logger *slog.Logger, err error) error {
	job.SetFailed(err.Error())
	if updateErr := e.store.Update(ctx, job); updateErr != nil && !errors.Is(updateErr, queue.ErrAlreadyTerminal) {
		logger.Error("failed to persist failure", logging.Error(updateErr))
	}
	e.pub.Log(ctx, job.ID, queue.LevelError, "job failed: %v", err)
	e.pub.Status(job)
	logger.Error("job failed",
		logging.String(logging.FieldEventType, "job_failed"),
		logging.String(logging.FieldErrorHint, errorHint(err)),
		logging.Error(err),
	)
	return nil
}

// seedLocalInput validates and adopts the job's input paths for job
// types that start from local files instead of a download.
func (e *Executor) seedLocalInput(state *pipelineState) error {
	if len(state.job.Input) == 0 {
		return services.Wrap(services.ErrValidation, "", "input", "job has no input files", nil)
	}
	for _, path := range state.job.Input {
		info, err := os.Stat(path)
		if err != nil {
			return services.Wrap(services.ErrValidation, "", "input", fmt.Sprintf("input file %q not accessible", path), err)
		}
		if info.IsDir() {
			return services.Wrap(services.ErrValidation, "", "input", fmt.Sprintf("input %q is a directory", path), nil)
		}
	}
	state.files = append([]string(nil), state.job.Input...)
	return nil
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, services.ErrInsufficientSpace):
		return "free disk space and resubmit"
	case errors.Is(err, services.ErrMount):
		return "check NAS reachability and mount credentials"
	case errors.Is(err, services.ErrPartialTransfer):
		return "inspect the destination for partially copied files"
	case errors.Is(err, services.ErrValidation):
		return "fix the request and resubmit"
	default:
		return "source may be temporarily unavailable"
	}
}
