package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"shuttle/internal/config"
	"shuttle/internal/logging"
	"shuttle/internal/metadata"
	"shuttle/internal/metadata/omdb"
	"shuttle/internal/metadata/tmdb"
	"shuttle/internal/nas"
	"shuttle/internal/preflight"
	"shuttle/internal/publisher"
	"shuttle/internal/queue"
	"shuttle/internal/services/audiofilter"
	"shuttle/internal/services/download"
	"shuttle/internal/services/rename"
	"shuttle/internal/services/scan"
	"shuttle/internal/services/transfer"
	"shuttle/internal/workflow"
)

// Daemon owns every long-lived component of the shuttled process.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *queue.Store
	hub     *publisher.Hub
	pub     *publisher.Publisher
	manager *workflow.Manager
	api     *apiServer

	startedAt time.Time
}

// New builds a daemon from configuration. The store is opened here;
// workers and the API server start in Run.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	hub := publisher.NewHub(1024)
	pub := publisher.New(store, hub, logger)

	mounts := nas.NewMountManager(filepath.Join(cfg.Paths.LogDir, "locks"), logger)
	router, err := nas.NewRouter(cfg, mounts, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("configure storage targets: %w", err)
	}

	var identifier metadata.Identifier
	if cfg.OMDb.APIKey != "" {
		client, err := omdb.New(cfg.OMDb.APIKey, cfg.OMDb.BaseURL)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("configure omdb client: %w", err)
		}
		identifier = client
	}
	var enricher metadata.Enricher
	if cfg.TMDB.APIKey != "" {
		client, err := tmdb.New(cfg.TMDB.APIKey, cfg.TMDB.BaseURL)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("configure tmdb client: %w", err)
		}
		enricher = client
	}

	collab := workflow.Collaborators{
		Downloader:  download.NewCLI(download.WithBinary(cfg.Download.Aria2Binary)),
		AudioFilter: audiofilter.NewCLI(),
		TrackProber: audiofilter.NewProber(),
		Renamer:     rename.New(),
		Transfer:    transfer.New(),
		Resolver:    metadata.NewResolver(identifier, enricher, logger),
		Router:      router,
	}
	if cfg.Scanner.Enabled {
		collab.Scanner = scan.New(cfg.Scanner.URL, cfg.Scanner.APIKey)
	}

	executor := workflow.NewExecutor(cfg, store, pub, collab, logger)
	manager := workflow.NewManager(cfg, store, executor, logger)

	d := &Daemon{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "daemon"),
		store:   store,
		hub:     hub,
		pub:     pub,
		manager: manager,
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Run starts the worker pool and the API server and blocks until the
// context ends.
func (d *Daemon) Run(ctx context.Context) error {
	d.startedAt = time.Now().UTC()

	results := preflight.RunAll(ctx, d.cfg)
	for _, result := range results {
		if result.Passed {
			d.logger.Info("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
		} else {
			d.logger.Warn("preflight check failed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.String(logging.FieldErrorHint, "fix the reported issue; dependent jobs will fail until then"),
			)
		}
	}

	if err := d.manager.Start(ctx); err != nil {
		return err
	}
	if err := d.api.start(ctx); err != nil {
		d.manager.Stop()
		return err
	}

	<-ctx.Done()
	d.Close()
	return nil
}

// Handler exposes the API routes without binding a listener.
func (d *Daemon) Handler() http.Handler {
	return d.api.server.Handler
}

// Close stops workers, the API server, and the store.
func (d *Daemon) Close() {
	d.api.stop()
	d.manager.Stop()
	if err := d.store.Close(); err != nil {
		d.logger.Warn("closing queue store", logging.Error(err))
	}
}

// Status summarizes daemon health for the status endpoint.
type Status struct {
	Running   bool               `json:"running"`
	StartedAt time.Time          `json:"started_at"`
	QueueDB   string             `json:"queue_db"`
	Workers   int                `json:"workers"`
	Jobs      map[string]int     `json:"jobs"`
	Checks    []preflight.Result `json:"checks"`
}

// Status gathers current health. Stats failures leave the job counts
// empty rather than failing the endpoint.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:   d.manager.Running(),
		StartedAt: d.startedAt,
		QueueDB:   d.store.Path(),
		Workers:   d.cfg.Workflow.Workers,
		Checks:    preflight.RunAll(ctx, d.cfg),
	}
	if stats, err := d.store.Stats(ctx); err == nil {
		status.Jobs = make(map[string]int, len(stats))
		for key, count := range stats {
			status.Jobs[string(key)] = count
		}
	} else {
		d.logger.Warn("queue stats unavailable", logging.Error(err))
	}
	return status
}
