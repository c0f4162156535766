package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"shuttle/internal/config"
	"shuttle/internal/logging"
	"shuttle/internal/queue"
)

// Manager owns the worker pool. Workers claim pending jobs from the
// store and hand them to the executor; a maintenance loop reclaims
// stale jobs and purges old terminal records.
type Manager struct {
	cfg       *config.Config
	store     *queue.Store
	executor  *Executor
	logger    *slog.Logger
	heartbeat *HeartbeatMonitor

	workers            int
	pollInterval       time.Duration
	errorRetryInterval time.Duration
	retention          time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a manager; it does not start any goroutines.
func NewManager(cfg *config.Config, store *queue.Store, executor *Executor, logger *slog.Logger) *Manager {
	workers := cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		executor: executor,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		workers:            workers,
		pollInterval:       time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		retention:          time.Duration(cfg.Workflow.CompletedRetentionDays) * 24 * time.Hour,
	}
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.wg.Add(m.workers + 1)
	for i := 0; i < m.workers; i++ {
		go m.runWorker(runCtx, i+1)
	}
	go m.runMaintenance(runCtx)

	m.logger.Info("workflow started", logging.Int("workers", m.workers))
	return nil
}

// Stop terminates background processing and waits for workers to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped")
}

// Running reports whether the worker pool is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// LastError returns the most recent queue access error, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.ClaimNextPending(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.setLastError(err)
			logger.Error("failed to claim next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_claim_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			m.sleep(ctx, m.errorRetryInterval)
			continue
		}
		if job == nil {
			m.sleep(ctx, m.pollInterval)
			continue
		}

		if err := m.executeWithHeartbeat(ctx, job); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
		}
	}
}

// executeWithHeartbeat runs the executor while a sibling goroutine keeps
// the job's heartbeat fresh.
func (m *Manager) executeWithHeartbeat(ctx context.Context, job *queue.Job) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)

	execErr := m.executor.Execute(ctx, job)
	hbCancel()
	hbWG.Wait()
	return execErr
}

func (m *Manager) runMaintenance(ctx context.Context) {
	defer m.wg.Done()

	interval := m.heartbeat.interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	reclaim := time.NewTicker(interval)
	defer reclaim.Stop()
	purge := time.NewTicker(time.Hour)
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reclaim.C:
			if err := m.heartbeat.ReclaimStale(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn("reclaim stale jobs failed; stuck jobs may remain",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check queue database access"),
				)
			}
		case <-purge.C:
			m.purgeRetention(ctx)
		}
	}
}

func (m *Manager) purgeRetention(ctx context.Context) {
	if m.retention <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-m.retention)
	purged, err := m.store.PurgeTerminalBefore(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("retention purge failed", logging.Error(err))
		}
		return
	}
	if purged > 0 {
		m.logger.Info("purged old terminal jobs", logging.Int64("count", purged))
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
