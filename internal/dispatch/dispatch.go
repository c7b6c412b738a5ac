// Package dispatch feeds queued jobs to a bounded worker pool. Jobs
// arrive either directly through Enqueue or through a recovery poll
// that picks up queued rows the process missed (crashes, restarts,
// rows written by another instance).
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/azadk/ocrhub/internal/store"
)

// ErrQueueFull is returned by Enqueue when the dispatch queue has no
// free slot. The recovery poll will pick the job up later.
var ErrQueueFull = errors.New("dispatch queue full")

// JobRunner processes one job to completion. Implemented by the
// pipeline orchestrator.
type JobRunner interface {
	RunJob(ctx context.Context, jobID string) error
}

// Dispatcher owns the job queue and worker pool. All workers pull
// from a single shared queue.
type Dispatcher struct {
	runner       JobRunner
	store        store.Store
	logger       *slog.Logger
	workerCount  int
	pollInterval time.Duration

	queue chan string

	// pending holds job IDs that are queued or running, so a job is
	// never dispatched twice concurrently.
	mu      sync.Mutex
	pending map[string]struct{}

	inFlight atomic.Int32
}

// Config configures a Dispatcher.
type Config struct {
	Runner JobRunner
	Store  store.Store
	Logger *slog.Logger

	// WorkerCount is the number of jobs processed concurrently.
	// Defaults to 1.
	WorkerCount int

	// QueueSize bounds the dispatch queue. Defaults to 100.
	QueueSize int

	// PollInterval is how often queued rows are re-scanned. Defaults
	// to 30 seconds when zero; negative disables the recovery poll.
	PollInterval time.Duration
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 30 * time.Second
	}

	return &Dispatcher{
		runner:       cfg.Runner,
		store:        cfg.Store,
		logger:       logger.With("component", "dispatch", "workers", workerCount),
		workerCount:  workerCount,
		pollInterval: pollInterval,
		queue:        make(chan string, queueSize),
		pending:      make(map[string]struct{}),
	}
}

// Enqueue submits a job for processing. Idempotent: a job already
// queued or running is accepted without being queued again.
func (d *Dispatcher) Enqueue(jobID string) error {
	d.mu.Lock()
	if _, ok := d.pending[jobID]; ok {
		d.mu.Unlock()
		return nil
	}
	d.pending[jobID] = struct{}{}
	d.mu.Unlock()

	select {
	case d.queue <- jobID:
		return nil
	default:
		d.release(jobID)
		return fmt.Errorf("%w: job %s", ErrQueueFull, jobID)
	}
}

// Start runs the workers and the recovery poll. Blocks until ctx is
// cancelled and all workers have drained.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("dispatcher starting", "poll_interval", d.pollInterval)

	var wg sync.WaitGroup
	for i := 0; i < d.workerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.worker(ctx, id)
		}(i)
	}

	if d.pollInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.pollLoop(ctx)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-d.queue:
			d.inFlight.Add(1)
			if err := d.runner.RunJob(ctx, jobID); err != nil {
				d.logger.Error("job run failed", "worker_id", id, "job_id", jobID, "error", err)
			}
			d.inFlight.Add(-1)
			d.release(jobID)
		}
	}
}

// pollLoop re-scans queued rows on an interval. An immediate first
// scan picks up jobs left queued by a previous run.
func (d *Dispatcher) pollLoop(ctx context.Context) {
	d.pollOnce(ctx)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.pollOnce(ctx)
		}
	}
}

func (d *Dispatcher) pollOnce(ctx context.Context) {
	ids, err := d.store.QueuedJobIDs(ctx)
	if err != nil {
		d.logger.Warn("recovery poll failed", "error", err)
		return
	}
	for _, id := range ids {
		if err := d.Enqueue(id); err != nil {
			d.logger.Warn("recovery enqueue failed", "job_id", id, "error", err)
			return
		}
	}
}

func (d *Dispatcher) release(jobID string) {
	d.mu.Lock()
	delete(d.pending, jobID)
	d.mu.Unlock()
}

// Status describes the dispatcher's current load.
type Status struct {
	Workers    int `json:"workers"`
	InFlight   int `json:"in_flight"`
	QueueDepth int `json:"queue_depth"`
}

// Status returns the current load.
func (d *Dispatcher) Status() Status {
	return Status{
		Workers:    d.workerCount,
		InFlight:   int(d.inFlight.Load()),
		QueueDepth: len(d.queue),
	}
}
