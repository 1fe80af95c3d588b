package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/profile-scores/internal/config"
	"github.com/profile-scores/internal/domain"
)

// Recomputer is the aggregation surface the worker drives
type Recomputer interface {
	RecomputeAllUserScores(ctx context.Context) (*domain.BulkRecomputeResult, error)
	SyncCache(ctx context.Context) (int, error)
}

// SyncWorker periodically recomputes every user's total score
type SyncWorker struct {
	aggregator Recomputer
	config     *config.SyncConfig
	logger     *slog.Logger
	stopCh     chan struct{}
	doneCh     chan struct{}
	mu         sync.Mutex
	running    bool
	stopping   bool
	cycle      sync.Mutex
	triggered  sync.WaitGroup
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(aggregator Recomputer, cfg *config.SyncConfig, logger *slog.Logger) *SyncWorker {
	return &SyncWorker{
		aggregator: aggregator,
		config:     cfg,
		logger:     logger,
	}
}

// Start warms the score cache if configured and begins the background loop
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	w.stopCh, w.doneCh = stopCh, doneCh
	w.mu.Unlock()

	if w.config.WarmCacheOnBoot {
		w.WarmCache(ctx)
	}

	w.logger.Info("sync worker started", "interval", w.config.Interval)

	go w.run(ctx, stopCh, doneCh)
	return nil
}

// Stop stops the background loop and waits for in-flight cycles, including
// triggered ones, to finish. Triggers are refused while it waits.
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.stopping = true
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	if running {
		close(stopCh)
		<-doneCh
	}
	w.triggered.Wait()

	w.mu.Lock()
	w.stopping = false
	w.mu.Unlock()

	if running {
		w.logger.Info("sync worker stopped")
	}
	return nil
}

// Trigger starts a recomputation cycle in the background and reports whether
// it was accepted. Stop waits for triggered cycles, whether or not the
// periodic loop is running.
func (w *SyncWorker) Trigger(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopping {
		return false
	}

	w.triggered.Add(1)
	go func() {
		defer w.triggered.Done()
		w.RunOnce(ctx)
	}()
	return true
}

// run is the main worker loop
func (w *SyncWorker) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single recomputation cycle. Overlapping calls are serialized.
func (w *SyncWorker) RunOnce(ctx context.Context) *domain.BulkRecomputeResult {
	w.cycle.Lock()
	defer w.cycle.Unlock()

	w.logger.Info("starting recompute cycle")

	result, err := w.aggregator.RecomputeAllUserScores(ctx)
	if err != nil {
		w.logger.Error("recompute cycle failed", "error", err)
		return nil
	}

	for userID, reason := range result.Failures {
		w.logger.Warn("failed to recompute user",
			"user_id", userID,
			"error", reason,
		)
	}

	w.logger.Info("recompute cycle completed",
		"duration", result.Duration,
		"users", result.Users,
		"succeeded", result.Succeeded,
		"errors", len(result.Failures),
	)
	return result
}

// WarmCache loads every stored total into the score cache
func (w *SyncWorker) WarmCache(ctx context.Context) {
	n, err := w.aggregator.SyncCache(ctx)
	if err != nil {
		w.logger.Error("failed to warm score cache", "error", err)
		return
	}
	w.logger.Info("score cache warmed", "users", n)
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
