package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// WorkerConfig contains worker configuration.
type WorkerConfig struct {
	BatchSize         int
	PollInterval      time.Duration
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	NumWorkers        int
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:         100,
		PollInterval:      2 * time.Second,
		MaxAttempts:       5,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        2 * time.Minute,
		BackoffMultiplier: 2.0,
		NumWorkers:        2,
	}
}

// Worker drains the event outbox and fans messages out to sinks.
type Worker struct {
	config WorkerConfig
	repo   Repository
	sinks  []Sink

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWorker creates a new outbox worker.
func NewWorker(config WorkerConfig, repo Repository, sinks ...Sink) *Worker {
	return &Worker{
		config: config,
		repo:   repo,
		sinks:  sinks,
		stopCh: make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("starting event delivery worker",
		"workers", w.config.NumWorkers,
		"batch_size", w.config.BatchSize,
		"poll_interval", w.config.PollInterval,
	)

	for i := 0; i < w.config.NumWorkers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	slog.Info("event delivery worker stopped")
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.processBatch(ctx, workerID)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context, workerID int) {
	items, err := w.repo.FetchPending(ctx, w.config.BatchSize)
	if err != nil {
		slog.Error("failed to fetch pending events", "worker", workerID, "error", err)
		return
	}

	if len(items) == 0 {
		return
	}

	slog.Debug("delivering events", "worker", workerID, "count", len(items))
	recordQueueProcessed(len(items))

	for _, item := range items {
		w.processItem(ctx, item)
	}
}

func (w *Worker) processItem(ctx context.Context, item *OutboxItem) {
	start := time.Now()

	var firstErr error
	for _, recipientID := range item.Recipients {
		msg := messageFor(item, recipientID)
		for _, sink := range w.sinks {
			if err := sink.Deliver(ctx, msg); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	duration := time.Since(start)

	if firstErr != nil {
		w.handleDeliverError(ctx, item, firstErr)
		return
	}

	if err := w.repo.MarkSent(ctx, item.ID); err != nil {
		slog.Error("failed to mark event as sent", "event_id", item.ID, "error", err)
	}

	recordEventDelivered(string(item.Type), "success")
	recordDeliveryDuration(duration)

	slog.Debug("event delivered",
		"event_id", item.ID,
		"type", item.Type,
		"recipients", len(item.Recipients),
		"duration", duration,
	)
}

func (w *Worker) handleDeliverError(ctx context.Context, item *OutboxItem, err error) {
	slog.Warn("event delivery failed",
		"event_id", item.ID,
		"attempt", item.Attempts+1,
		"max_attempts", item.MaxAttempts,
		"error", err,
	)

	if !isRetryable(err) {
		if markErr := w.repo.MarkFailed(ctx, item.ID, err); markErr != nil {
			slog.Error("failed to mark event as failed", "event_id", item.ID, "error", markErr)
		}
		recordEventDelivered(string(item.Type), "failed")
		return
	}

	if item.Attempts+1 >= item.MaxAttempts {
		if markErr := w.repo.MarkFailed(ctx, item.ID, fmt.Errorf("max attempts exceeded: %w", err)); markErr != nil {
			slog.Error("failed to mark event as failed", "event_id", item.ID, "error", markErr)
		}
		recordEventDelivered(string(item.Type), "failed")
		return
	}

	nextAttempt := w.calculateNextAttempt(item.Attempts + 1)
	if markErr := w.repo.MarkForRetry(ctx, item.ID, err, nextAttempt); markErr != nil {
		slog.Error("failed to mark event for retry", "event_id", item.ID, "error", markErr)
	}
	recordEventDelivered(string(item.Type), "retry")

	slog.Info("event scheduled for retry",
		"event_id", item.ID,
		"next_attempt", nextAttempt,
	)
}

func (w *Worker) calculateNextAttempt(attempt int) time.Time {
	backoff := float64(w.config.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= w.config.BackoffMultiplier
	}

	if backoff > float64(w.config.MaxBackoff) {
		backoff = float64(w.config.MaxBackoff)
	}

	return time.Now().Add(time.Duration(backoff))
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	type retryable interface {
		IsRetryable() bool
	}
	if r, ok := err.(retryable); ok {
		return r.IsRetryable()
	}

	// Default: retry unknown errors
	return true
}

// RetryableError wraps an error and marks it as retryable or not.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

// IsRetryable returns whether the error is retryable.
func (e *RetryableError) IsRetryable() bool {
	return e.Retryable
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a retryable error.
func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: true}
}

// NewNonRetryableError creates a non-retryable error.
func NewNonRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: false}
}
