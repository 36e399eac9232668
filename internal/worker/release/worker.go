package release

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/spf13/viper"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/dal/interfaces/ireleasequeuerepo"
)

// releaser is the slice of the order service the worker needs.
type releaser interface {
	ReleaseReservation(ctx context.Context, sku string, quantity int64) error
}

// Worker retries compensating inventory releases that failed on first
// attempt, so a transient store error never strands a reservation.
type Worker struct {
	queueRepo    ireleasequeuerepo.IReleaseQueueRepository
	releaser     releaser
	pollInterval time.Duration
	batchSize    int
	stopCh       chan struct{}
}

// NewWorker creates a new release worker.
func NewWorker(queueRepo ireleasequeuerepo.IReleaseQueueRepository, releaser releaser) *Worker {
	pollIntervalSeconds := viper.GetInt("release.poll_interval_seconds")
	if pollIntervalSeconds == 0 {
		pollIntervalSeconds = 15
	}

	batchSize := viper.GetInt("release.batch_size")
	if batchSize == 0 {
		batchSize = 50
	}

	return &Worker{
		queueRepo:    queueRepo,
		releaser:     releaser,
		pollInterval: time.Duration(pollIntervalSeconds) * time.Second,
		batchSize:    batchSize,
		stopCh:       make(chan struct{}),
	}
}

// Start begins processing queued releases.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Release worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Release worker shutting down")

			return
		case <-w.stopCh:
			slog.Info("Release worker stopped")

			return
		case <-ticker.C:
			w.processReleases(ctx)
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	close(w.stopCh)
}

// processReleases retrieves and applies pending releases.
func (w *Worker) processReleases(ctx context.Context) {
	releases, err := w.queueRepo.GetPending(ctx, w.batchSize)
	if err != nil {
		slog.Error("Failed to get pending releases", "error", err)

		return
	}

	if len(releases) == 0 {
		return
	}

	slog.Info("Processing queued releases", "count", len(releases))

	for _, rel := range releases {
		err := w.releaser.ReleaseReservation(ctx, rel.SKU, rel.Quantity)
		if err != nil {
			newRetryCount := rel.RetryCount + 1
			backoffSeconds := math.Pow(2, float64(newRetryCount)) * 15 // 30s, 60s, 120s, etc.
			nextRetryAt := time.Now().Add(time.Duration(backoffSeconds) * time.Second)

			slog.Warn("Failed to apply queued release, will retry",
				"release_id", rel.ID,
				"order_id", rel.OrderID,
				"sku", rel.SKU,
				"retry_count", newRetryCount,
				"next_retry", nextRetryAt,
				"error", err,
			)

			if err := w.queueRepo.UpdateRetry(ctx, rel.ID, newRetryCount, err.Error(), nextRetryAt); err != nil {
				slog.Error("Failed to update release retry information", "release_id", rel.ID, "error", err)
			}

			continue
		}

		if err := w.queueRepo.Delete(ctx, rel.ID); err != nil {
			slog.Error("Failed to delete release after applying it", "release_id", rel.ID, "error", err)

			continue
		}

		slog.Info("Queued release applied",
			"release_id", rel.ID,
			"order_id", rel.OrderID,
			"sku", rel.SKU,
			"quantity", rel.Quantity,
		)
	}
}
