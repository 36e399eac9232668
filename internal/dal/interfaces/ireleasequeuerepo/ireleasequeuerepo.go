package ireleasequeuerepo

import (
	"context"
	"time"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/release"
)

// IReleaseQueueRepository stores compensating releases that could not be
// applied immediately, so the release worker can retry them with backoff.
type IReleaseQueueRepository interface {
	Enqueue(ctx context.Context, rel release.PendingRelease) error
	GetPending(ctx context.Context, limit int) ([]release.PendingRelease, error)
	Delete(ctx context.Context, id int64) error
	UpdateRetry(ctx context.Context, id int64, retryCount int, lastError string, nextRetryAt time.Time) error
}
