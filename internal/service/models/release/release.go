package release

import "time"

// PendingRelease is a compensating inventory release that failed and is
// waiting to be retried by the release worker.
type PendingRelease struct {
	ID          int64
	OrderID     string
	SKU         string
	Quantity    int64
	RetryCount  int
	MaxRetries  int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	NextRetryAt time.Time
}
