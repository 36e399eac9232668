package iprocessedeventrepo

import "context"

// IProcessedEventRepository is the idempotency ledger. Existence of an
// event_id is the sole deduplication guard on the consume path.
type IProcessedEventRepository interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}
