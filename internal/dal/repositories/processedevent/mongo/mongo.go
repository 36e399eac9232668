package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	mongoclient "github.com/montoyitadevelp/acme-order-pipeline/internal/dal/mongo"
)

// processedEventDocument is one idempotency ledger entry.
type processedEventDocument struct {
	EventID     string    `bson:"event_id"`
	ProcessedAt time.Time `bson:"processed_at"`
}

// ProcessedEventRepository implements the idempotency ledger on MongoDB. The
// unique index on event_id makes concurrent MarkProcessed calls for the same
// event collapse into one entry.
type ProcessedEventRepository struct {
	client *mongoclient.Client
}

// NewProcessedEventRepository creates a new processed-event repository.
func NewProcessedEventRepository(client *mongoclient.Client) *ProcessedEventRepository {
	return &ProcessedEventRepository{
		client: client,
	}
}

// Exists reports whether the event id has already been applied.
func (r *ProcessedEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	err := r.client.ProcessedEvents().
		FindOne(ctx, bson.M{"event_id": eventID}).
		Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query processed event: %w", err)
	}

	return true, nil
}

// MarkProcessed records the event id. A duplicate-key error means another
// consumer won the race, which counts as already processed.
func (r *ProcessedEventRepository) MarkProcessed(ctx context.Context, eventID string) error {
	_, err := r.client.ProcessedEvents().InsertOne(ctx, processedEventDocument{
		EventID:     eventID,
		ProcessedAt: time.Now(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record processed event: %w", err)
	}

	return nil
}
