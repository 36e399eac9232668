package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/dal/postgres"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/release"
)

// ReleaseQueueRepository implements the release retry queue for PostgreSQL.
type ReleaseQueueRepository struct {
	client *postgres.Client
}

// NewReleaseQueueRepository creates a new release queue repository.
func NewReleaseQueueRepository(client *postgres.Client) *ReleaseQueueRepository {
	return &ReleaseQueueRepository{
		client: client,
	}
}

// Enqueue adds a failed release for later retry.
func (r *ReleaseQueueRepository) Enqueue(ctx context.Context, rel release.PendingRelease) error {
	query, args, err := sq.Insert("release_queue").
		Columns(
			"order_id",
			"sku",
			"quantity",
			"retry_count",
			"max_retries",
			"last_error",
			"created_at",
			"updated_at",
			"next_retry_at",
		).
		Values(
			rel.OrderID,
			rel.SKU,
			rel.Quantity,
			rel.RetryCount,
			rel.MaxRetries,
			rel.LastError,
			rel.CreatedAt,
			rel.UpdatedAt,
			rel.NextRetryAt,
		).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.client.Pool().Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to enqueue release: %w", err)
	}

	return nil
}

// GetPending retrieves releases that are ready for retry.
func (r *ReleaseQueueRepository) GetPending(ctx context.Context, limit int) ([]release.PendingRelease, error) {
	query, args, err := sq.Select(
		"id",
		"order_id",
		"sku",
		"quantity",
		"retry_count",
		"max_retries",
		"last_error",
		"created_at",
		"updated_at",
		"next_retry_at",
	).
		From("release_queue").
		Where(sq.LtOrEq{"next_retry_at": time.Now()}).
		Where(sq.Expr("retry_count < max_retries")).
		OrderBy("next_retry_at ASC").
		Limit(uint64(limit)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.client.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query release queue: %w", err)
	}
	defer rows.Close()

	var releases []release.PendingRelease
	for rows.Next() {
		var rel release.PendingRelease
		err := rows.Scan(
			&rel.ID,
			&rel.OrderID,
			&rel.SKU,
			&rel.Quantity,
			&rel.RetryCount,
			&rel.MaxRetries,
			&rel.LastError,
			&rel.CreatedAt,
			&rel.UpdatedAt,
			&rel.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending release: %w", err)
		}
		releases = append(releases, rel)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating release queue: %w", err)
	}

	return releases, nil
}

// Delete removes a release after it has been applied.
func (r *ReleaseQueueRepository) Delete(ctx context.Context, id int64) error {
	query, args, err := sq.Delete("release_queue").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}

	if _, err := r.client.Pool().Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete release: %w", err)
	}

	return nil
}

// UpdateRetry updates retry count and error information.
func (r *ReleaseQueueRepository) UpdateRetry(
	ctx context.Context,
	id int64,
	retryCount int,
	lastError string,
	nextRetryAt time.Time,
) error {
	query, args, err := sq.Update("release_queue").
		Set("retry_count", retryCount).
		Set("last_error", lastError).
		Set("next_retry_at", nextRetryAt).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	if _, err := r.client.Pool().Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update release retry: %w", err)
	}

	return nil
}
