package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/inventory"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/product"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the repository
// can be bound to a transaction by the unit of work.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InventoryRepository implements the inventory ledger for PostgreSQL.
type InventoryRepository struct {
	conn Querier
}

// NewInventoryRepository creates a new inventory repository bound to conn.
func NewInventoryRepository(conn Querier) *InventoryRepository {
	return &InventoryRepository{
		conn: conn,
	}
}

// getProduct looks up the catalog row by SKU.
func (r *InventoryRepository) getProduct(ctx context.Context, sku string) (product.Product, error) {
	query, args, err := sq.Select("id", "sku", "name", "price::text").
		From("products").
		Where(sq.Eq{"sku": sku}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return product.Product{}, fmt.Errorf("failed to build product query: %w", err)
	}

	var p product.Product
	var priceText string
	err = r.conn.QueryRow(ctx, query, args...).Scan(&p.ID, &p.SKU, &p.Name, &priceText)
	if errors.Is(err, pgx.ErrNoRows) {
		return product.Product{}, product.ErrProductNotFound
	}
	if err != nil {
		return product.Product{}, fmt.Errorf("failed to query product: %w", err)
	}

	p.Price, err = decimal.NewFromString(priceText)
	if err != nil {
		return product.Product{}, fmt.Errorf("failed to parse product price: %w", err)
	}

	return p, nil
}

// getRecord fetches the inventory row for a product, locking it when forUpdate
// is set so concurrent reservations for the same SKU serialize.
func (r *InventoryRepository) getRecord(ctx context.Context, productID int64, forUpdate bool) (inventory.Record, error) {
	builder := sq.Select("product_id", "on_hand_quantity", "reserved_quantity", "last_updated").
		From("inventory").
		Where(sq.Eq{"product_id": productID}).
		PlaceholderFormat(sq.Dollar)
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return inventory.Record{}, fmt.Errorf("failed to build inventory query: %w", err)
	}

	var rec inventory.Record
	err = r.conn.QueryRow(ctx, query, args...).
		Scan(&rec.ProductID, &rec.OnHand, &rec.Reserved, &rec.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Record{}, inventory.ErrInventoryUnavailable
	}
	if err != nil {
		return inventory.Record{}, fmt.Errorf("failed to query inventory: %w", err)
	}

	return rec, nil
}

// GetBySKU returns the product and its inventory row without locking.
func (r *InventoryRepository) GetBySKU(ctx context.Context, sku string) (product.Product, inventory.Record, error) {
	p, err := r.getProduct(ctx, sku)
	if err != nil {
		return product.Product{}, inventory.Record{}, err
	}

	rec, err := r.getRecord(ctx, p.ID, false)
	if err != nil {
		return product.Product{}, inventory.Record{}, err
	}

	return p, rec, nil
}

// Reserve increments the reserved counter for a SKU after checking that the
// requested quantity is still purchasable. The row lock taken here is the
// mutual exclusion for concurrent reservations.
func (r *InventoryRepository) Reserve(ctx context.Context, sku string, quantity int64) (product.Product, inventory.Record, error) {
	p, err := r.getProduct(ctx, sku)
	if err != nil {
		return product.Product{}, inventory.Record{}, err
	}

	rec, err := r.getRecord(ctx, p.ID, true)
	if err != nil {
		return product.Product{}, inventory.Record{}, err
	}

	if quantity > rec.Purchasable() {
		return product.Product{}, inventory.Record{}, &inventory.InsufficientError{
			SKU:         sku,
			Requested:   quantity,
			Purchasable: rec.Purchasable(),
		}
	}

	rec.Reserved += quantity
	rec.LastUpdated = time.Now()

	if err := r.updateReserved(ctx, rec); err != nil {
		return product.Product{}, inventory.Record{}, err
	}

	return p, rec, nil
}

// Release decrements the reserved counter. The row is re-fetched under lock:
// the counters may have moved since the reservation, so the stale snapshot
// from reserve time must not be written back.
func (r *InventoryRepository) Release(ctx context.Context, sku string, quantity int64) error {
	p, err := r.getProduct(ctx, sku)
	if err != nil {
		return err
	}

	rec, err := r.getRecord(ctx, p.ID, true)
	if err != nil {
		return err
	}

	rec.Reserved -= quantity
	if rec.Reserved < 0 {
		rec.Reserved = 0
	}
	rec.LastUpdated = time.Now()

	return r.updateReserved(ctx, rec)
}

func (r *InventoryRepository) updateReserved(ctx context.Context, rec inventory.Record) error {
	query, args, err := sq.Update("inventory").
		Set("reserved_quantity", rec.Reserved).
		Set("last_updated", rec.LastUpdated).
		Where(sq.Eq{"product_id": rec.ProductID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build inventory update: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update inventory: %w", err)
	}

	return nil
}
