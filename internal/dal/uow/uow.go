package uow

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/dal/interfaces/iinventoryrepo"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/dal/postgres"
	inventoryrepo "github.com/montoyitadevelp/acme-order-pipeline/internal/dal/repositories/inventory/postgres"
)

// unitOfWork scopes repositories to one relational transaction so that all
// reservations for an order commit or roll back together.
type unitOfWork struct {
	client        *postgres.Client
	tx            pgx.Tx
	inventoryRepo iinventoryrepo.IInventoryRepository
}

// NewUnitOfWork creates a unit of work over the Postgres client. Until Begin
// is called the repositories run directly against the pool.
func NewUnitOfWork(client *postgres.Client) *unitOfWork {
	return &unitOfWork{
		client:        client,
		inventoryRepo: inventoryrepo.NewInventoryRepository(client.Pool()),
	}
}

func (u *unitOfWork) InventoryRepository() iinventoryrepo.IInventoryRepository {
	return u.inventoryRepo
}

func (u *unitOfWork) Begin(ctx context.Context) error {
	tx, err := u.client.Pool().Begin(ctx)
	if err != nil {
		return err
	}

	u.tx = tx
	u.inventoryRepo = inventoryrepo.NewInventoryRepository(tx)

	return nil
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}

	return u.tx.Commit(ctx)
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}

	return u.tx.Rollback(ctx)
}
