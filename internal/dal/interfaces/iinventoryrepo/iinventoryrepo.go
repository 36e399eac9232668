package iinventoryrepo

import (
	"context"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/inventory"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/product"
)

// IInventoryRepository is the relational inventory ledger. Reserve and Release
// run against whatever transaction the repository is bound to; binding is the
// unit of work's job.
type IInventoryRepository interface {
	// GetBySKU returns the product and its inventory row without locking.
	GetBySKU(ctx context.Context, sku string) (product.Product, inventory.Record, error)

	// Reserve locks the inventory row, checks purchasable stock and increments
	// the reserved counter. Returns the product snapshot for pricing.
	Reserve(ctx context.Context, sku string, quantity int64) (product.Product, inventory.Record, error)

	// Release locks the inventory row, re-fetches current counters and
	// decrements the reserved counter, clamping at zero.
	Release(ctx context.Context, sku string, quantity int64) error
}
