package inventorysvc

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/dal/interfaces/iinventoryrepo"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/inventory"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/product"
)

// InventoryService is the read-only inventory projection by SKU.
type InventoryService struct {
	inventoryRepo iinventoryrepo.IInventoryRepository
}

// option is a function that configures the InventoryService.
type option func(*InventoryService)

// MustNewInventoryService creates a new InventoryService.
func MustNewInventoryService(opts ...option) *InventoryService {
	s := &InventoryService{}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WithInventoryRepository sets the inventory repository.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithInventoryRepository(repo iinventoryrepo.IInventoryRepository) option {
	return func(s *InventoryService) {
		s.inventoryRepo = repo
	}
}

// GetBySKU returns the inventory summary for one SKU.
func (s *InventoryService) GetBySKU(ctx context.Context, sku string) (inventory.Summary, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "InventoryService.GetBySKU")
	defer span.End()

	p, rec, err := s.inventoryRepo.GetBySKU(ctx, sku)
	if errors.Is(err, product.ErrProductNotFound) || errors.Is(err, inventory.ErrInventoryUnavailable) {
		return inventory.Summary{}, inventory.ErrInventoryNotFound
	}
	if err != nil {
		return inventory.Summary{}, err
	}

	return inventory.Summary{
		SKU:         p.SKU,
		ProductName: p.Name,
		OnHand:      rec.OnHand,
		Reserved:    rec.Reserved,
		Purchasable: rec.Purchasable(),
	}, nil
}
