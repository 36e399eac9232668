package iorderrepo

import (
	"context"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/order"
)

// IOrderRepository is the document store for order aggregates. Status changes
// are targeted field updates, never full document rewrites.
type IOrderRepository interface {
	Insert(ctx context.Context, o order.Order) error
	GetByID(ctx context.Context, orderID string) (order.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status order.Status) error
	UpdateStatusAndPayment(ctx context.Context, orderID string, status order.Status, payment order.PaymentStatus) error
	QueryByUser(ctx context.Context, userID string, page, size int64) ([]order.UserOrder, int64, error)
}
