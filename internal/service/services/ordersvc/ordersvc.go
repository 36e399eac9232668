package ordersvc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/dal/interfaces/iinventoryrepo"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/dal/interfaces/iorderrepo"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/dal/interfaces/ireleasequeuerepo"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/dal/postgres"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/dal/uow"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/customer"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/order"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/release"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/services/paymentsvc"
)

const defaultReleaseMaxRetries = 5

// unitOfWork scopes inventory mutations to one relational transaction.
type unitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	InventoryRepository() iinventoryrepo.IInventoryRepository
}

// producer is the slice of the event producer the saga needs.
type producer interface {
	PublishOrderCreated(ctx context.Context, orderID string, cust customer.Customer, items []order.Item, background bool) error
}

// OrderService coordinates the order creation saga: reserve inventory in one
// relational transaction, record a tentative order document, then run the
// payment/publish phase detached from the request.
type OrderService struct {
	pgClient     *postgres.Client
	newUOW       func() unitOfWork
	orderRepo    iorderrepo.IOrderRepository
	releaseQueue ireleasequeuerepo.IReleaseQueueRepository
	producer     producer
	gateway      paymentsvc.Gateway
	taxRate      decimal.Decimal

	// Exactly one background phase runs per created order. The group tracks
	// them so shutdown can drain instead of abandoning orders mid-saga.
	background sync.WaitGroup
}

// option is a function that configures the OrderService.
type option func(*OrderService)

// MustNewOrderService creates a new OrderService.
func MustNewOrderService(opts ...option) *OrderService {
	s := &OrderService{
		taxRate: mustTaxRate(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.newUOW == nil {
		s.newUOW = func() unitOfWork {
			return uow.NewUnitOfWork(s.pgClient)
		}
	}

	return s
}

// WithPostgresClient sets the Postgres client for the OrderService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *OrderService) {
		s.pgClient = pgClient
	}
}

// WithUnitOfWorkFactory overrides how transactions are opened.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithUnitOfWorkFactory(f func() unitOfWork) option {
	return func(s *OrderService) {
		s.newUOW = f
	}
}

// WithOrderRepository sets the order document repository.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderRepository(repo iorderrepo.IOrderRepository) option {
	return func(s *OrderService) {
		s.orderRepo = repo
	}
}

// WithReleaseQueue sets the release retry queue.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithReleaseQueue(repo ireleasequeuerepo.IReleaseQueueRepository) option {
	return func(s *OrderService) {
		s.releaseQueue = repo
	}
}

// WithProducer sets the event producer.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithProducer(p producer) option {
	return func(s *OrderService) {
		s.producer = p
	}
}

// WithGateway sets the payment gateway.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithGateway(g paymentsvc.Gateway) option {
	return func(s *OrderService) {
		s.gateway = g
	}
}

func mustTaxRate() decimal.Decimal {
	rate := viper.GetString("order.tax_rate")
	if rate == "" {
		rate = "0.08"
	}

	parsed, err := decimal.NewFromString(rate)
	if err != nil {
		panic("invalid order.tax_rate: " + err.Error())
	}

	return parsed
}

// CreateOrder runs the synchronous half of the saga and returns immediately
// with a pending summary; payment and publishing happen in the background.
func (s *OrderService) CreateOrder(
	ctx context.Context,
	cust customer.Customer,
	items []order.ItemRequest,
) (order.CreatedSummary, error) {
	return s.createOrder(ctx, cust, items, true)
}

// ReplayOrder re-runs the creation path from raw event fields. Publishing is
// suppressed: a replayed order must not emit a fresh ORDER_CREATED, or every
// replay would feed the bus another copy of itself.
func (s *OrderService) ReplayOrder(
	ctx context.Context,
	cust customer.Customer,
	items []order.ItemRequest,
) (order.CreatedSummary, error) {
	return s.createOrder(ctx, cust, items, false)
}

func (s *OrderService) createOrder(
	ctx context.Context,
	cust customer.Customer,
	items []order.ItemRequest,
	publish bool,
) (order.CreatedSummary, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	if err := cust.Validate(); err != nil {
		return order.CreatedSummary{}, err
	}
	if err := order.ValidateItems(items); err != nil {
		return order.CreatedSummary{}, err
	}

	reserved, subtotal, err := s.reserveItems(ctx, items)
	if err != nil {
		return order.CreatedSummary{}, err
	}

	tax := subtotal.Mul(s.taxRate).Round(2)
	total := subtotal.Add(tax)

	now := time.Now()
	o := order.Order{
		OrderID:  order.NewOrderID(),
		Status:   order.StatusPending,
		Customer: cust,
		Items:    reserved,
		Pricing: order.Pricing{
			Subtotal: subtotal,
			Tax:      tax,
			Total:    total,
		},
		Payment: order.Payment{
			Status:        order.PaymentPending,
			TransactionID: order.NewTransactionID(),
		},
		CreatedAt:     now,
		UpdatedAt:     now,
		SchemaVersion: order.SchemaVersion,
	}

	if err := s.orderRepo.Insert(ctx, o); err != nil {
		// The reservations are already committed; the caller must see a
		// failure, not a silently stranded reservation.
		s.releaseReservations(ctx, o.OrderID, reserved)

		return order.CreatedSummary{}, fmt.Errorf("order persistence failed: %w", err)
	}

	s.background.Add(1)
	go s.processPaymentAndPublish(o, publish)

	slog.Info("Order created", "order_id", o.OrderID, "total", total.StringFixed(2))

	return order.CreatedSummary{
		OrderID:        o.OrderID,
		Status:         o.Status,
		EstimatedTotal: total,
		CreatedAt:      o.CreatedAt,
	}, nil
}

// reserveItems reserves every line item inside one transaction. Any failure
// rolls the whole transaction back, undoing earlier reservations atomically.
func (s *OrderService) reserveItems(
	ctx context.Context,
	items []order.ItemRequest,
) ([]order.Item, decimal.Decimal, error) {
	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return nil, decimal.Zero, err
	}

	reserved := make([]order.Item, 0, len(items))
	subtotal := decimal.Zero

	for _, item := range items {
		p, _, err := work.InventoryRepository().Reserve(ctx, item.SKU, item.Quantity)
		if err != nil {
			if rbErr := work.Rollback(ctx); rbErr != nil {
				slog.Error("Failed to roll back reservation transaction", "error", rbErr)
			}

			return nil, decimal.Zero, err
		}

		reserved = append(reserved, order.Item{
			SKU:      item.SKU,
			Quantity: item.Quantity,
			Price:    p.Price,
		})
		subtotal = subtotal.Add(p.Price.Mul(decimal.NewFromInt(item.Quantity)))
	}

	if err := work.Commit(ctx); err != nil {
		if rbErr := work.Rollback(ctx); rbErr != nil {
			slog.Error("Failed to roll back reservation transaction", "error", rbErr)
		}

		return nil, decimal.Zero, err
	}

	return reserved, subtotal, nil
}

// processPaymentAndPublish is the detached background phase of the saga. It
// never propagates errors to any caller; outcomes are absorbed into the
// order's persisted status.
func (s *OrderService) processPaymentAndPublish(o order.Order, publish bool) {
	defer s.background.Done()

	// The request context is gone by the time this runs.
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in background order phase", "order_id", o.OrderID, "panic", r)
			s.markError(ctx, o)
		}
	}()

	approved, err := s.gateway.Charge(ctx, o.OrderID, o.Pricing.Total)
	if err != nil {
		slog.Error("Payment gateway failure", "order_id", o.OrderID, "error", err)
		s.markError(ctx, o)

		return
	}

	if !approved {
		slog.Info("Payment declined", "order_id", o.OrderID)
		if err := s.orderRepo.UpdateStatusAndPayment(ctx, o.OrderID, order.StatusCancelled, order.PaymentFailed); err != nil {
			slog.Error("Failed to mark order cancelled", "order_id", o.OrderID, "error", err)
		}
		s.releaseReservations(ctx, o.OrderID, o.Items)

		return
	}

	if err := s.orderRepo.UpdateStatusAndPayment(ctx, o.OrderID, order.StatusProcessing, order.PaymentCompleted); err != nil {
		slog.Error("Failed to mark order processing", "order_id", o.OrderID, "error", err)
		s.markError(ctx, o)

		return
	}

	if publish {
		if err := s.producer.PublishOrderCreated(ctx, o.OrderID, o.Customer, o.Items, true); err != nil {
			// Recoverable, not fatal: the order stays processing with its
			// inventory reserved, discoverable through its status.
			slog.Warn("Failed to publish order created event", "order_id", o.OrderID, "error", err)

			return
		}
	}

	if err := s.orderRepo.UpdateStatus(ctx, o.OrderID, order.StatusConfirmed); err != nil {
		slog.Error("Failed to mark order confirmed", "order_id", o.OrderID, "error", err)
	}
}

// markError is the generic background failure fallback: an order stuck
// processing forever with unreleased inventory is the one outcome this phase
// must prevent.
func (s *OrderService) markError(ctx context.Context, o order.Order) {
	if err := s.orderRepo.UpdateStatus(ctx, o.OrderID, order.StatusError); err != nil {
		slog.Error("Failed to mark order errored", "order_id", o.OrderID, "error", err)
	}
	s.releaseReservations(ctx, o.OrderID, o.Items)
}

// releaseReservations compensates committed reservations. Each release runs
// in its own transaction; a release that fails is queued for the release
// worker instead of being dropped.
func (s *OrderService) releaseReservations(ctx context.Context, orderID string, items []order.Item) {
	for _, item := range items {
		if err := s.releaseOne(ctx, item); err != nil {
			slog.Error("Failed to release reservation, queueing for retry",
				"order_id", orderID,
				"sku", item.SKU,
				"quantity", item.Quantity,
				"error", err,
			)
			s.enqueueRelease(ctx, orderID, item, err)

			continue
		}

		slog.Info("Reservation released", "order_id", orderID, "sku", item.SKU, "quantity", item.Quantity)
	}
}

func (s *OrderService) releaseOne(ctx context.Context, item order.Item) error {
	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return err
	}

	if err := work.InventoryRepository().Release(ctx, item.SKU, item.Quantity); err != nil {
		if rbErr := work.Rollback(ctx); rbErr != nil {
			slog.Error("Failed to roll back release transaction", "error", rbErr)
		}

		return err
	}

	return work.Commit(ctx)
}

func (s *OrderService) enqueueRelease(ctx context.Context, orderID string, item order.Item, cause error) {
	if s.releaseQueue == nil {
		return
	}

	now := time.Now()
	err := s.releaseQueue.Enqueue(ctx, release.PendingRelease{
		OrderID:     orderID,
		SKU:         item.SKU,
		Quantity:    item.Quantity,
		MaxRetries:  defaultReleaseMaxRetries,
		LastError:   cause.Error(),
		CreatedAt:   now,
		UpdatedAt:   now,
		NextRetryAt: now,
	})
	if err != nil {
		slog.Error("Failed to enqueue release for retry", "order_id", orderID, "sku", item.SKU, "error", err)
	}
}

// ReleaseReservation applies one queued release; used by the release worker.
func (s *OrderService) ReleaseReservation(ctx context.Context, sku string, quantity int64) error {
	return s.releaseOne(ctx, order.Item{SKU: sku, Quantity: quantity})
}

// GetOrderByID is the point-lookup read model.
func (s *OrderService) GetOrderByID(ctx context.Context, orderID string) (order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.GetOrderByID")
	defer span.End()

	return s.orderRepo.GetByID(ctx, orderID)
}

// GetOrdersByUser is the paginated list-by-user read model, newest first.
func (s *OrderService) GetOrdersByUser(ctx context.Context, userID string, page, size int64) (order.Page, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.GetOrdersByUser")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}

	items, total, err := s.orderRepo.QueryByUser(ctx, userID, page, size)
	if err != nil {
		return order.Page{}, err
	}

	pages := total / size
	if total%size != 0 {
		pages++
	}

	return order.Page{
		Items: items,
		Total: total,
		Page:  page,
		Size:  size,
		Pages: pages,
	}, nil
}

// Stop drains in-flight background phases so shutdown never abandons an
// order between payment and its terminal status.
func (s *OrderService) Stop() {
	s.background.Wait()
}
