package ordersvc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/dal/interfaces/iinventoryrepo"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/customer"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/inventory"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/order"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/product"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/release"
)

type stockRow struct {
	prod product.Product
	rec  inventory.Record
}

// fakeStock is an in-memory inventory ledger with transactional semantics:
// a fakeUOW stages changes against a copy and Commit writes them back.
type fakeStock struct {
	mu         sync.Mutex
	rows       map[string]stockRow
	releaseErr error
	commits    int
	rollbacks  int
}

func newFakeStock() *fakeStock {
	return &fakeStock{rows: map[string]stockRow{}}
}

func (s *fakeStock) add(sku, price string, onHand, reserved int64) {
	id := int64(len(s.rows) + 1)
	s.rows[sku] = stockRow{
		prod: product.Product{ID: id, SKU: sku, Name: "Product " + sku, Price: decimal.RequireFromString(price)},
		rec:  inventory.Record{ProductID: id, OnHand: onHand, Reserved: reserved},
	}
}

func (s *fakeStock) reserved(sku string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rows[sku].rec.Reserved
}

func (s *fakeStock) rollbackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rollbacks
}

type fakeUOW struct {
	store  *fakeStock
	staged map[string]stockRow
}

func (u *fakeUOW) Begin(_ context.Context) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	u.staged = make(map[string]stockRow, len(u.store.rows))
	for sku, row := range u.store.rows {
		u.staged[sku] = row
	}

	return nil
}

func (u *fakeUOW) Commit(_ context.Context) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	for sku, row := range u.staged {
		u.store.rows[sku] = row
	}
	u.store.commits++

	return nil
}

func (u *fakeUOW) Rollback(_ context.Context) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	u.staged = nil
	u.store.rollbacks++

	return nil
}

func (u *fakeUOW) InventoryRepository() iinventoryrepo.IInventoryRepository {
	return &fakeInventoryRepo{u: u}
}

type fakeInventoryRepo struct {
	u *fakeUOW
}

func (r *fakeInventoryRepo) GetBySKU(_ context.Context, sku string) (product.Product, inventory.Record, error) {
	row, ok := r.u.staged[sku]
	if !ok {
		return product.Product{}, inventory.Record{}, product.ErrProductNotFound
	}

	return row.prod, row.rec, nil
}

func (r *fakeInventoryRepo) Reserve(_ context.Context, sku string, quantity int64) (product.Product, inventory.Record, error) {
	row, ok := r.u.staged[sku]
	if !ok {
		return product.Product{}, inventory.Record{}, product.ErrProductNotFound
	}

	if quantity > row.rec.Purchasable() {
		return product.Product{}, inventory.Record{}, &inventory.InsufficientError{
			SKU:         sku,
			Requested:   quantity,
			Purchasable: row.rec.Purchasable(),
		}
	}

	row.rec.Reserved += quantity
	r.u.staged[sku] = row

	return row.prod, row.rec, nil
}

func (r *fakeInventoryRepo) Release(_ context.Context, sku string, quantity int64) error {
	if r.u.store.releaseErr != nil {
		return r.u.store.releaseErr
	}

	row, ok := r.u.staged[sku]
	if !ok {
		return inventory.ErrInventoryUnavailable
	}

	row.rec.Reserved -= quantity
	if row.rec.Reserved < 0 {
		row.rec.Reserved = 0
	}
	r.u.staged[sku] = row

	return nil
}

type fakeOrderRepo struct {
	mu         sync.Mutex
	docs       map[string]order.Order
	insertErr  error
	queryItems []order.UserOrder
	queryTotal int64
}

func (r *fakeOrderRepo) Insert(_ context.Context, o order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.insertErr != nil {
		return r.insertErr
	}
	r.docs[o.OrderID] = o

	return nil
}

func (r *fakeOrderRepo) GetByID(_ context.Context, orderID string) (order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.docs[orderID]
	if !ok {
		return order.Order{}, order.ErrOrderNotFound
	}

	return o, nil
}

func (r *fakeOrderRepo) UpdateStatus(_ context.Context, orderID string, status order.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.docs[orderID]
	if !ok {
		return order.ErrOrderNotFound
	}
	o.Status = status
	r.docs[orderID] = o

	return nil
}

func (r *fakeOrderRepo) UpdateStatusAndPayment(_ context.Context, orderID string, status order.Status, payment order.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.docs[orderID]
	if !ok {
		return order.ErrOrderNotFound
	}
	o.Status = status
	o.Payment.Status = payment
	r.docs[orderID] = o

	return nil
}

func (r *fakeOrderRepo) QueryByUser(_ context.Context, _ string, _, _ int64) ([]order.UserOrder, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.queryItems, r.queryTotal, nil
}

func (r *fakeOrderRepo) get(t *testing.T, orderID string) order.Order {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.docs[orderID]
	if !ok {
		t.Fatalf("order %s not found in repository", orderID)
	}

	return o
}

func (r *fakeOrderRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.docs)
}

type fakeProducer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (p *fakeProducer) PublishOrderCreated(_ context.Context, orderID string, _ customer.Customer, _ []order.Item, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.calls = append(p.calls, orderID)

	return nil
}

func (p *fakeProducer) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.calls)
}

type fakeGateway struct {
	approved bool
	err      error
}

func (g *fakeGateway) Charge(_ context.Context, _ string, _ decimal.Decimal) (bool, error) {
	return g.approved, g.err
}

type fakeReleaseQueue struct {
	mu       sync.Mutex
	enqueued []release.PendingRelease
}

func (q *fakeReleaseQueue) Enqueue(_ context.Context, rel release.PendingRelease) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.enqueued = append(q.enqueued, rel)

	return nil
}

func (q *fakeReleaseQueue) GetPending(_ context.Context, _ int) ([]release.PendingRelease, error) {
	return nil, nil
}

func (q *fakeReleaseQueue) Delete(_ context.Context, _ int64) error {
	return nil
}

func (q *fakeReleaseQueue) UpdateRetry(_ context.Context, _ int64, _ int, _ string, _ time.Time) error {
	return nil
}

type harness struct {
	svc    *OrderService
	stock  *fakeStock
	orders *fakeOrderRepo
	prod   *fakeProducer
	queue  *fakeReleaseQueue
	gw     *fakeGateway
}

func newHarness() *harness {
	stock := newFakeStock()
	orders := &fakeOrderRepo{docs: map[string]order.Order{}}
	prod := &fakeProducer{}
	queue := &fakeReleaseQueue{}
	gw := &fakeGateway{approved: true}

	svc := MustNewOrderService(
		WithUnitOfWorkFactory(func() unitOfWork { return &fakeUOW{store: stock} }),
		WithOrderRepository(orders),
		WithReleaseQueue(queue),
		WithProducer(prod),
		WithGateway(gw),
	)

	return &harness{svc: svc, stock: stock, orders: orders, prod: prod, queue: queue, gw: gw}
}

func testCustomer() customer.Customer {
	return customer.Customer{UserID: "user-42", Email: "buyer@example.com"}
}

func TestCreateOrderComputesFixedPointTotals(t *testing.T) {
	h := newHarness()
	h.stock.add("WIDGET-1", "10.00", 10, 0)

	summary, err := h.svc.CreateOrder(context.Background(), testCustomer(), []order.ItemRequest{
		{SKU: "WIDGET-1", Quantity: 2},
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	if summary.Status != order.StatusPending {
		t.Errorf("expected status %q right after creation, got %q", order.StatusPending, summary.Status)
	}
	if !summary.EstimatedTotal.Equal(decimal.RequireFromString("21.60")) {
		t.Errorf("expected estimated total 21.60, got %s", summary.EstimatedTotal)
	}

	h.svc.Stop()

	o := h.orders.get(t, summary.OrderID)
	if !o.Pricing.Subtotal.Equal(decimal.RequireFromString("20.00")) {
		t.Errorf("expected subtotal 20.00, got %s", o.Pricing.Subtotal)
	}
	if !o.Pricing.Tax.Equal(decimal.RequireFromString("1.60")) {
		t.Errorf("expected tax 1.60, got %s", o.Pricing.Tax)
	}
	if !o.Pricing.Total.Equal(decimal.RequireFromString("21.60")) {
		t.Errorf("expected total 21.60, got %s", o.Pricing.Total)
	}
	if o.Status != order.StatusConfirmed {
		t.Errorf("expected status %q after approved payment and publish, got %q", order.StatusConfirmed, o.Status)
	}
	if o.Payment.Status != order.PaymentCompleted {
		t.Errorf("expected payment status %q, got %q", order.PaymentCompleted, o.Payment.Status)
	}
	if got := h.stock.reserved("WIDGET-1"); got != 2 {
		t.Errorf("expected 2 units reserved, got %d", got)
	}
	if got := h.prod.published(); got != 1 {
		t.Errorf("expected 1 published event, got %d", got)
	}
}

func TestCreateOrderInsufficientStockLeavesNothingBehind(t *testing.T) {
	h := newHarness()
	h.stock.add("WIDGET-1", "10.00", 5, 4)

	_, err := h.svc.CreateOrder(context.Background(), testCustomer(), []order.ItemRequest{
		{SKU: "WIDGET-1", Quantity: 2},
	})

	var insufficient *inventory.InsufficientError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientError, got %v", err)
	}
	if insufficient.Requested != 2 || insufficient.Purchasable != 1 {
		t.Errorf("expected requested=2 purchasable=1, got requested=%d purchasable=%d",
			insufficient.Requested, insufficient.Purchasable)
	}

	if got := h.stock.reserved("WIDGET-1"); got != 4 {
		t.Errorf("expected reserved counter untouched at 4, got %d", got)
	}
	if got := h.orders.count(); got != 0 {
		t.Errorf("expected no order document, found %d", got)
	}
	if got := h.stock.rollbackCount(); got != 1 {
		t.Errorf("expected 1 rollback, got %d", got)
	}
}

func TestCreateOrderAbortUndoesEarlierReservations(t *testing.T) {
	h := newHarness()
	h.stock.add("WIDGET-1", "10.00", 10, 0)
	h.stock.add("GADGET-2", "5.00", 3, 3)

	_, err := h.svc.CreateOrder(context.Background(), testCustomer(), []order.ItemRequest{
		{SKU: "WIDGET-1", Quantity: 1},
		{SKU: "GADGET-2", Quantity: 1},
	})

	var insufficient *inventory.InsufficientError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientError for GADGET-2, got %v", err)
	}

	// The first item was reserved in the same transaction; the rollback
	// must undo it.
	if got := h.stock.reserved("WIDGET-1"); got != 0 {
		t.Errorf("expected WIDGET-1 reservation rolled back to 0, got %d", got)
	}
	if got := h.orders.count(); got != 0 {
		t.Errorf("expected no order document, found %d", got)
	}
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	h := newHarness()

	_, err := h.svc.CreateOrder(context.Background(), testCustomer(), []order.ItemRequest{
		{SKU: "NO-SUCH-SKU", Quantity: 1},
	})
	if !errors.Is(err, product.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCreateOrderRejectsInvalidInput(t *testing.T) {
	h := newHarness()
	h.stock.add("WIDGET-1", "10.00", 10, 0)

	_, err := h.svc.CreateOrder(context.Background(), testCustomer(), nil)
	if !errors.Is(err, order.ErrNoItems) {
		t.Errorf("expected ErrNoItems for empty item list, got %v", err)
	}

	_, err = h.svc.CreateOrder(context.Background(), testCustomer(), []order.ItemRequest{
		{SKU: "WIDGET-1", Quantity: 0},
	})
	if !errors.Is(err, order.ErrBadQuantity) {
		t.Errorf("expected ErrBadQuantity for zero quantity, got %v", err)
	}

	_, err = h.svc.CreateOrder(context.Background(), customer.Customer{UserID: "user-42"}, []order.ItemRequest{
		{SKU: "WIDGET-1", Quantity: 1},
	})
	if !errors.Is(err, customer.ErrInvalidCustomer) {
		t.Errorf("expected ErrInvalidCustomer for missing email, got %v", err)
	}

	if got := h.stock.reserved("WIDGET-1"); got != 0 {
		t.Errorf("expected no reservations after rejected requests, got %d", got)
	}
}

func TestPaymentDeclineCancelsOrderAndReleasesStock(t *testing.T) {
	h := newHarness()
	h.gw.approved = false
	h.stock.add("WIDGET-1", "10.00", 10, 0)

	summary, err := h.svc.CreateOrder(context.Background(), testCustomer(), []order.ItemRequest{
		{SKU: "WIDGET-1", Quantity: 2},
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	h.svc.Stop()

	o := h.orders.get(t, summary.OrderID)
	if o.Status != order.StatusCancelled {
		t.Errorf("expected status %q after decline, got %q", order.StatusCancelled, o.Status)
	}
	if o.Payment.Status != order.PaymentFailed {
		t.Errorf("expected payment status %q, got %q", order.PaymentFailed, o.Payment.Status)
	}
	if got := h.stock.reserved("WIDGET-1"); got != 0 {
		t.Errorf("expected reservation released, got %d still reserved", got)
	}
	if got := h.prod.published(); got != 0 {
		t.Errorf("expected no event for a declined order, got %d", got)
	}
}

func TestPublishFailureLeavesOrderProcessing(t *testing.T) {
	h := newHarness()
	h.prod.err = errors.New("broker unreachable")
	h.stock.add("WIDGET-1", "10.00", 10, 0)

	summary, err := h.svc.CreateOrder(context.Background(), testCustomer(), []order.ItemRequest{
		{SKU: "WIDGET-1", Quantity: 2},
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	h.svc.Stop()

	// Payment succeeded, so the inventory stays reserved and the order is
	// left in a recoverable non-terminal state.
	o := h.orders.get(t, summary.OrderID)
	if o.Status != order.StatusProcessing {
		t.Errorf("expected status %q after publish failure, got %q", order.StatusProcessing, o.Status)
	}
	if o.Payment.Status != order.PaymentCompleted {
		t.Errorf("expected payment status %q, got %q", order.PaymentCompleted, o.Payment.Status)
	}
	if got := h.stock.reserved("WIDGET-1"); got != 2 {
		t.Errorf("expected reservation kept at 2, got %d", got)
	}
}

func TestGatewayFailureMarksOrderErroredAndReleases(t *testing.T) {
	h := newHarness()
	h.gw.err = errors.New("gateway timeout")
	h.stock.add("WIDGET-1", "10.00", 10, 0)

	summary, err := h.svc.CreateOrder(context.Background(), testCustomer(), []order.ItemRequest{
		{SKU: "WIDGET-1", Quantity: 2},
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	h.svc.Stop()

	o := h.orders.get(t, summary.OrderID)
	if o.Status != order.StatusError {
		t.Errorf("expected status %q after gateway failure, got %q", order.StatusError, o.Status)
	}
	if got := h.stock.reserved("WIDGET-1"); got != 0 {
		t.Errorf("expected reservation released, got %d still reserved", got)
	}
}

func TestDocumentInsertFailureReleasesReservations(t *testing.T) {
	h := newHarness()
	h.orders.insertErr = errors.New("document store down")
	h.stock.add("WIDGET-1", "10.00", 10, 0)

	_, err := h.svc.CreateOrder(context.Background(), testCustomer(), []order.ItemRequest{
		{SKU: "WIDGET-1", Quantity: 2},
	})
	if err == nil {
		t.Fatal("expected CreateOrder to fail when the document insert fails")
	}

	h.svc.Stop()

	if got := h.stock.reserved("WIDGET-1"); got != 0 {
		t.Errorf("expected reservation released after insert failure, got %d", got)
	}
	if got := h.prod.published(); got != 0 {
		t.Errorf("expected no event after insert failure, got %d", got)
	}
}

func TestFailedReleaseIsQueuedForRetry(t *testing.T) {
	h := newHarness()
	h.gw.approved = false
	h.stock.add("WIDGET-1", "10.00", 10, 0)
	// Fail the compensating release that the decline will trigger. Reserve
	// does not consult this, so creation itself still succeeds.
	h.stock.releaseErr = errors.New("connection reset")

	summary, err := h.svc.CreateOrder(context.Background(), testCustomer(), []order.ItemRequest{
		{SKU: "WIDGET-1", Quantity: 2},
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	h.svc.Stop()

	h.queue.mu.Lock()
	defer h.queue.mu.Unlock()

	if len(h.queue.enqueued) != 1 {
		t.Fatalf("expected 1 queued release, got %d", len(h.queue.enqueued))
	}
	rel := h.queue.enqueued[0]
	if rel.OrderID != summary.OrderID || rel.SKU != "WIDGET-1" || rel.Quantity != 2 {
		t.Errorf("unexpected queued release: %+v", rel)
	}
	if rel.MaxRetries != defaultReleaseMaxRetries {
		t.Errorf("expected max retries %d, got %d", defaultReleaseMaxRetries, rel.MaxRetries)
	}
}

func TestReplayOrderDoesNotPublish(t *testing.T) {
	h := newHarness()
	h.stock.add("WIDGET-1", "10.00", 10, 0)

	summary, err := h.svc.ReplayOrder(context.Background(), testCustomer(), []order.ItemRequest{
		{SKU: "WIDGET-1", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("ReplayOrder failed: %v", err)
	}

	h.svc.Stop()

	o := h.orders.get(t, summary.OrderID)
	if o.Status != order.StatusConfirmed {
		t.Errorf("expected replayed order confirmed, got %q", o.Status)
	}
	if got := h.prod.published(); got != 0 {
		t.Errorf("expected replay to suppress publishing, got %d events", got)
	}
}

func TestGetOrdersByUserPaginationDefaults(t *testing.T) {
	h := newHarness()
	h.orders.queryTotal = 45
	h.orders.queryItems = []order.UserOrder{
		{OrderID: "ORD-AAA", Status: order.StatusConfirmed, Total: decimal.RequireFromString("21.60")},
	}

	page, err := h.svc.GetOrdersByUser(context.Background(), "user-42", 0, 0)
	if err != nil {
		t.Fatalf("GetOrdersByUser failed: %v", err)
	}

	if page.Page != 1 || page.Size != 20 {
		t.Errorf("expected defaults page=1 size=20, got page=%d size=%d", page.Page, page.Size)
	}
	if page.Total != 45 || page.Pages != 3 {
		t.Errorf("expected total=45 pages=3, got total=%d pages=%d", page.Total, page.Pages)
	}
	if len(page.Items) != 1 {
		t.Errorf("expected 1 item from repository, got %d", len(page.Items))
	}
}
