package order

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/customer"
)

// SchemaVersion is written into every order document so readers can detect
// drift between writer and reader expectations.
const SchemaVersion = 1

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrNoItems       = errors.New("order must contain at least one item")
	ErrBadQuantity   = errors.New("item quantity must be positive")
)

// Status is the saga state of an order. Pending and processing are
// non-terminal; confirmed, cancelled and error are terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusConfirmed  Status = "confirmed"
	StatusCancelled  Status = "cancelled"
	StatusError      Status = "error"
)

// PaymentStatus tracks the simulated gateway outcome.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Item is a line-item snapshot. Price is captured at order time and stays
// decoupled from later catalog changes.
type Item struct {
	SKU      string          `json:"sku"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// ItemRequest is an inbound line item before pricing is snapshotted.
type ItemRequest struct {
	SKU      string `json:"sku"`
	Quantity int64  `json:"quantity"`
}

// Pricing holds the fixed-point totals computed at creation.
type Pricing struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Payment holds the gateway outcome for the order.
type Payment struct {
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transaction_id"`
}

// Order is the saga's aggregate root, persisted as a document.
type Order struct {
	OrderID       string            `json:"order_id"`
	Status        Status            `json:"status"`
	Customer      customer.Customer `json:"customer"`
	Items         []Item            `json:"items"`
	Pricing       Pricing           `json:"pricing"`
	Payment       Payment           `json:"payment"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	SchemaVersion int               `json:"schema_version"`
}

// CreatedSummary is the immediate response to a successful creation. The
// caller observes the final outcome by polling the order's status.
type CreatedSummary struct {
	OrderID        string          `json:"order_id"`
	Status         Status          `json:"status"`
	EstimatedTotal decimal.Decimal `json:"estimated_total"`
	CreatedAt      time.Time       `json:"created_at"`
}

// UserOrder is the per-row projection of the list-by-user read model.
type UserOrder struct {
	OrderID   string          `json:"order_id"`
	Status    Status          `json:"status"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
}

// Page is a paginated list-by-user result.
type Page struct {
	Items []UserOrder `json:"items"`
	Total int64       `json:"total"`
	Page  int64       `json:"page"`
	Size  int64       `json:"size"`
	Pages int64       `json:"pages"`
}

// NewOrderID generates a human-shaped order identifier, ORD-<12 hex chars>.
func NewOrderID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")

	return "ORD-" + strings.ToUpper(hex[:12])
}

// NewTransactionID generates a payment transaction identifier.
func NewTransactionID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")

	return strings.ToUpper(hex[:12])
}

// ValidateItems checks an inbound item list before any reservation happens.
func ValidateItems(items []ItemRequest) error {
	if len(items) == 0 {
		return ErrNoItems
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return ErrBadQuantity
		}
	}

	return nil
}
