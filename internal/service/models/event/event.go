package event

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/customer"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/order"
)

// Type is the closed set of domain event types.
type Type int32

const (
	TypeUnspecified  Type = 0
	TypeOrderCreated Type = 1
)

var ErrUnknownEventType = errors.New("unknown event type")

func (t Type) String() string {
	switch t {
	case TypeOrderCreated:
		return "ORDER_CREATED"
	default:
		return "UNSPECIFIED"
	}
}

// eventNamespace seeds deterministic event ids. It must never change once
// events have been published: consumers key their idempotency ledger off ids
// derived from it.
var eventNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("events.acme-order-pipeline"))

// DeterministicID derives the event id from the logical event (order id plus
// event type), not from the publish attempt. Redelivery of the same logical
// event always carries the same id, which is what makes the consumer's
// idempotency ledger effective.
func DeterministicID(orderID string, t Type) string {
	return uuid.NewSHA1(eventNamespace, []byte(orderID+"|"+t.String())).String()
}

// Item is the event-level line item: what was ordered, not what it cost.
type Item struct {
	SKU      string
	Quantity int64
}

// OrderCreated is the type-specific payload of an ORDER_CREATED event.
type OrderCreated struct {
	OrderID  string
	Customer customer.Customer
	Items    []Item
}

// Event is an immutable, versioned domain message. EventID is stable across
// redeliveries of the same logical event; PublishAttempt is unique per send
// and exists only for observability.
type Event struct {
	EventID        string
	Type           Type
	OrderID        string
	Timestamp      time.Time
	OrderCreated   *OrderCreated
	PublishAttempt string
}

// NewOrderCreated builds the ORDER_CREATED event for an order.
func NewOrderCreated(orderID string, cust customer.Customer, items []order.Item) Event {
	eventItems := make([]Item, 0, len(items))
	for _, item := range items {
		eventItems = append(eventItems, Item{SKU: item.SKU, Quantity: item.Quantity})
	}

	return Event{
		EventID:   DeterministicID(orderID, TypeOrderCreated),
		Type:      TypeOrderCreated,
		OrderID:   orderID,
		Timestamp: time.Now().UTC(),
		OrderCreated: &OrderCreated{
			OrderID:  orderID,
			Customer: cust,
			Items:    eventItems,
		},
		PublishAttempt: uuid.NewString(),
	}
}
