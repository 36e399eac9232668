package inventory

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInventoryUnavailable means the product exists but has no inventory row.
	ErrInventoryUnavailable = errors.New("inventory unavailable for product")

	// ErrInventoryNotFound is returned by the read path when neither the
	// product nor its inventory can be located by SKU.
	ErrInventoryNotFound = errors.New("inventory not found")
)

// Record is the relational inventory ledger row for one product.
//
// OnHandQuantity is the stocked amount; ReservedQuantity is the amount promised
// to pending orders. Purchasable stock is the difference of the two. Both
// counters stay non-negative and are mutated only inside a relational
// transaction.
type Record struct {
	ProductID   int64
	OnHand      int64
	Reserved    int64
	LastUpdated time.Time
}

// Purchasable returns the quantity still available for new reservations.
func (r Record) Purchasable() int64 {
	return r.OnHand - r.Reserved
}

// Summary is the read-model projection exposed for a SKU.
type Summary struct {
	SKU         string `json:"sku"`
	ProductName string `json:"product_name"`
	OnHand      int64  `json:"on_hand_quantity"`
	Reserved    int64  `json:"reserved_quantity"`
	Purchasable int64  `json:"purchasable_quantity"`
}

// InsufficientError reports a reservation request that exceeds purchasable
// stock. The whole order the reservation belongs to must be aborted.
type InsufficientError struct {
	SKU         string
	Requested   int64
	Purchasable int64
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf(
		"insufficient inventory for %s: requested %d, purchasable %d",
		e.SKU, e.Requested, e.Purchasable,
	)
}
