package createorder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/customer"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/inventory"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/order"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/product"
)

// service is an interface for the service layer.
type service interface {
	CreateOrder(ctx context.Context, cust customer.Customer, items []order.ItemRequest) (order.CreatedSummary, error)
}

type createOrderRequest struct {
	Customer customer.Customer   `json:"customer"`
	Items    []order.ItemRequest `json:"items"`
}

// CreateOrder handles order creation. A success response means the order was
// accepted for processing; the final outcome is observed via its status.
func CreateOrder(w http.ResponseWriter, r *http.Request, service service) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Failed to decode request body", http.StatusBadRequest)
		slog.Error("Error decoding create order request", "error", err)

		return
	}

	summary, err := service.CreateOrder(r.Context(), req.Customer, req.Items)
	if err != nil {
		writeError(w, err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		slog.Error("Error sending create order response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var insufficient *inventory.InsufficientError

	switch {
	case errors.Is(err, product.ErrProductNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &insufficient), errors.Is(err, inventory.ErrInventoryUnavailable):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, customer.ErrInvalidCustomer),
		errors.Is(err, order.ErrNoItems),
		errors.Is(err, order.ErrBadQuantity):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		// Internal detail stays internal.
		http.Error(w, "internal server error", http.StatusInternalServerError)
		slog.Error("Error creating order", "error", err)
	}
}
