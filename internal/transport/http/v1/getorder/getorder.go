package getorder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/order"
)

// service is an interface for the service layer.
type service interface {
	GetOrderByID(ctx context.Context, orderID string) (order.Order, error)
}

// GetOrder handles the point lookup of one order.
func GetOrder(w http.ResponseWriter, r *http.Request, service service) {
	orderID := chi.URLParam(r, "order_id")

	o, err := service.GetOrderByID(r.Context(), orderID)
	if errors.Is(err, order.ErrOrderNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)

		return
	}
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		slog.Error("Error getting order", "order_id", orderID, "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(o); err != nil {
		slog.Error("Error sending order response", "error", err)
	}
}
