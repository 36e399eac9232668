package listorders

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/order"
)

// service is an interface for the service layer.
type service interface {
	GetOrdersByUser(ctx context.Context, userID string, page, size int64) (order.Page, error)
}

type listOrdersRequest struct {
	Page int64 `schema:"page,omitempty"`
	Size int64 `schema:"size,omitempty"`
}

// ListOrders handles the paginated list of one user's orders, newest first.
func ListOrders(w http.ResponseWriter, r *http.Request, service service) {
	userID := chi.URLParam(r, "user_id")

	decoder := schema.NewDecoder()
	query := &listOrdersRequest{Page: 1, Size: 20}
	if err := decoder.Decode(query, r.URL.Query()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error decoding list orders request", "error", err)

		return
	}

	page, err := service.GetOrdersByUser(r.Context(), userID, query.Page, query.Size)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		slog.Error("Error listing orders", "user_id", userID, "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(page); err != nil {
		slog.Error("Error sending list orders response", "error", err)
	}
}
