package getinventory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/inventory"
)

// service is an interface for the service layer.
type service interface {
	GetBySKU(ctx context.Context, sku string) (inventory.Summary, error)
}

// GetInventory handles the inventory summary lookup for one SKU.
func GetInventory(w http.ResponseWriter, r *http.Request, service service) {
	sku := chi.URLParam(r, "sku")

	summary, err := service.GetBySKU(r.Context(), sku)
	if errors.Is(err, inventory.ErrInventoryNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)

		return
	}
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		slog.Error("Error getting inventory", "sku", sku, "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		slog.Error("Error sending inventory response", "error", err)
	}
}
