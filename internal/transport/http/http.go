package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/customer"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/inventory"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/order"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/services/healthsvc"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/transport/http/v1/createorder"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/transport/http/v1/getinventory"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/transport/http/v1/getorder"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/transport/http/v1/listorders"
	tracemw "github.com/montoyitadevelp/acme-order-pipeline/pkg/http/middleware/trace"
	"github.com/montoyitadevelp/acme-order-pipeline/pkg/logger"
)

type orderService interface {
	CreateOrder(ctx context.Context, cust customer.Customer, items []order.ItemRequest) (order.CreatedSummary, error)
	GetOrderByID(ctx context.Context, orderID string) (order.Order, error)
	GetOrdersByUser(ctx context.Context, userID string, page, size int64) (order.Page, error)
}

type inventoryService interface {
	GetBySKU(ctx context.Context, sku string) (inventory.Summary, error)
}

type healthService interface {
	Check(ctx context.Context) healthsvc.Status
}

type HTTPTransport struct {
	server       *http.Server
	router       *chi.Mux
	orderSvc     orderService
	inventorySvc inventoryService
	healthSvc    healthService
}

func NewHTTPTransport(orderSvc orderService, inventorySvc inventoryService, healthSvc healthService) *HTTPTransport {
	router := newRouter()
	server := newServer(router)

	return &HTTPTransport{
		server:       server,
		router:       router,
		orderSvc:     orderSvc,
		inventorySvc: inventorySvc,
		healthSvc:    healthSvc,
	}
}

func (h *HTTPTransport) Run() error {
	return h.server.ListenAndServe()
}

func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// RegisterRoutes registers the routes for the HTTPTransport.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Route("/api", func(r chi.Router) {
		r.Post("/orders", h.createOrder)
		r.Get("/orders/{order_id}", h.getOrder)
		r.Get("/users/{user_id}/orders", h.listOrders)
		r.Get("/inventory/{sku}", h.getInventory)
		r.Get("/health", h.health)
	})
}

func (h *HTTPTransport) createOrder(w http.ResponseWriter, r *http.Request) {
	createorder.CreateOrder(w, r, h.orderSvc)
}

func (h *HTTPTransport) getOrder(w http.ResponseWriter, r *http.Request) {
	getorder.GetOrder(w, r, h.orderSvc)
}

func (h *HTTPTransport) listOrders(w http.ResponseWriter, r *http.Request) {
	listorders.ListOrders(w, r, h.orderSvc)
}

func (h *HTTPTransport) getInventory(w http.ResponseWriter, r *http.Request) {
	getinventory.GetInventory(w, r, h.inventorySvc)
}

func (h *HTTPTransport) health(w http.ResponseWriter, r *http.Request) {
	status := h.healthSvc.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		slog.Error("Error sending health response", "error", err)
	}
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(logger.NewLoggerMiddleware(slog.Default()))
	router.Use(tracemw.NewTraceMiddleware)

	allowedOrigins := viper.GetStringSlice("server.http.cors.allowed_origins")
	allowedMethods := viper.GetStringSlice("server.http.cors.allowed_methods")
	allowedHeaders := viper.GetStringSlice("server.http.cors.allowed_headers")
	exposedHeaders := viper.GetStringSlice("server.http.cors.exposed_headers")
	allowCredentials := viper.GetBool("server.http.cors.allow_credentials")
	maxAge := viper.GetInt("server.http.cors.max_age")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})

	router.Use(c.Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	return &http.Server{
		Addr:    "0.0.0.0:" + viper.GetString("server.http.port"),
		Handler: router,
	}
}
