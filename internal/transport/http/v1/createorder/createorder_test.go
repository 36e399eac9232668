package createorder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/customer"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/inventory"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/order"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/product"
)

type fakeService struct {
	summary order.CreatedSummary
	err     error
}

func (s *fakeService) CreateOrder(_ context.Context, _ customer.Customer, _ []order.ItemRequest) (order.CreatedSummary, error) {
	return s.summary, s.err
}

const validBody = `{
	"customer": {"user_id": "user-42", "email": "buyer@example.com"},
	"items": [{"sku": "WIDGET-1", "quantity": 2}]
}`

func doRequest(t *testing.T, svc *fakeService, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	rec := httptest.NewRecorder()
	CreateOrder(rec, req, svc)

	return rec
}

func TestCreateOrderAccepted(t *testing.T) {
	svc := &fakeService{
		summary: order.CreatedSummary{
			OrderID:        "ORD-ABCDEF123456",
			Status:         order.StatusPending,
			EstimatedTotal: decimal.RequireFromString("21.60"),
		},
	}

	rec := doRequest(t, svc, validBody)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}

	var resp order.CreatedSummary
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.OrderID != "ORD-ABCDEF123456" || resp.Status != order.StatusPending {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestCreateOrderErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{name: "unknown product", err: product.ErrProductNotFound, code: http.StatusNotFound},
		{name: "insufficient stock", err: &inventory.InsufficientError{SKU: "WIDGET-1", Requested: 2, Purchasable: 1}, code: http.StatusConflict},
		{name: "no inventory row", err: inventory.ErrInventoryUnavailable, code: http.StatusConflict},
		{name: "invalid customer", err: customer.ErrInvalidCustomer, code: http.StatusBadRequest},
		{name: "empty items", err: order.ErrNoItems, code: http.StatusBadRequest},
		{name: "bad quantity", err: order.ErrBadQuantity, code: http.StatusBadRequest},
		{name: "store failure", err: errors.New("pg: connection reset"), code: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, &fakeService{err: tc.err}, validBody)
			if rec.Code != tc.code {
				t.Errorf("expected status %d, got %d", tc.code, rec.Code)
			}
		})
	}
}

func TestCreateOrderInternalErrorIsOpaque(t *testing.T) {
	rec := doRequest(t, &fakeService{err: errors.New("pg: password authentication failed")}, validBody)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("internal error details must not leak to the client")
	}
}

func TestCreateOrderMalformedBody(t *testing.T) {
	rec := doRequest(t, &fakeService{}, "{not json")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for malformed body, got %d", rec.Code)
	}
}
