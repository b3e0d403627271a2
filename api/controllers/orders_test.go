package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/receipts-backend/internal/orders"
	"github.com/angelmondragon/receipts-backend/internal/receipts"
	"github.com/angelmondragon/receipts-backend/pkg/db/models"
	"github.com/angelmondragon/receipts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipts-backend/pkg/errors"
)

type fakeOrderDirectory struct {
	orders     []models.Order
	lastParams orders.ListParams
}

func (f *fakeOrderDirectory) List(_ context.Context, params orders.ListParams) ([]models.Order, int64, error) {
	f.lastParams = params
	return f.orders, int64(len(f.orders)), nil
}

func (f *fakeOrderDirectory) FindByOrderID(_ context.Context, orderID string) (*models.Order, error) {
	for i := range f.orders {
		if f.orders[i].OrderID == orderID {
			return &f.orders[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func ordersRouter(dir *fakeOrderDirectory, svc receipts.Service) http.Handler {
	logg := testControllerLogger()
	r := chi.NewRouter()
	r.Get("/api/orders", ListOrders(dir, logg))
	r.Get("/api/orders/{orderId}", GetOrder(dir, svc, logg))
	r.Get("/api/orders/{orderId}/receipts", ListOrderReceipts(dir, svc, logg))
	return r
}

func TestListOrdersPassesFilters(t *testing.T) {
	dir := &fakeOrderDirectory{orders: []models.Order{{OrderID: "ord_1"}}}
	router := ordersRouter(dir, &fakeReceiptsService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/orders?email=ada%40example.com&status=Completed&from=2026-01-01&page=2&limit=5", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if dir.lastParams.Email != "ada@example.com" {
		t.Fatalf("email filter not forwarded: %+v", dir.lastParams)
	}
	if dir.lastParams.Status != enums.OrderCompleted {
		t.Fatalf("status filter not forwarded: %+v", dir.lastParams)
	}
	if dir.lastParams.From == nil || !dir.lastParams.From.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("from bound not forwarded: %+v", dir.lastParams.From)
	}
	if dir.lastParams.Page.Page != 2 || dir.lastParams.Page.Limit != 5 {
		t.Fatalf("pagination not forwarded: %+v", dir.lastParams.Page)
	}
}

func TestListOrdersRejectsUnknownStatus(t *testing.T) {
	router := ordersRouter(&fakeOrderDirectory{}, &fakeReceiptsService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders?status=Refunded", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListOrdersRejectsMalformedDate(t *testing.T) {
	router := ordersRouter(&fakeOrderDirectory{}, &fakeReceiptsService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders?from=yesterday", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetOrderNotFound(t *testing.T) {
	router := ordersRouter(&fakeOrderDirectory{}, &fakeReceiptsService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/ord_missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetOrderAttachesReceiptsOnRequest(t *testing.T) {
	dir := &fakeOrderDirectory{orders: []models.Order{{OrderID: "ord_1"}}}
	svc := &fakeReceiptsService{views: []receipts.ReceiptView{{ReceiptID: "rcpt_1", OrderID: "ord_1"}}}
	router := ordersRouter(dir, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/ord_1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "rcpt_1") {
		t.Fatal("receipts must not be attached unless requested")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/ord_1?includeReceipts=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "rcpt_1") {
		t.Fatalf("expected receipts attached, got %s", rec.Body.String())
	}
}

func TestListOrderReceipts(t *testing.T) {
	dir := &fakeOrderDirectory{orders: []models.Order{{OrderID: "ord_1"}}}
	svc := &fakeReceiptsService{views: []receipts.ReceiptView{{ReceiptID: "rcpt_1", OrderID: "ord_1"}}}
	router := ordersRouter(dir, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/ord_missing/receipts", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown order, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/ord_1/receipts", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "rcpt_1") {
		t.Fatalf("expected receipts in body, got %s", rec.Body.String())
	}
}
