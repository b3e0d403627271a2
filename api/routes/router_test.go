package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/angelmondragon/receipts-backend/api/middleware"
	"github.com/angelmondragon/receipts-backend/internal/events"
	"github.com/angelmondragon/receipts-backend/internal/orders"
	"github.com/angelmondragon/receipts-backend/internal/receipts"
	"github.com/angelmondragon/receipts-backend/internal/signature"
	"github.com/angelmondragon/receipts-backend/internal/webhooks"
	"github.com/angelmondragon/receipts-backend/pkg/config"
	"github.com/angelmondragon/receipts-backend/pkg/db/models"
	"github.com/angelmondragon/receipts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipts-backend/pkg/errors"
	"github.com/angelmondragon/receipts-backend/pkg/logger"
	"github.com/angelmondragon/receipts-backend/pkg/pagination"
)

const testAdminKey = "adm_route_test"

type stubReceiptsService struct {
	views []receipts.ReceiptView
}

func (s *stubReceiptsService) List(context.Context, receipts.ListParams) ([]receipts.ReceiptView, *pagination.Page, error) {
	page := pagination.BuildPage(pagination.Params{Page: 1, Limit: 20}, int64(len(s.views)))
	return s.views, &page, nil
}

func (s *stubReceiptsService) Get(_ context.Context, receiptID string) (*receipts.ReceiptView, error) {
	for i := range s.views {
		if s.views[i].ReceiptID == receiptID {
			return &s.views[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "receipt not found")
}

func (s *stubReceiptsService) DownloadURL(_ context.Context, receiptID string) (*receipts.DownloadLink, error) {
	return &receipts.DownloadLink{URL: "https://example.com/" + receiptID, ExpiresAt: time.Now().Add(time.Minute)}, nil
}

func (s *stubReceiptsService) Download(context.Context, string, string, bool) ([]byte, string, error) {
	return []byte("%PDF-stub"), "receipt.pdf", nil
}

type stubOrdersRepo struct{}

func (stubOrdersRepo) WithTx(*gorm.DB) orders.Repository {
	return stubOrdersRepo{}
}

func (stubOrdersRepo) Upsert(_ context.Context, order *models.Order) (*models.Order, error) {
	return order, nil
}

func (stubOrdersRepo) FindByOrderID(_ context.Context, orderID string) (*models.Order, error) {
	if orderID == "ord_route" {
		return &models.Order{OrderID: orderID, CustomerEmail: "ada@example.com"}, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (stubOrdersRepo) List(context.Context, orders.ListParams) ([]models.Order, int64, error) {
	return []models.Order{{OrderID: "ord_route"}}, 1, nil
}

type stubClaimer struct{}

func (stubClaimer) Claim(context.Context, string, enums.EventType, json.RawMessage) (events.ClaimResult, error) {
	return events.ClaimResult{Outcome: events.OutcomeClaimed}, nil
}

type stubEnqueuer struct{}

func (stubEnqueuer) Enqueue(context.Context, string) error {
	return nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel, Output: io.Discard})

	webhookService, err := webhooks.NewService(webhooks.ServiceParams{
		Verifier:   signature.NewVerifier("", 5*time.Minute),
		Events:     stubClaimer{},
		Dispatcher: stubEnqueuer{},
		Logger:     logg,
	})
	if err != nil {
		t.Fatalf("webhooks.NewService: %v", err)
	}

	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.Admin.Key = testAdminKey

	return NewRouter(Deps{
		Config:   cfg,
		Logger:   logg,
		Webhooks: webhookService,
		Receipts: &stubReceiptsService{views: []receipts.ReceiptView{{ReceiptID: "rcpt_route"}}},
		Orders:   stubOrdersRepo{},
	})
}

func TestHealthLiveRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Receipts-Env"); got != "test" {
		t.Fatalf("expected env header, got %q", got)
	}
}

func TestReceiptsListRoute(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/receipts", nil)
	req.Header.Set(middleware.AdminKeyHeader, testAdminKey)
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "rcpt_route") {
		t.Fatalf("expected receipt in body, got %s", rec.Body.String())
	}
}

func TestReceiptReadRoutesRequireAdminKey(t *testing.T) {
	paths := []string{
		"/api/receipts",
		"/api/receipts/rcpt_route",
		"/api/receipts/rcpt_route/download-url",
	}
	for _, path := range paths {
		rec := httptest.NewRecorder()
		newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 without admin key, got %d", path, rec.Code)
		}
	}
}

func TestOrderRoutesRequireAdminKey(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without admin key, got %d", rec.Code)
	}
}

func TestOrdersListRoute(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set(middleware.AdminKeyHeader, testAdminKey)
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "ord_route") {
		t.Fatalf("expected order in body, got %s", rec.Body.String())
	}
}

func TestOrderReceiptsRouteChecksOrderExists(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/orders/ord_missing/receipts", nil)
	req.Header.Set(middleware.AdminKeyHeader, testAdminKey)
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown order, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/orders/ord_route/receipts", nil)
	req.Header.Set(middleware.AdminKeyHeader, testAdminKey)
	rec = httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "rcpt_route") {
		t.Fatalf("expected receipts in body, got %s", rec.Body.String())
	}
}

func TestWebhookRouteRejectsGarbage(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/payment-webhook", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRetryEmailRequiresAdminKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/receipts/rcpt_route/retry-email", nil)
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSenderRoutesRequireAdminKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/webhook-sender/mock", nil)
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestDownloadRouteAdminBypass(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/receipts/rcpt_route/download", nil)
	req.Header.Set(middleware.AdminKeyHeader, testAdminKey)
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("expected pdf content type, got %q", got)
	}
}
