package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/receipts-backend/internal/events"
	"github.com/angelmondragon/receipts-backend/internal/signature"
	"github.com/angelmondragon/receipts-backend/internal/webhooks"
	"github.com/angelmondragon/receipts-backend/pkg/db/models"
	"github.com/angelmondragon/receipts-backend/pkg/enums"
)

const webhookTestSecret = "whsec_test"

type stubClaimer struct {
	outcome events.ClaimOutcome
}

func (s *stubClaimer) Claim(_ context.Context, eventID string, eventType enums.EventType, payload json.RawMessage) (events.ClaimResult, error) {
	return events.ClaimResult{
		Outcome: s.outcome,
		Event:   &models.WebhookEvent{EventID: eventID, EventType: eventType, Payload: payload},
	}, nil
}

type stubEnqueuer struct{ count int }

func (s *stubEnqueuer) Enqueue(context.Context, string) error {
	s.count++
	return nil
}

func webhookHandler(t *testing.T, outcome events.ClaimOutcome) http.HandlerFunc {
	t.Helper()
	svc, err := webhooks.NewService(webhooks.ServiceParams{
		Verifier:   signature.NewVerifier(webhookTestSecret, signature.DefaultTolerance),
		Events:     &stubClaimer{outcome: outcome},
		Dispatcher: &stubEnqueuer{},
		Logger:     testControllerLogger(),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return PaymentWebhook(svc, testControllerLogger())
}

func webhookBody() []byte {
	return []byte(`{
		"eventId": "evt_1",
		"eventType": "order.paid",
		"payment": {"reference": "pay_1", "amount": 20, "currency": "USD", "method": "Credit Card"},
		"order": {"id": "ORD-1", "items": [{"name": "Widget", "quantity": 2, "unitPrice": 10}], "quantity": 2, "unitPrice": 10, "totalPrice": 20},
		"customer": {"name": "Ada", "email": "ada@example.com"},
		"store": {"name": "Acme"}
	}`)
}

func signedRequest(t *testing.T, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/payment-webhook", bytes.NewReader(body))
	header := signature.NewSigner(webhookTestSecret).Sign(body)
	if header == "" {
		t.Fatal("expected signature header")
	}
	req.Header.Set(signature.Header, header)
	return req
}

func TestPaymentWebhookAccepted(t *testing.T) {
	handler := webhookHandler(t, events.OutcomeClaimed)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, webhookBody()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var envelope struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data["status"] != "accepted" {
		t.Fatalf("expected accepted status, got %+v", envelope.Data)
	}
}

func TestPaymentWebhookDuplicateInFlightIs202(t *testing.T) {
	handler := webhookHandler(t, events.OutcomeDuplicateInFlight)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, webhookBody()))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
}

func TestPaymentWebhookDuplicateCompletedIs200(t *testing.T) {
	handler := webhookHandler(t, events.OutcomeDuplicateCompleted)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, webhookBody()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestPaymentWebhookRejectsBadSignature(t *testing.T) {
	handler := webhookHandler(t, events.OutcomeClaimed)

	req := httptest.NewRequest(http.MethodPost, "/api/webhook/payment-webhook", bytes.NewReader(webhookBody()))
	req.Header.Set(signature.Header, "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestPaymentWebhookRejectsIDMismatch(t *testing.T) {
	handler := webhookHandler(t, events.OutcomeClaimed)

	req := signedRequest(t, webhookBody())
	req.Header.Set("x-webhook-id", "evt_other")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
