package orders

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/receipts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipts-backend/pkg/errors"
	"github.com/angelmondragon/receipts-backend/pkg/types"
)

func samplePayload() *types.WebhookEventPayload {
	return &types.WebhookEventPayload{
		EventID:   "evt_1",
		EventType: string(enums.EventOrderPaid),
		Payment: types.WebhookPayment{
			Reference: "pay_1",
			Amount:    decimal.NewFromFloat(20),
			Currency:  "USD",
			Method:    string(enums.PaymentCreditCard),
			Status:    "success",
		},
		Order: types.WebhookOrder{
			ID: "ord_1",
			Items: types.OrderItems{
				{Name: "Widget", Quantity: 2, UnitPrice: decimal.NewFromFloat(10.005)},
			},
			Quantity:   2,
			UnitPrice:  decimal.NewFromFloat(10),
			TotalPrice: decimal.NewFromFloat(20),
		},
		Customer: types.WebhookCustomer{Name: "Ada Lovelace", Email: "ada@example.com"},
		Store:    types.WebhookStore{Name: "My E-commerce Store"},
	}
}

func TestBuildFromPayload(t *testing.T) {
	order, err := BuildFromPayload(samplePayload(), enums.EventOrderPaid)
	if err != nil {
		t.Fatalf("BuildFromPayload: %v", err)
	}
	if order.Status != enums.OrderCompleted {
		t.Errorf("paid event should complete the order, got %s", order.Status)
	}
	if want := decimal.NewFromFloat(10.01); !order.Items[0].UnitPrice.Equal(want) {
		t.Errorf("unit price should round to 2 decimals, got %s", order.Items[0].UnitPrice)
	}
	if order.Currency != "USD" {
		t.Errorf("unexpected currency %s", order.Currency)
	}
}

func TestBuildFromPayloadFailedEventCancels(t *testing.T) {
	order, err := BuildFromPayload(samplePayload(), enums.EventOrderFailed)
	if err != nil {
		t.Fatalf("BuildFromPayload: %v", err)
	}
	if order.Status != enums.OrderCancelled {
		t.Errorf("failed event should cancel the order, got %s", order.Status)
	}
}

func TestBuildFromPayloadEmptyItems(t *testing.T) {
	payload := samplePayload()
	payload.Order.Items = nil

	order, err := BuildFromPayload(payload, enums.EventOrderPaid)
	if err != nil {
		t.Fatalf("zero line items should still build: %v", err)
	}
	if len(order.Items) != 0 {
		t.Errorf("expected empty items, got %d", len(order.Items))
	}
}

func TestBuildFromPayloadValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*types.WebhookEventPayload)
	}{
		{"missing email", func(p *types.WebhookEventPayload) { p.Customer.Email = "" }},
		{"missing order id", func(p *types.WebhookEventPayload) { p.Order.ID = "" }},
		{"missing payment reference", func(p *types.WebhookEventPayload) { p.Payment.Reference = "" }},
		{"zero quantity item", func(p *types.WebhookEventPayload) { p.Order.Items[0].Quantity = 0 }},
		{"negative item price", func(p *types.WebhookEventPayload) {
			p.Order.Items[0].UnitPrice = decimal.NewFromFloat(-1)
		}},
		{"negative total", func(p *types.WebhookEventPayload) {
			p.Order.TotalPrice = decimal.NewFromFloat(-20)
		}},
		{"unknown payment method", func(p *types.WebhookEventPayload) { p.Payment.Method = "Barter" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := samplePayload()
			tc.mutate(payload)
			_, err := BuildFromPayload(payload, enums.EventOrderPaid)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation code, got %s", pkgerrors.As(err).Code())
			}
		})
	}
}
