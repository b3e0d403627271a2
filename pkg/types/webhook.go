package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderItem is one line item on a provider order.
type OrderItem struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity" validate:"gte=1"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// OrderItems is stored as a JSONB column on the order row.
type OrderItems []OrderItem

// WebhookPayment is the payment block of an inbound webhook payload.
type WebhookPayment struct {
	Reference string          `json:"reference" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Method    string          `json:"method"`
	Status    string          `json:"status"`
	PaidAt    *time.Time      `json:"paidAt"`
}

// WebhookOrder is the order block of an inbound webhook payload.
type WebhookOrder struct {
	ID         string          `json:"id" validate:"required"`
	Items      OrderItems      `json:"items"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Date       *time.Time      `json:"date"`
}

// WebhookCustomer is the customer block of an inbound webhook payload.
type WebhookCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email" validate:"required,email"`
}

// WebhookStore is the selling-store snapshot of an inbound webhook payload.
type WebhookStore struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// WebhookEventPayload is the full verified body of a provider webhook.
type WebhookEventPayload struct {
	EventID   string          `json:"eventId" validate:"required"`
	EventType string          `json:"eventType" validate:"required"`
	Payment   WebhookPayment  `json:"payment" validate:"required"`
	Order     WebhookOrder    `json:"order" validate:"required"`
	Customer  WebhookCustomer `json:"customer" validate:"required"`
	Store     WebhookStore    `json:"store"`
}
