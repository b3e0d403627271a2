package orders

import (
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/receipts-backend/pkg/db/models"
	"github.com/angelmondragon/receipts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipts-backend/pkg/errors"
	"github.com/angelmondragon/receipts-backend/pkg/types"
)

var validate = validator.New()

// statusForEvent maps the provider event type onto the order lifecycle.
func statusForEvent(eventType enums.EventType) enums.OrderStatus {
	switch eventType {
	case enums.EventOrderPaid:
		return enums.OrderCompleted
	case enums.EventOrderFailed:
		return enums.OrderCancelled
	default:
		return enums.OrderPending
	}
}

// BuildFromPayload validates the webhook payload and assembles the order row.
// Monetary values are rounded to 2 decimals here, at the point of computation.
func BuildFromPayload(payload *types.WebhookEventPayload, eventType enums.EventType) (*models.Order, error) {
	if payload == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payload is required")
	}
	if err := validate.Struct(payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}

	method := enums.PaymentMethod(payload.Payment.Method)
	if payload.Payment.Method != "" && !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method").
			WithDetails(map[string]any{"method": payload.Payment.Method})
	}
	if method == "" {
		method = enums.PaymentCreditCard
	}

	items := make(types.OrderItems, 0, len(payload.Order.Items))
	for _, item := range payload.Order.Items {
		if item.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be at least 1").
				WithDetails(map[string]any{"item": item.Name})
		}
		if item.UnitPrice.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item price must not be negative").
				WithDetails(map[string]any{"item": item.Name})
		}
		items = append(items, types.OrderItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.Round(2),
		})
	}

	if payload.Order.TotalPrice.IsNegative() || payload.Order.UnitPrice.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order amounts must not be negative")
	}

	currency := payload.Payment.Currency
	if currency == "" {
		currency = "USD"
	}

	return &models.Order{
		OrderID:       payload.Order.ID,
		CustomerName:  payload.Customer.Name,
		CustomerEmail: payload.Customer.Email,
		Items:         items,
		Quantity:      payload.Order.Quantity,
		UnitPrice:     payload.Order.UnitPrice.Round(2),
		TotalPrice:    payload.Order.TotalPrice.Round(2),
		Currency:      currency,
		PaymentMethod: method,
		Status:        statusForEvent(eventType),
		StoreName:     payload.Store.Name,
		StoreAddress:  payload.Store.Address,
		StorePhone:    payload.Store.Phone,
		OrderDate:     payload.Order.Date,
	}, nil
}

// RoundMoney normalizes a monetary value to 2 decimal places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
