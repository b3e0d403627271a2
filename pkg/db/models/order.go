package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/receipts-backend/pkg/enums"
	"github.com/angelmondragon/receipts-backend/pkg/types"
)

// Order is the provider-reported order snapshot. OrderID is the provider's
// identifier; later events for the same id overwrite business fields.
type Order struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       string              `gorm:"column:order_id;not null;uniqueIndex:idx_orders_order_id"`
	CustomerName  string              `gorm:"column:customer_name;not null"`
	CustomerEmail string              `gorm:"column:customer_email;not null"`
	Items         types.OrderItems    `gorm:"column:items;type:jsonb;serializer:json"`
	Quantity      int                 `gorm:"column:quantity;not null;default:0"`
	UnitPrice     decimal.Decimal     `gorm:"column:unit_price;type:numeric(12,2);not null"`
	TotalPrice    decimal.Decimal     `gorm:"column:total_price;type:numeric(12,2);not null"`
	Currency      string              `gorm:"column:currency;not null;default:'USD'"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	Status        enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'Pending'"`
	StoreName     string              `gorm:"column:store_name"`
	StoreAddress  string              `gorm:"column:store_address"`
	StorePhone    string              `gorm:"column:store_phone"`
	OrderDate     *time.Time          `gorm:"column:order_date"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
