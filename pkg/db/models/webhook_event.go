package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/receipts-backend/pkg/enums"
)

// WebhookEvent is the idempotency ledger row for one provider delivery.
// EventID is the provider's identifier and carries the unique constraint that
// makes concurrent claims collapse into a single winner.
type WebhookEvent struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID     string              `gorm:"column:event_id;not null;uniqueIndex:idx_webhook_events_event_id"`
	EventType   enums.EventType     `gorm:"column:event_type;type:text;not null"`
	Status      enums.WebhookStatus `gorm:"column:status;type:text;not null;default:'PROCESSING'"`
	Payload     json.RawMessage     `gorm:"column:payload;type:jsonb"`
	LastError   *string             `gorm:"column:last_error"`
	ProcessedAt *time.Time          `gorm:"column:processed_at"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
