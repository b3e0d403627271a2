package models

import (
	"time"

	"github.com/google/uuid"
)

// ReceiptJob is a queued receipt-pipeline run. One row per event; the unique
// event_id index is what deduplicates enqueues. Rows are deleted on success
// and retained with Failed=true once attempts are exhausted.
type ReceiptJob struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID   string     `gorm:"column:event_id;not null;uniqueIndex:idx_receipt_jobs_event_id"`
	Attempts  int        `gorm:"column:attempts;not null;default:0"`
	Failed    bool       `gorm:"column:failed;not null;default:false"`
	NextRunAt time.Time  `gorm:"column:next_run_at;not null"`
	LockedAt  *time.Time `gorm:"column:locked_at"`
	LastError *string    `gorm:"column:last_error"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
