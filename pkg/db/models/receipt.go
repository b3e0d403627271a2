package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/receipts-backend/pkg/enums"
)

// Receipt is the durable pipeline record for one payment. ReceiptID ("rcpt_"
// prefixed) is the public identifier used in download links; PaymentReference
// is the natural key that makes creation idempotent across redeliveries.
type Receipt struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReceiptID        string             `gorm:"column:receipt_id;not null;uniqueIndex:idx_receipts_receipt_id"`
	PaymentReference string             `gorm:"column:payment_reference;not null;uniqueIndex:idx_receipts_payment_reference"`
	OrderID          string             `gorm:"column:order_id;not null;index:idx_receipts_order_id"`
	EmailedTo        string             `gorm:"column:emailed_to;not null"`
	UploadStatus     enums.UploadStatus `gorm:"column:upload_status;type:text;not null;default:'Pending'"`
	EmailStatus      enums.EmailStatus  `gorm:"column:email_status;type:text;not null;default:'Pending'"`
	PDFCloudURL      *string            `gorm:"column:pdf_cloud_url"`
	StorageObject    *string            `gorm:"column:storage_object"`
	LocalPath        *string            `gorm:"column:local_path"`
	LastError        *string            `gorm:"column:last_error"`
	UploadedAt       *time.Time         `gorm:"column:uploaded_at"`
	EmailedAt        *time.Time         `gorm:"column:emailed_at"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
