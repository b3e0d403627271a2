package receipts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/receipts-backend/pkg/db"
	"github.com/angelmondragon/receipts-backend/pkg/db/models"
	"github.com/angelmondragon/receipts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipts-backend/pkg/errors"
	"github.com/angelmondragon/receipts-backend/pkg/pagination"
)

// ListParams filters the receipt listing.
type ListParams struct {
	Email   string
	OrderID string
	Page    pagination.Params
}

// ArtifactLocation captures where an uploaded receipt PDF lives.
type ArtifactLocation struct {
	PDFCloudURL   string
	StorageObject string
	LocalPath     string
}

// Repository persists receipt rows. Creation is idempotent on the payment
// reference; artifact and status fields are written only through the Mark
// methods so the pipeline exclusively owns them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Ensure(ctx context.Context, paymentReference, orderID, emailedTo string) (*models.Receipt, error)
	MarkUploaded(ctx context.Context, receiptID string, loc ArtifactLocation) error
	MarkUploadFailed(ctx context.Context, receiptID, cause string) error
	MarkEmailSent(ctx context.Context, receiptID string) error
	MarkEmailFailed(ctx context.Context, receiptID, cause string) error
	UpdateCloudURL(ctx context.Context, receiptID, url string) error
	FindByReceiptID(ctx context.Context, receiptID string) (*models.Receipt, error)
	FindByPaymentReference(ctx context.Context, paymentReference string) (*models.Receipt, error)
	List(ctx context.Context, params ListParams) ([]models.Receipt, int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a receipts repository bound to the provided DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// NewReceiptID mints the public identifier for a fresh receipt row.
func NewReceiptID() string {
	return fmt.Sprintf("rcpt_%s", uuid.NewString())
}

// Ensure creates the receipt on first sighting of the payment reference and
// on later calls only refreshes orderID/emailedTo. Status and artifact fields
// are never touched here.
func (r *repository) Ensure(ctx context.Context, paymentReference, orderID, emailedTo string) (*models.Receipt, error) {
	if paymentReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	receipt := &models.Receipt{
		ID:               uuid.New(),
		ReceiptID:        NewReceiptID(),
		PaymentReference: paymentReference,
		OrderID:          orderID,
		EmailedTo:        emailedTo,
		UploadStatus:     enums.UploadPending,
		EmailStatus:      enums.EmailPending,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_reference"}},
			DoUpdates: clause.AssignmentColumns([]string{"order_id", "emailed_to", "updated_at"}),
		}).
		Create(receipt).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure receipt")
	}

	return r.FindByPaymentReference(ctx, paymentReference)
}

// MarkUploaded records the immutable artifact location. A row already
// Uploaded is left untouched.
func (r *repository) MarkUploaded(ctx context.Context, receiptID string, loc ArtifactLocation) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"upload_status": enums.UploadUploaded,
		"uploaded_at":   now,
		"last_error":    nil,
	}
	if loc.PDFCloudURL != "" {
		updates["pdf_cloud_url"] = loc.PDFCloudURL
	}
	if loc.StorageObject != "" {
		updates["storage_object"] = loc.StorageObject
	}
	if loc.LocalPath != "" {
		updates["local_path"] = loc.LocalPath
	}

	err := r.db.WithContext(ctx).
		Model(&models.Receipt{}).
		Where("receipt_id = ? AND upload_status <> ?", receiptID, enums.UploadUploaded).
		Updates(updates).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark uploaded")
	}
	return nil
}

func (r *repository) MarkUploadFailed(ctx context.Context, receiptID, cause string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Receipt{}).
		Where("receipt_id = ? AND upload_status <> ?", receiptID, enums.UploadUploaded).
		Updates(map[string]any{
			"upload_status": enums.UploadFailed,
			"last_error":    cause,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark upload failed")
	}
	return nil
}

func (r *repository) MarkEmailSent(ctx context.Context, receiptID string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Receipt{}).
		Where("receipt_id = ?", receiptID).
		Updates(map[string]any{
			"email_status": enums.EmailSent,
			"emailed_at":   time.Now().UTC(),
			"last_error":   nil,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark email sent")
	}
	return nil
}

func (r *repository) MarkEmailFailed(ctx context.Context, receiptID, cause string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Receipt{}).
		Where("receipt_id = ? AND email_status <> ?", receiptID, enums.EmailSent).
		Updates(map[string]any{
			"email_status": enums.EmailFailed,
			"last_error":   cause,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark email failed")
	}
	return nil
}

// UpdateCloudURL refreshes the stored download URL. Best-effort callers
// ignore failures and keep the prior value.
func (r *repository) UpdateCloudURL(ctx context.Context, receiptID, url string) error {
	if url == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "url is required")
	}
	err := r.db.WithContext(ctx).
		Model(&models.Receipt{}).
		Where("receipt_id = ?", receiptID).
		Update("pdf_cloud_url", url).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cloud url")
	}
	return nil
}

func (r *repository) FindByReceiptID(ctx context.Context, receiptID string) (*models.Receipt, error) {
	var receipt models.Receipt
	err := r.db.WithContext(ctx).Where("receipt_id = ?", receiptID).First(&receipt).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "receipt not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup receipt")
	}
	return &receipt, nil
}

func (r *repository) FindByPaymentReference(ctx context.Context, paymentReference string) (*models.Receipt, error) {
	var receipt models.Receipt
	err := r.db.WithContext(ctx).Where("payment_reference = ?", paymentReference).First(&receipt).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "receipt not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup receipt")
	}
	return &receipt, nil
}

func (r *repository) List(ctx context.Context, params ListParams) ([]models.Receipt, int64, error) {
	norm := pagination.Normalize(params.Page)

	query := r.db.WithContext(ctx).Model(&models.Receipt{})
	if params.Email != "" {
		query = query.Where("emailed_to = ?", params.Email)
	}
	if params.OrderID != "" {
		query = query.Where("order_id = ?", params.OrderID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count receipts")
	}

	var rows []models.Receipt
	err := query.
		Order("created_at DESC").
		Limit(norm.Limit).
		Offset(params.Page.Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list receipts")
	}
	return rows, total, nil
}
