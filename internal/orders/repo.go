package orders

import (
	"context"
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

// ListParams filters the order listing.
type ListParams struct {
	Email  string
	Status enums.OrderStatus
	From   *time.Time
	To     *time.Time
	Page   pagination.Params
}

// Repository persists provider order snapshots.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	List(ctx context.Context, params ListParams) ([]models.Order, int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Upsert writes the snapshot keyed by the provider order id. Later events for
// the same id overwrite business fields (last-write-wins).
func (r *repository) Upsert(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order == nil || order.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"customer_name", "customer_email", "items", "quantity",
				"unit_price", "total_price", "currency", "payment_method",
				"status", "store_name", "store_address", "store_phone",
				"order_date", "updated_at",
			}),
		}).
		Create(order).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert order")
	}

	return r.FindByOrderID(ctx, order.OrderID)
}

func (r *repository) FindByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order")
	}
	return &order, nil
}

// List pages through order snapshots, newest order date first. Date bounds
// apply to order_date, matching the provider's timeline rather than when the
// webhook landed.
func (r *repository) List(ctx context.Context, params ListParams) ([]models.Order, int64, error) {
	norm := pagination.Normalize(params.Page)

	query := r.db.WithContext(ctx).Model(&models.Order{})
	if params.Email != "" {
		query = query.Where("customer_email = ?", params.Email)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.From != nil {
		query = query.Where("order_date >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("order_date <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count orders")
	}

	var rows []models.Order
	err := query.
		Order("order_date DESC").
		Limit(norm.Limit).
		Offset(norm.Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, total, nil
}
