package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/receipts-backend/pkg/db"
	"github.com/angelmondragon/receipts-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/receipts-backend/pkg/errors"
)

// staleLockAfter is how long a locked job may sit before another worker may
// steal it. Covers workers that died mid-attempt.
const staleLockAfter = 5 * time.Minute

// Repository is the durable job queue. One row per event id; successful jobs
// are deleted, exhausted jobs are kept with failed=true for inspection.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Enqueue(ctx context.Context, eventID string) (bool, error)
	ClaimDue(ctx context.Context, limit int) ([]models.ReceiptJob, error)
	Complete(ctx context.Context, id uuid.UUID) error
	Reschedule(ctx context.Context, job *models.ReceiptJob, cause string, nextRunAt time.Time) error
	MarkExhausted(ctx context.Context, job *models.ReceiptJob, cause string) error
	FindByEventID(ctx context.Context, eventID string) (*models.ReceiptJob, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a job repository bound to the provided DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Enqueue inserts the job row. A second enqueue while the job is live is a
// no-op, but a retained failed row is re-armed from scratch so a resent event
// gets a fresh attempt budget.
func (r *repository) Enqueue(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}

	job := &models.ReceiptJob{
		ID:        uuid.New(),
		EventID:   eventID,
		NextRunAt: time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).Create(job).Error
	if err != nil {
		if db.IsUniqueViolation(err, "idx_receipt_jobs_event_id") {
			return r.rearmFailed(ctx, eventID)
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue receipt job")
	}
	return true, nil
}

// rearmFailed resets a retained failed row so it becomes claimable again. A
// live row is left alone and reported as already queued.
func (r *repository) rearmFailed(ctx context.Context, eventID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ReceiptJob{}).
		Where("event_id = ? AND failed = ?", eventID, true).
		Updates(map[string]any{
			"failed":      false,
			"attempts":    0,
			"last_error":  nil,
			"next_run_at": time.Now().UTC(),
			"locked_at":   nil,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "rearm receipt job")
	}
	return res.RowsAffected > 0, nil
}

// ClaimDue locks up to limit runnable jobs for this worker. The lock is a
// conditional update per candidate so two pollers never claim the same row;
// rows with a stale lock are reclaimed.
func (r *repository) ClaimDue(ctx context.Context, limit int) ([]models.ReceiptJob, error) {
	now := time.Now().UTC()
	staleBefore := now.Add(-staleLockAfter)

	var candidates []models.ReceiptJob
	err := r.db.WithContext(ctx).
		Where("failed = ?", false).
		Where("next_run_at <= ?", now).
		Where("locked_at IS NULL OR locked_at < ?", staleBefore).
		Order("next_run_at ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch due jobs")
	}

	claimed := make([]models.ReceiptJob, 0, len(candidates))
	for i := range candidates {
		job := candidates[i]
		res := r.db.WithContext(ctx).
			Model(&models.ReceiptJob{}).
			Where("id = ?", job.ID).
			Where("locked_at IS NULL OR locked_at < ?", staleBefore).
			Update("locked_at", now)
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "lock job")
		}
		if res.RowsAffected == 0 {
			continue
		}
		job.LockedAt = &now
		claimed = append(claimed, job)
	}
	return claimed, nil
}

// Complete discards a finished job.
func (r *repository) Complete(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Delete(&models.ReceiptJob{}, "id = ?", id).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete job")
	}
	return nil
}

// Reschedule records a failed attempt and releases the lock for the next run.
func (r *repository) Reschedule(ctx context.Context, job *models.ReceiptJob, cause string, nextRunAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.ReceiptJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"attempts":    gorm.Expr("attempts + 1"),
			"last_error":  cause,
			"next_run_at": nextRunAt,
			"locked_at":   nil,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reschedule job")
	}
	return nil
}

// MarkExhausted retains the job for inspection once attempts run out or the
// failure is unrecoverable.
func (r *repository) MarkExhausted(ctx context.Context, job *models.ReceiptJob, cause string) error {
	err := r.db.WithContext(ctx).
		Model(&models.ReceiptJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": cause,
			"failed":     true,
			"locked_at":  nil,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark job exhausted")
	}
	return nil
}

func (r *repository) FindByEventID(ctx context.Context, eventID string) (*models.ReceiptJob, error) {
	var job models.ReceiptJob
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&job).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup job")
	}
	return &job, nil
}
