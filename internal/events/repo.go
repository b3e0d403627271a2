package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/receipts-backend/pkg/db"
	"github.com/angelmondragon/receipts-backend/pkg/db/models"
	"github.com/angelmondragon/receipts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipts-backend/pkg/errors"
)

// ClaimOutcome classifies what an idempotent claim attempt produced.
type ClaimOutcome int

const (
	// OutcomeClaimed means this caller owns the event and must run the pipeline.
	OutcomeClaimed ClaimOutcome = iota
	// OutcomeDuplicateCompleted means the event already finished; treat as success.
	OutcomeDuplicateCompleted
	// OutcomeDuplicateInFlight means another claimant holds the event right now.
	OutcomeDuplicateInFlight
)

// ClaimResult is the outcome of Claim plus the stored event when claimed.
type ClaimResult struct {
	Outcome ClaimOutcome
	Event   *models.WebhookEvent
}

// Repository is the durable ledger of webhook events and their claim status.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Claim(ctx context.Context, eventID string, eventType enums.EventType, payload json.RawMessage) (ClaimResult, error)
	Finalize(ctx context.Context, eventID string, status enums.WebhookStatus, lastError string) error
	FindByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an events repository bound to the provided DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Claim transitions the event row to PROCESSING if this caller wins. The
// conditional update re-arms FAILED rows (manual resend), the unique index on
// event_id collapses first-sighting races, and the re-read classifies losers.
func (r *repository) Claim(ctx context.Context, eventID string, eventType enums.EventType, payload json.RawMessage) (ClaimResult, error) {
	if eventID == "" {
		return ClaimResult{}, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}

	update := r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("event_id = ? AND status NOT IN ?", eventID, []enums.WebhookStatus{enums.WebhookProcessing, enums.WebhookCompleted}).
		Updates(map[string]any{
			"status":     enums.WebhookProcessing,
			"event_type": eventType,
			"payload":    payload,
			"last_error": nil,
		})
	if update.Error != nil {
		return ClaimResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, update.Error, "claim update")
	}
	if update.RowsAffected > 0 {
		event, err := r.FindByEventID(ctx, eventID)
		if err != nil {
			return ClaimResult{}, err
		}
		return ClaimResult{Outcome: OutcomeClaimed, Event: event}, nil
	}

	// No FAILED row to re-arm. Either the row does not exist yet or it is
	// held/finished; try the insert and let the unique index decide.
	event := &models.WebhookEvent{
		ID:        uuid.New(),
		EventID:   eventID,
		EventType: eventType,
		Status:    enums.WebhookProcessing,
		Payload:   payload,
	}
	createErr := r.db.WithContext(ctx).Create(event).Error
	if createErr == nil {
		return ClaimResult{Outcome: OutcomeClaimed, Event: event}, nil
	}
	if !db.IsUniqueViolation(createErr, "idx_webhook_events_event_id") {
		return ClaimResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, createErr, "claim insert")
	}

	existing, err := r.FindByEventID(ctx, eventID)
	if err != nil {
		return ClaimResult{}, err
	}
	switch existing.Status {
	case enums.WebhookCompleted:
		return ClaimResult{Outcome: OutcomeDuplicateCompleted, Event: existing}, nil
	case enums.WebhookProcessing:
		return ClaimResult{Outcome: OutcomeDuplicateInFlight, Event: existing}, nil
	default:
		// Lost the insert race to a claimant that already failed; surface a
		// conflict so the caller can resend rather than looping here.
		return ClaimResult{}, pkgerrors.New(pkgerrors.CodeStateConflict, "event in unexpected state")
	}
}

// Finalize records a terminal status and processed timestamp. Idempotent:
// repeated calls rewrite the same terminal state, but a COMPLETED row is
// never demoted.
func (r *repository) Finalize(ctx context.Context, eventID string, status enums.WebhookStatus, lastError string) error {
	if status != enums.WebhookCompleted && status != enums.WebhookFailed {
		return pkgerrors.New(pkgerrors.CodeValidation, "finalize requires a terminal status")
	}

	updates := map[string]any{
		"status":       status,
		"processed_at": time.Now().UTC(),
	}
	if lastError != "" {
		updates["last_error"] = lastError
	} else {
		updates["last_error"] = nil
	}

	query := r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID)
	if status == enums.WebhookFailed {
		query = query.Where("status <> ?", enums.WebhookCompleted)
	}

	if err := query.Updates(updates).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize event")
	}
	return nil
}

func (r *repository) FindByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&event).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup event")
	}
	return &event, nil
}
