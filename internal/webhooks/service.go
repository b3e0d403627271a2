package webhooks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/receipts-backend/internal/events"
	"github.com/angelmondragon/receipts-backend/internal/signature"
	"github.com/angelmondragon/receipts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipts-backend/pkg/errors"
	"github.com/angelmondragon/receipts-backend/pkg/logger"
	"github.com/angelmondragon/receipts-backend/pkg/types"
)

// Outcome classifies the ingestion result for response mapping.
type Outcome string

const (
	// OutcomeAccepted means the event was claimed and queued for processing.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeDuplicateCompleted means the event already finished processing.
	OutcomeDuplicateCompleted Outcome = "duplicate_completed"
	// OutcomeDuplicateInFlight means another claimant is processing the event.
	OutcomeDuplicateInFlight Outcome = "duplicate_in_flight"
)

// IngestInput is one inbound webhook delivery.
type IngestInput struct {
	RawBody         []byte
	SignatureHeader string
	HeaderEventID   string
}

// IngestResult is what the ingestion boundary reports back to the controller.
type IngestResult struct {
	Outcome          Outcome
	EventID          string
	SignatureSkipped bool
}

type eventClaimer interface {
	Claim(ctx context.Context, eventID string, eventType enums.EventType, payload json.RawMessage) (events.ClaimResult, error)
}

type jobEnqueuer interface {
	Enqueue(ctx context.Context, eventID string) error
}

type signatureVerifier interface {
	Verify(rawBody []byte, header string) (signature.Result, error)
}

// Service is the ingestion boundary: authenticate, validate, claim, dispatch.
// Once an event is claimed and queued the HTTP response returns immediately;
// pipeline failures surface asynchronously on the event and receipt rows.
type Service struct {
	verifier   signatureVerifier
	events     eventClaimer
	dispatcher jobEnqueuer
	validate   *validator.Validate
	logg       *logger.Logger
}

// ServiceParams wires the ingestion dependencies.
type ServiceParams struct {
	Verifier   signatureVerifier
	Events     eventClaimer
	Dispatcher jobEnqueuer
	Logger     *logger.Logger
}

// NewService validates wiring and returns the ingestion service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Verifier == nil {
		return nil, fmt.Errorf("signature verifier required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("events repository required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		verifier:   params.Verifier,
		events:     params.Events,
		dispatcher: params.Dispatcher,
		validate:   validator.New(),
		logg:       params.Logger,
	}, nil
}

// Ingest runs the inbound path for one delivery. Authentication and
// validation failures reject before any row is written.
func (s *Service) Ingest(ctx context.Context, input IngestInput) (IngestResult, error) {
	verified, err := s.verifier.Verify(input.RawBody, input.SignatureHeader)
	if err != nil {
		return IngestResult{}, err
	}
	if verified.Skipped {
		s.logg.Warn(ctx, "webhook secret not configured, accepting unverified delivery")
	}

	var payload types.WebhookEventPayload
	if err := json.Unmarshal(input.RawBody, &payload); err != nil {
		return IngestResult{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook body")
	}
	if err := s.validate.Struct(&payload); err != nil {
		return IngestResult{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}

	eventType, err := enums.ParseEventType(payload.EventType)
	if err != nil {
		return IngestResult{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported event type")
	}

	// the header id, when present, must agree with the body before any claim
	if input.HeaderEventID != "" && input.HeaderEventID != payload.EventID {
		return IngestResult{}, pkgerrors.New(pkgerrors.CodeValidation, "event id header does not match body")
	}

	ctx = s.logg.WithEventID(ctx, payload.EventID)
	claim, err := s.events.Claim(ctx, payload.EventID, eventType, input.RawBody)
	if err != nil {
		return IngestResult{}, err
	}

	result := IngestResult{EventID: payload.EventID, SignatureSkipped: verified.Skipped}
	switch claim.Outcome {
	case events.OutcomeDuplicateCompleted:
		result.Outcome = OutcomeDuplicateCompleted
		return result, nil
	case events.OutcomeDuplicateInFlight:
		result.Outcome = OutcomeDuplicateInFlight
		return result, nil
	}

	if err := s.dispatcher.Enqueue(ctx, payload.EventID); err != nil {
		return IngestResult{}, err
	}
	result.Outcome = OutcomeAccepted
	s.logg.Info(ctx, "webhook accepted")
	return result, nil
}
