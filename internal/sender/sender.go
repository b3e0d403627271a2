package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/receipts-backend/internal/signature"
	"github.com/angelmondragon/receipts-backend/pkg/db/models"
	"github.com/angelmondragon/receipts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipts-backend/pkg/errors"
	"github.com/angelmondragon/receipts-backend/pkg/logger"
	"github.com/angelmondragon/receipts-backend/pkg/types"
)

// DefaultSendTimeout bounds one outbound delivery.
const DefaultSendTimeout = 10 * time.Second

type eventLookup interface {
	FindByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error)
}

// MockInput overrides parts of a fabricated payload. Zero values fall back to
// randomized data.
type MockInput struct {
	EventType     string
	CustomerName  string
	CustomerEmail string
	ReceiverURL   string
	DryRun        bool
}

// ResendInput re-dispatches a stored event payload.
type ResendInput struct {
	EventID     string
	ReceiverURL string
	DryRun      bool
}

// Dispatch reports one outbound delivery attempt.
type Dispatch struct {
	EventID         string          `json:"event_id"`
	ReceiverURL     string          `json:"receiver_url"`
	SignatureHeader string          `json:"signature_header"`
	Payload         json.RawMessage `json:"payload"`
	DryRun          bool            `json:"dry_run"`
	StatusCode      int             `json:"status_code,omitempty"`
}

// Sender fabricates and re-dispatches provider webhooks against a receiver
// endpoint. It signs outbound bodies with the same header format the inbound
// verifier checks, so the system can exercise its own ingestion path.
type Sender struct {
	events      eventLookup
	signer      *signature.Signer
	httpClient  *http.Client
	receiverURL string
	logg        *logger.Logger
	rng         *rand.Rand
}

// Params wires the sender dependencies.
type Params struct {
	Events      eventLookup
	Signer      *signature.Signer
	ReceiverURL string
	SendTimeout time.Duration
	Logger      *logger.Logger
}

// New validates wiring and returns a sender.
func New(params Params) (*Sender, error) {
	if params.Events == nil {
		return nil, fmt.Errorf("events repository required")
	}
	if params.Signer == nil {
		return nil, fmt.Errorf("signer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	timeout := params.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Sender{
		events:      params.Events,
		signer:      params.Signer,
		httpClient:  &http.Client{Timeout: timeout},
		receiverURL: params.ReceiverURL,
		logg:        params.Logger,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

var mockNames = []string{"Ada Lovelace", "Grace Hopper", "Alan Turing", "Edsger Dijkstra", "Barbara Liskov"}

var mockItems = []string{"Widget", "Gadget", "Gizmo", "Doohickey", "Thingamajig"}

// BuildMockPayload fabricates a plausible provider event. Totals are derived
// from the line items with 2-decimal rounding so the payload passes the order
// validation downstream.
func (s *Sender) BuildMockPayload(input MockInput) (*types.WebhookEventPayload, error) {
	eventType := input.EventType
	if eventType == "" {
		eventType = string(enums.EventOrderPaid)
	}
	if _, err := enums.ParseEventType(eventType); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported event type")
	}

	name := input.CustomerName
	if name == "" {
		name = mockNames[s.rng.Intn(len(mockNames))]
	}
	email := input.CustomerEmail
	if email == "" {
		email = fmt.Sprintf("customer+%04d@example.com", s.rng.Intn(10000))
	}

	itemCount := 1 + s.rng.Intn(3)
	items := make(types.OrderItems, 0, itemCount)
	quantity := 0
	total := decimal.Zero
	for i := 0; i < itemCount; i++ {
		qty := 1 + s.rng.Intn(4)
		unit := decimal.NewFromFloat(1 + s.rng.Float64()*99).Round(2)
		items = append(items, types.OrderItem{
			Name:      mockItems[s.rng.Intn(len(mockItems))],
			Quantity:  qty,
			UnitPrice: unit,
		})
		quantity += qty
		total = total.Add(unit.Mul(decimal.NewFromInt(int64(qty))))
	}
	total = total.Round(2)
	unitPrice := total.Div(decimal.NewFromInt(int64(quantity))).Round(2)

	now := time.Now().UTC()
	return &types.WebhookEventPayload{
		EventID:   fmt.Sprintf("evt_%s", uuid.NewString()),
		EventType: eventType,
		Payment: types.WebhookPayment{
			Reference: fmt.Sprintf("pay_%s", uuid.NewString()),
			Amount:    total,
			Currency:  "USD",
			Method:    string(enums.PaymentCreditCard),
			Status:    "succeeded",
			PaidAt:    &now,
		},
		Order: types.WebhookOrder{
			ID:         fmt.Sprintf("ORD-%06d", s.rng.Intn(1000000)),
			Items:      items,
			Quantity:   quantity,
			UnitPrice:  unitPrice,
			TotalPrice: total,
			Date:       &now,
		},
		Customer: types.WebhookCustomer{Name: name, Email: email},
		Store: types.WebhookStore{
			Name:    "Acme Outfitters",
			Address: "1 Main St, Springfield",
			Phone:   "+1 555 0100",
		},
	}, nil
}

// SendMock fabricates a payload and dispatches it.
func (s *Sender) SendMock(ctx context.Context, input MockInput) (*Dispatch, error) {
	payload, err := s.BuildMockPayload(input)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal mock payload")
	}
	return s.dispatch(ctx, payload.EventID, body, input.ReceiverURL, input.DryRun)
}

// Resend re-dispatches the stored payload for a known event.
func (s *Sender) Resend(ctx context.Context, input ResendInput) (*Dispatch, error) {
	if input.EventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	event, err := s.events.FindByEventID(ctx, input.EventID)
	if err != nil {
		return nil, err
	}
	if len(event.Payload) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "event has no stored payload")
	}
	return s.dispatch(ctx, event.EventID, event.Payload, input.ReceiverURL, input.DryRun)
}

// dispatch signs and posts the body. A dry run computes the header and stops
// before any network call.
func (s *Sender) dispatch(ctx context.Context, eventID string, body []byte, receiverURL string, dryRun bool) (*Dispatch, error) {
	target := receiverURL
	if target == "" {
		target = s.receiverURL
	}
	if target == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no receiver url configured or provided")
	}

	header := s.signer.Sign(body)
	result := &Dispatch{
		EventID:         eventID,
		ReceiverURL:     target,
		SignatureHeader: header,
		Payload:         body,
		DryRun:          dryRun,
	}
	if dryRun {
		return result, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build dispatch request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-webhook-id", eventID)
	if header != "" {
		req.Header.Set(signature.Header, header)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dispatch webhook")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	result.StatusCode = resp.StatusCode
	if resp.StatusCode >= http.StatusBadRequest {
		return result, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("receiver returned %d", resp.StatusCode))
	}
	s.logg.Info(s.logg.WithEventID(ctx, eventID), "webhook dispatched")
	return result, nil
}
