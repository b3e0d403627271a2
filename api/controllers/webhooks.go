package controllers

import (
	"io"
	"net/http"

	"github.com/angelmondragon/receipts-backend/api/responses"
	"github.com/angelmondragon/receipts-backend/internal/signature"
	"github.com/angelmondragon/receipts-backend/internal/webhooks"
	pkgerrors "github.com/angelmondragon/receipts-backend/pkg/errors"
	"github.com/angelmondragon/receipts-backend/pkg/logger"
)

// maxWebhookBodyBytes bounds inbound payload size.
const maxWebhookBodyBytes = 1 << 20

// eventIDHeader optionally duplicates the body event id for cross-checking.
const eventIDHeader = "x-webhook-id"

// PaymentWebhook ingests one provider delivery. The raw body is read before
// any decoding because the signature covers the exact bytes on the wire.
func PaymentWebhook(svc *webhooks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
			return
		}

		result, err := svc.Ingest(r.Context(), webhooks.IngestInput{
			RawBody:         body,
			SignatureHeader: r.Header.Get(signature.Header),
			HeaderEventID:   r.Header.Get(eventIDHeader),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := map[string]any{
			"event_id": result.EventID,
			"status":   string(result.Outcome),
		}
		switch result.Outcome {
		case webhooks.OutcomeDuplicateInFlight:
			responses.WriteSuccessStatus(w, http.StatusAccepted, payload)
		default:
			responses.WriteSuccess(w, payload)
		}
	}
}
