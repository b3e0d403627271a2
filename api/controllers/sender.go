package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/receipts-backend/api/responses"
	"github.com/angelmondragon/receipts-backend/api/validators"
	"github.com/angelmondragon/receipts-backend/internal/sender"
	"github.com/angelmondragon/receipts-backend/pkg/logger"
)

type mockSenderRequest struct {
	EventType     string `json:"event_type"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
	ReceiverURL   string `json:"receiver_url" validate:"omitempty,url"`
	DryRun        bool   `json:"dry_run"`
}

type resendRequest struct {
	ReceiverURL string `json:"receiver_url" validate:"omitempty,url"`
	DryRun      bool   `json:"dry_run"`
}

// SendMockWebhook fabricates a signed provider event and dispatches it to the
// receiver endpoint.
func SendMockWebhook(s *sender.Sender, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mockSenderRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := s.SendMock(r.Context(), sender.MockInput{
			EventType:     req.EventType,
			CustomerName:  req.CustomerName,
			CustomerEmail: req.CustomerEmail,
			ReceiverURL:   req.ReceiverURL,
			DryRun:        req.DryRun,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ResendWebhook re-dispatches the stored payload for a known event.
func ResendWebhook(s *sender.Sender, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resendRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := s.Resend(r.Context(), sender.ResendInput{
			EventID:     chi.URLParam(r, "eventId"),
			ReceiverURL: req.ReceiverURL,
			DryRun:      req.DryRun,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
