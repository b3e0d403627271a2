package controllers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/receipts-backend/api/middleware"
	"github.com/angelmondragon/receipts-backend/api/responses"
	"github.com/angelmondragon/receipts-backend/api/validators"
	"github.com/angelmondragon/receipts-backend/internal/receipts"
	"github.com/angelmondragon/receipts-backend/pkg/config"
	"github.com/angelmondragon/receipts-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/receipts-backend/pkg/errors"
	"github.com/angelmondragon/receipts-backend/pkg/logger"
)

type orderLookup interface {
	FindByOrderID(ctx context.Context, orderID string) (*models.Order, error)
}

type emailRetrier interface {
	RetryEmail(ctx context.Context, receiptID string) error
}

// ListReceipts returns paginated receipts, optionally filtered by the email
// they were sent to.
func ListReceipts(svc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		views, pageInfo, err := svc.List(r.Context(), receipts.ListParams{
			Email: strings.TrimSpace(r.URL.Query().Get("email")),
			Page:  page,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"receipts":   views,
			"pagination": pageInfo,
		})
	}
}

// GetReceipt fetches one receipt and, best effort, its order.
func GetReceipt(svc receipts.Service, orders orderLookup, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		receiptID := chi.URLParam(r, "receiptId")

		view, err := svc.Get(r.Context(), receiptID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := map[string]any{"receipt": view}
		if orders != nil {
			if order, err := orders.FindByOrderID(r.Context(), view.OrderID); err == nil {
				payload["order"] = order
			}
		}
		responses.WriteSuccess(w, payload)
	}
}

// ReceiptDownloadURL mints a time-limited download link for an uploaded
// receipt.
func ReceiptDownloadURL(svc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		link, err := svc.DownloadURL(r.Context(), chi.URLParam(r, "receiptId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, link)
	}
}

// DownloadReceipt streams the artifact bytes. Callers authenticate with the
// admin key or a download token; outside production the explicit
// allow-unauthenticated flag may waive both.
func DownloadReceipt(svc receipts.Service, admin config.AdminConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		receiptID := chi.URLParam(r, "receiptId")
		token := r.URL.Query().Get("token")

		bypass := middleware.IsAdmin(r.Context()) || (admin.Key == "" && admin.AllowUnauthenticated)

		data, filename, err := svc.Download(r.Context(), receiptID, token, bypass)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		disposition := "attachment"
		if validators.ParseQueryBool(r, "inline") {
			disposition = "inline"
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, filename))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil && logg != nil {
			logg.Error(r.Context(), "streaming receipt pdf", err)
		}
	}
}

// RetryReceiptEmail re-attempts delivery without touching the artifact.
func RetryReceiptEmail(retrier emailRetrier, svc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		receiptID := chi.URLParam(r, "receiptId")
		if retrier == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "retry service unavailable"))
			return
		}

		if err := retrier.RetryEmail(r.Context(), receiptID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Get(r.Context(), receiptID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"receipt": view})
	}
}
