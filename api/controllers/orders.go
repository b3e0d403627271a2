package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/receipts-backend/api/responses"
	"github.com/angelmondragon/receipts-backend/api/validators"
	"github.com/angelmondragon/receipts-backend/internal/orders"
	"github.com/angelmondragon/receipts-backend/internal/receipts"
	"github.com/angelmondragon/receipts-backend/pkg/db/models"
	"github.com/angelmondragon/receipts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipts-backend/pkg/errors"
	"github.com/angelmondragon/receipts-backend/pkg/logger"
	"github.com/angelmondragon/receipts-backend/pkg/pagination"
)

type orderDirectory interface {
	List(ctx context.Context, params orders.ListParams) ([]models.Order, int64, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.Order, error)
}

func parseOrderListParams(r *http.Request) (orders.ListParams, error) {
	page, err := validators.ParsePagination(r)
	if err != nil {
		return orders.ListParams{}, err
	}

	params := orders.ListParams{
		Email: strings.TrimSpace(r.URL.Query().Get("email")),
		Page:  page,
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return orders.ListParams{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").WithDetails(map[string]any{"status": raw})
		}
		params.Status = status
	}
	if params.From, err = validators.ParseQueryTime(r, "from"); err != nil {
		return orders.ListParams{}, err
	}
	if params.To, err = validators.ParseQueryTime(r, "to"); err != nil {
		return orders.ListParams{}, err
	}
	return params, nil
}

// ListOrders returns paginated order snapshots filtered by customer email,
// billing status and order-date window.
func ListOrders(repo orderDirectory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := parseOrderListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, total, err := repo.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"orders":     rows,
			"pagination": pagination.BuildPage(params.Page, total),
		})
	}
}

// GetOrder fetches one order snapshot and, when includeReceipts is set, the
// receipts produced for it.
func GetOrder(repo orderDirectory, svc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "orderId")

		order, err := repo.FindByOrderID(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := map[string]any{"order": order}
		if validators.ParseQueryBool(r, "includeReceipts") && svc != nil {
			views, _, err := svc.List(r.Context(), receipts.ListParams{OrderID: orderID})
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			payload["receipts"] = views
		}
		responses.WriteSuccess(w, payload)
	}
}

// ListOrderReceipts returns the receipts generated for one order, newest
// first. Responds 404 when the order itself is unknown.
func ListOrderReceipts(repo orderDirectory, svc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "orderId")

		if _, err := repo.FindByOrderID(r.Context(), orderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		views, pageInfo, err := svc.List(r.Context(), receipts.ListParams{
			OrderID: orderID,
			Page:    page,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"order_id":   orderID,
			"receipts":   views,
			"pagination": pageInfo,
		})
	}
}
