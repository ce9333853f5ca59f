package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomascarrillo/shoply-backend/api/responses"
	"github.com/tomascarrillo/shoply-backend/api/validators"
	"github.com/tomascarrillo/shoply-backend/internal/refunds"
	pkgerrors "github.com/tomascarrillo/shoply-backend/pkg/errors"
	"github.com/tomascarrillo/shoply-backend/pkg/logger"
)

type refundRequest struct {
	AmountCents *int64 `json:"amountCents,omitempty" validate:"omitempty,min=1"`
	Reason      string `json:"reason" validate:"required,max=500"`
}

// IssueRefund refunds part or all of a captured payment intent.
func IssueRefund(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refunds service unavailable"))
			return
		}

		intentID := strings.TrimSpace(chi.URLParam(r, "intentID"))
		if intentID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required"))
			return
		}

		var payload refundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Issue(r.Context(), intentID, payload.AmountCents, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, record)
	}
}

// ListRefunds returns every refund recorded against a payment intent.
func ListRefunds(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refunds service unavailable"))
			return
		}

		intentID := strings.TrimSpace(chi.URLParam(r, "intentID"))
		if intentID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required"))
			return
		}

		records, err := svc.ListForIntent(r.Context(), intentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, records)
	}
}
