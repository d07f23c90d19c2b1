package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/danielcastano/rentora-backend/api/middleware"
	"github.com/danielcastano/rentora-backend/api/responses"
	"github.com/danielcastano/rentora-backend/api/validators"
	"github.com/danielcastano/rentora-backend/internal/obligations"
	pkgerrors "github.com/danielcastano/rentora-backend/pkg/errors"
	"github.com/danielcastano/rentora-backend/pkg/logger"
)

// GetObligation returns a single obligation visible to the caller.
func GetObligation(svc obligations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		obligationID, err := uuid.Parse(chi.URLParam(r, "obligationID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid obligation id"))
			return
		}
		obligation, err := svc.Get(r.Context(), obligationID, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, obligation)
	}
}

// ListPendingObligations returns the caller's unpaid rent schedule.
func ListPendingObligations(svc obligations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ListPendingForTenant(r.Context(), obligations.ListParams{
			TenantID: middleware.ActorFromContext(r.Context()).UserID,
			Limit:    limit,
			Cursor:   validators.SanitizeString(r.URL.Query().Get("cursor"), 256),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ListBookingObligations returns the full schedule for one booking.
func ListBookingObligations(svc obligations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking id"))
			return
		}
		items, err := svc.ListForBooking(r.Context(), bookingID, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": items})
	}
}

// PayObligation settles an obligation from the caller's wallet.
func PayObligation(svc obligations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		obligationID, err := uuid.Parse(chi.URLParam(r, "obligationID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid obligation id"))
			return
		}
		obligation, err := svc.PayFromWallet(r.Context(), obligationID, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, obligation)
	}
}
