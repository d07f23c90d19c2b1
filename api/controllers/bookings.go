package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/danielcastano/rentora-backend/api/middleware"
	"github.com/danielcastano/rentora-backend/api/responses"
	"github.com/danielcastano/rentora-backend/api/validators"
	"github.com/danielcastano/rentora-backend/internal/bookings"
	"github.com/danielcastano/rentora-backend/pkg/auth"
	"github.com/danielcastano/rentora-backend/pkg/db/models"
	"github.com/danielcastano/rentora-backend/pkg/enums"
	pkgerrors "github.com/danielcastano/rentora-backend/pkg/errors"
	"github.com/danielcastano/rentora-backend/pkg/logger"
)

const dateLayout = "2006-01-02"

type createBookingRequest struct {
	PropertyID      string `json:"property_id" validate:"required,uuid4"`
	StartDate       string `json:"start_date" validate:"required"`
	EndDate         string `json:"end_date,omitempty"`
	MonthlyRent     string `json:"monthly_rent,omitempty"`
	SecurityDeposit string `json:"security_deposit,omitempty"`
	IdempotencyKey  string `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
}

type approveBookingRequest struct {
	MonthlyRent     string `json:"monthly_rent,omitempty"`
	SecurityDeposit string `json:"security_deposit,omitempty"`
}

type endBookingRequest struct {
	Reason        string `json:"reason,omitempty" validate:"omitempty,max=500"`
	RefundDeposit bool   `json:"refund_deposit,omitempty"`
}

// CreateBooking places a booking request and escrows the deposit.
func CreateBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createBookingRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		propertyID, err := uuid.Parse(body.PropertyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid property id"))
			return
		}
		start, err := time.Parse(dateLayout, body.StartDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "start_date must be YYYY-MM-DD"))
			return
		}
		params := bookings.CreateParams{
			PropertyID:     propertyID,
			StartDate:      start,
			IdempotencyKey: validators.SanitizeString(body.IdempotencyKey, 128),
		}
		if body.EndDate != "" {
			end, err := time.Parse(dateLayout, body.EndDate)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "end_date must be YYYY-MM-DD"))
				return
			}
			params.EndDate = &end
		}
		if body.MonthlyRent != "" {
			rent, err := decimal.NewFromString(body.MonthlyRent)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid monthly_rent"))
				return
			}
			params.MonthlyRent = &rent
		}
		if body.SecurityDeposit != "" {
			deposit, err := decimal.NewFromString(body.SecurityDeposit)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid security_deposit"))
				return
			}
			params.SecurityDeposit = &deposit
		}

		booking, err := svc.Create(r.Context(), params, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, booking)
	}
}

// GetBooking returns a single booking visible to the caller.
func GetBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking id"))
			return
		}
		booking, err := svc.Get(r.Context(), bookingID, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// ListMyBookings returns the caller's bookings as a tenant.
func ListMyBookings(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return listBookings(svc, logg, svc.ListForTenant)
}

// ListOwnerBookings returns bookings against properties the caller owns.
func ListOwnerBookings(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return listBookings(svc, logg, svc.ListForOwner)
}

// ListPendingApprovals returns bookings awaiting the caller's decision.
func ListPendingApprovals(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return listBookings(svc, logg, svc.ListPendingApprovals)
}

func listBookings(svc bookings.Service, logg *logger.Logger, query func(context.Context, bookings.ListParams) (*bookings.ListResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := bookings.ListParams{
			UserID: middleware.ActorFromContext(r.Context()).UserID,
			Limit:  limit,
			Cursor: validators.SanitizeString(r.URL.Query().Get("cursor"), 256),
		}
		if raw := validators.SanitizeString(r.URL.Query().Get("status"), 32); raw != "" {
			status, err := enums.ParseBookingStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			params.Status = &status
		}

		result, err := query(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ApproveBooking activates a pending booking, optionally overriding terms.
func ApproveBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking id"))
			return
		}

		var body approveBookingRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := bookings.ApproveParams{}
		if body.MonthlyRent != "" {
			rent, err := decimal.NewFromString(body.MonthlyRent)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid monthly_rent"))
				return
			}
			params.MonthlyRent = &rent
		}
		if body.SecurityDeposit != "" {
			deposit, err := decimal.NewFromString(body.SecurityDeposit)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid security_deposit"))
				return
			}
			params.SecurityDeposit = &deposit
		}

		booking, err := svc.Approve(r.Context(), bookingID, params, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// RejectBooking declines a pending booking.
func RejectBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking id"))
			return
		}
		var body endBookingRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		booking, err := svc.Reject(r.Context(), bookingID, validators.SanitizeString(body.Reason, 500), middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// CancelBooking cancels a pending or active booking.
func CancelBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return endBooking(svc.Cancel, logg)
}

// TerminateBooking ends an active booking early.
func TerminateBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return endBooking(svc.Terminate, logg)
}

func endBooking(op func(context.Context, uuid.UUID, bookings.EndParams, auth.Actor) (*models.Booking, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking id"))
			return
		}
		var body endBookingRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		booking, err := op(r.Context(), bookingID, bookings.EndParams{
			Reason:        validators.SanitizeString(body.Reason, 500),
			RefundDeposit: body.RefundDeposit,
		}, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}
