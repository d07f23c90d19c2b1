package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/danielcastano/rentora-backend/api/middleware"
	"github.com/danielcastano/rentora-backend/api/responses"
	"github.com/danielcastano/rentora-backend/api/validators"
	"github.com/danielcastano/rentora-backend/internal/payments"
	pkgerrors "github.com/danielcastano/rentora-backend/pkg/errors"
	"github.com/danielcastano/rentora-backend/pkg/logger"
)

type createRentOrderRequest struct {
	ObligationID string `json:"obligation_id" validate:"required,uuid4"`
}

type confirmRentPaymentRequest struct {
	ObligationID string `json:"obligation_id" validate:"required,uuid4"`
	OrderID      string `json:"order_id" validate:"required,max=128"`
	PaymentID    string `json:"payment_id" validate:"required,max=128"`
	Signature    string `json:"signature" validate:"required,max=256"`
}

// CreateRentOrder opens a gateway order for a pending obligation.
func CreateRentOrder(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createRentOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		obligationID, err := uuid.Parse(body.ObligationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid obligation id"))
			return
		}
		order, err := svc.CreateRentOrder(r.Context(), obligationID, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// ConfirmRentPayment verifies the gateway callback and settles the obligation.
func ConfirmRentPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body confirmRentPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		obligationID, err := uuid.Parse(body.ObligationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid obligation id"))
			return
		}
		obligation, err := svc.ConfirmRentPayment(r.Context(), payments.ConfirmParams{
			ObligationID: obligationID,
			OrderID:      body.OrderID,
			PaymentID:    body.PaymentID,
			Signature:    body.Signature,
		}, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, obligation)
	}
}
