package controllers

import (
	"net/http"

	"github.com/danielcastano/rentora-backend/api/middleware"
	"github.com/danielcastano/rentora-backend/api/responses"
	"github.com/danielcastano/rentora-backend/api/validators"
	"github.com/danielcastano/rentora-backend/internal/wallet"
	"github.com/danielcastano/rentora-backend/pkg/logger"
)

// GetWalletBalance returns the caller's current balance.
func GetWalletBalance(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		balance, err := svc.Balance(r.Context(), middleware.ActorFromContext(r.Context()).UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"balance": balance.StringFixed(2)})
	}
}

// ListWalletEntries returns the caller's ledger history, newest first.
func ListWalletEntries(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Entries(r.Context(), wallet.ListParams{
			UserID: middleware.ActorFromContext(r.Context()).UserID,
			Limit:  limit,
			Cursor: validators.SanitizeString(r.URL.Query().Get("cursor"), 256),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
