package controllers

import (
	"net/http"

	"github.com/angelmondragon/stockledger-backend/api/middleware"
	"github.com/angelmondragon/stockledger-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// PrivatePing echoes the tenant resolved from the caller's token.
func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{
			"scope":     "private",
			"status":    "ok",
			"tenant_id": middleware.TenantIDFromContext(r.Context()).String(),
		})
	}
}
