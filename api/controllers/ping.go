package controllers

import (
	"net/http"

	"github.com/angelmondragon/marketplace-payouts/api/middleware"
	"github.com/angelmondragon/marketplace-payouts/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

func AdminPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{
			"scope":    "admin",
			"status":   "ok",
			"admin_id": middleware.AdminIDFromContext(r.Context()).String(),
		})
	}
}
