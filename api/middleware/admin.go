package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-payouts/api/responses"
	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
	"github.com/angelmondragon/marketplace-payouts/pkg/logger"
)

const (
	AdminKeyHeader = "X-Admin-Key"
	AdminIDHeader  = "X-Admin-Id"
)

// AdminAuth admits operator requests carrying the shared admin key and an
// operator id. An empty key disables the admin surface entirely.
func AdminAuth(apiKey string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if apiKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin api disabled"))
				return
			}
			presented := strings.TrimSpace(r.Header.Get(AdminKeyHeader))
			if subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) != 1 {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid admin key"))
				return
			}
			adminID, err := uuid.Parse(strings.TrimSpace(r.Header.Get(AdminIDHeader)))
			if err != nil || adminID == uuid.Nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin id header required"))
				return
			}

			ctx = WithAdminID(ctx, adminID)
			if logg != nil {
				ctx = logg.WithActorRole(logg.WithField(ctx, "admin_id", adminID.String()), "admin")
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
