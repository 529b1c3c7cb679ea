package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const ctxAdminID contextKey = "admin_id"

// AdminIDFromContext returns the authenticated operator, or uuid.Nil.
func AdminIDFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ctxAdminID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// WithAdminID injects the operator identifier into the context.
func WithAdminID(ctx context.Context, adminID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxAdminID, adminID)
}
