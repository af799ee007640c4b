package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/auth"
)

type contextKey string

const (
	ctxUserID   contextKey = "user_id"
	ctxRole     contextKey = "actor_role"
	ctxTenantID contextKey = "tenant_id"
	ctxReqID    contextKey = "request_id"
)

// RequestIDFromContext returns the id assigned by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxReqID).(string); ok {
		return v
	}
	return ""
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxReqID, id)
}

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

// RoleFromContext returns the caller's role, or "" when unauthenticated.
func RoleFromContext(ctx context.Context) auth.Role {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(auth.Role); ok {
		return v
	}
	return ""
}

// TenantIDFromContext returns uuid.Nil when the request is unauthenticated.
func TenantIDFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ctxTenantID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithTenantID injects the tenant for downstream handlers.
func WithTenantID(ctx context.Context, tenantID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxTenantID, tenantID)
}

// WithRole injects the caller's role.
func WithRole(ctx context.Context, role auth.Role) context.Context {
	return context.WithValue(ctx, ctxRole, role)
}
