package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/stockledger-backend/api/responses"
	"github.com/angelmondragon/stockledger-backend/pkg/auth"
	"github.com/angelmondragon/stockledger-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
)

// Auth verifies the bearer token and puts the caller's tenant, user and
// role on the request context.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := auth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			role := claims.EffectiveRole()
			ctx := WithTenantID(r.Context(), claims.TenantID)
			ctx = WithUserID(ctx, claims.UserID.String())
			ctx = WithRole(ctx, role)
			ctx = outbox.ContextWithActor(ctx, outbox.ActorRef{UserID: claims.UserID, Role: string(role)})
			if logg != nil {
				ctx = logg.WithTenantID(ctx, claims.TenantID.String())
				ctx = logg.WithUserID(ctx, claims.UserID.String())
				ctx = logg.WithField(ctx, "actor_role", string(role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose role does not reach min. It must run
// after Auth.
func RequireRole(min auth.Role, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if role := RoleFromContext(r.Context()); !role.AtLeast(min) {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeForbidden, "insufficient role").
						WithDetail("required", string(min)).
						WithDetail("role", string(role)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken accepts "Bearer <token>" in any case, or a bare token.
func bearerToken(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, rest, found := strings.Cut(raw, " "); found && strings.EqualFold(scheme, "bearer") {
		raw = strings.TrimSpace(rest)
	}
	return raw, raw != ""
}
