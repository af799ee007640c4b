package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/api/responses"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// RateLimitPolicy defines a fixed window request budget.
type RateLimitPolicy struct {
	Window time.Duration
	Limit  int64
}

func (p RateLimitPolicy) enabled() bool {
	return p.Window > 0 && p.Limit > 0
}

// windowStart buckets now so every counter of one window shares a key.
func (p RateLimitPolicy) windowStart(now time.Time) int64 {
	return now.Truncate(p.Window).Unix()
}

// RateLimit enforces a per-tenant budget on authenticated routes. Requests
// without a tenant fall back to the client IP.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			subject := "ip:" + clientIP(r)
			if tenantID := TenantIDFromContext(ctx); tenantID != uuid.Nil {
				subject = "tenant:" + tenantID.String()
			}
			key := store.RateLimitKey(subject + ":" + strconv.FormatInt(policy.windowStart(time.Now()), 10))

			count, err := store.IncrWithTTL(ctx, key, policy.Window)
			if err != nil {
				// Fail open.
				if logg != nil {
					logg.Error(ctx, "rate_limit.store_failed", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if count > policy.Limit {
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"subject":        subject,
						"attempts":       count,
						"limit":          policy.Limit,
						"window_seconds": int(policy.Window.Seconds()),
					})
					logg.Warn(logCtx, "rate_limit.blocked")
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(policy.Window.Seconds())))
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
