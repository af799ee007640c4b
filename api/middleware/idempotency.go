package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/stockledger-backend/api/responses"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/stockledger-backend/pkg/redis"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	inflightTTL            = 2 * time.Minute

	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
)

// retention groups the ledger routes by how long a replay record is kept.
type retention int

const (
	retainDefault retention = iota + 1
	retainCritical
)

// Routes that move stock or money keep their replay record for a week.
var idempotentRoutes = map[string]retention{
	"POST /api/v1/products":               retainDefault,
	"POST /api/v1/variants":               retainDefault,
	"POST /api/v1/imports":                retainDefault,
	"POST /api/v1/preorders":              retainDefault,
	"POST /api/v1/preorders/{id}/link":    retainDefault,
	"POST /api/v1/preorders/{id}/void":    retainDefault,
	"POST /api/v1/sales/{id}/settle":      retainDefault,
	"POST /api/v1/sales":                  retainCritical,
	"DELETE /api/v1/sales/{id}":           retainCritical,
	"POST /api/v1/preorders/{id}/fulfil":  retainCritical,
	"POST /api/v1/preorders/{id}/cancel":  retainCritical,
	"POST /api/v1/preorders/{id}/restore": retainCritical,
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body"`
	RequestHash string `json:"request_hash"`
	StoredAt    int64  `json:"stored_at"`
}

// Idempotency makes the mutating ledger routes safe to retry. A repeated
// Idempotency-Key replays the first response, a key reused with another body
// is rejected, and a key whose first request is still running gets a conflict
// instead of a second execution. Server errors are never stored.
func Idempotency(store pkgredis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keep, ok := routeTTL(r.Method, routePattern(r), ttl)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			fingerprint := hashBody(body)

			scope := buildScope(r)
			recordKey := store.IdempotencyKey(scope, clientKey)

			previous, err := loadResponse(ctx, store, recordKey)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if previous != nil {
				if previous.RequestHash != fingerprint {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				replay(w, previous)
				return
			}

			lockKey := inflightKey(store, scope, clientKey)
			claimed, err := store.SetNX(ctx, lockKey, fingerprint, inflightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this idempotency key is still in progress"))
				return
			}
			defer func() {
				if err := store.Del(context.WithoutCancel(ctx), lockKey); err != nil {
					logError(ctx, logg, "release idempotency claim", err)
				}
			}()

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				return
			}
			record := storedResponse{
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
				RequestHash: fingerprint,
				StoredAt:    time.Now().UTC().Unix(),
			}
			payload, err := json.Marshal(record)
			if err != nil {
				logError(ctx, logg, "marshal idempotency record", err)
				return
			}
			if _, err := store.SetNX(context.WithoutCancel(ctx), recordKey, string(payload), keep); err != nil {
				logError(ctx, logg, "persist idempotency record", err)
			}
		})
	}
}

func buildScope(r *http.Request) string {
	return strings.Join([]string{
		TenantIDFromContext(r.Context()).String(),
		UserIDFromContext(r.Context()),
		r.Method,
		r.URL.Path,
	}, "|")
}

func inflightKey(store pkgredis.IdempotencyStore, scope, clientKey string) string {
	return store.IdempotencyKey(scope+"|inflight", clientKey)
}

func loadResponse(ctx context.Context, store pkgredis.IdempotencyStore, key string) (*storedResponse, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record storedResponse
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func replay(w http.ResponseWriter, record *storedResponse) {
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// routePattern prefers the chi pattern; a router mounted under "/api/*" only
// sees the wildcard, so the concrete path is used instead.
func routePattern(r *http.Request) string {
	if r == nil {
		return ""
	}
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.HasSuffix(pattern, "*") {
			return pattern
		}
	}
	return r.URL.Path
}

func routeTTL(method, path string, base time.Duration) (time.Duration, bool) {
	if path == "" {
		return 0, false
	}
	for route, class := range idempotentRoutes {
		routeMethod, template, _ := strings.Cut(route, " ")
		if routeMethod != method || !matchTemplate(template, path) {
			continue
		}
		if class == retainCritical && base < criticalIdempotencyTTL {
			return criticalIdempotencyTTL, true
		}
		return base, true
	}
	return 0, false
}

// matchTemplate compares segment by segment; a "{param}" segment matches any
// non-empty segment, including another chi placeholder.
func matchTemplate(template, path string) bool {
	want := strings.Split(strings.Trim(template, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, segment := range want {
		if strings.HasPrefix(segment, "{") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if segment != got[i] {
			return false
		}
	}
	return true
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
