package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
)

func queryValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// ParseQueryInt reads an optional bounded integer.
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseQueryUUID reads an optional id filter. Absent returns nil.
func ParseQueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+key).WithDetails(map[string]any{"field": key})
	}
	return &id, nil
}

// ParseQueryTime accepts RFC 3339 timestamps or plain dates, interpreted as
// UTC midnight.
func ParseQueryTime(r *http.Request, key string) (*time.Time, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			parsed = parsed.UTC()
			return &parsed, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+key).WithDetails(map[string]any{"field": key, "formats": []string{time.RFC3339, time.DateOnly}})
}
