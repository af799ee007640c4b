package redis

import "strings"

const defaultNamespace = "sl"

// Key families. Every key the services write lives under one of these.
const (
	familyIdempotency = "idempotency"
	familyRateLimit   = "rate_limit"
	familyCatalog     = "catalog"
)

// Keyspace builds namespaced keys. The zero value uses the default namespace.
type Keyspace struct {
	Namespace string
}

func (k Keyspace) key(family string, parts ...string) string {
	ns := strings.TrimSpace(k.Namespace)
	if ns == "" {
		ns = defaultNamespace
	}
	var b strings.Builder
	b.WriteString(ns)
	b.WriteByte(':')
	b.WriteString(family)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// IdempotencyKey addresses a stored response or processed-event marker.
func (k Keyspace) IdempotencyKey(scope, id string) string {
	return k.key(familyIdempotency, scope, id)
}

// RateLimitKey addresses a fixed-window request counter.
func (k Keyspace) RateLimitKey(scope string) string {
	return k.key(familyRateLimit, scope)
}

// CatalogKey addresses a cached catalog lookup. SKUs are case-insensitive.
func (k Keyspace) CatalogKey(sku string) string {
	return k.key(familyCatalog, strings.ToLower(sku))
}
