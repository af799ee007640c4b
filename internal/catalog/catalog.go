// Package catalog looks up brand and image details for a SKU in an external
// product catalog.
package catalog

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the catalog has no entry for a SKU.
var ErrNotFound = errors.New("catalog entry not found")

// Enrichment is what the catalog knows about a SKU.
type Enrichment struct {
	Title    string `json:"title"`
	Brand    string `json:"brand"`
	ImageURL string `json:"image_url"`
}

// Enricher resolves a SKU to catalog details.
type Enricher interface {
	Lookup(ctx context.Context, sku string) (*Enrichment, error)
}

// Noop never finds anything. It is used when no catalog is configured.
type Noop struct{}

func (Noop) Lookup(context.Context, string) (*Enrichment, error) {
	return nil, ErrNotFound
}
