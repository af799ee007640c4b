package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
)

const responseBodyReadLimit int64 = 1024

var errBaseURLRequired = errors.New("catalog base url is required")

// Client queries the catalog HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIKey sets the key sent in the X-Api-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithTimeout replaces the default request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewClient builds a catalog client for baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Lookup fetches the catalog entry for sku.
func (c *Client) Lookup(ctx context.Context, sku string) (*Enrichment, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "catalog client not configured")
	}
	trimmed := strings.TrimSpace(sku)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	}

	endpoint := fmt.Sprintf("%s/products/%s", c.baseURL, url.PathEscape(trimmed))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build catalog request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute catalog request")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "catalog request failed")
	}

	var body struct {
		Title  string `json:"title"`
		Brand  string `json:"brand"`
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
		ImageURL string `json:"imageUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode catalog response")
	}

	out := &Enrichment{
		Title:    strings.TrimSpace(body.Title),
		Brand:    strings.TrimSpace(body.Brand),
		ImageURL: strings.TrimSpace(body.ImageURL),
	}
	if out.ImageURL == "" && len(body.Images) > 0 {
		out.ImageURL = strings.TrimSpace(body.Images[0].URL)
	}
	if *out == (Enrichment{}) {
		return nil, ErrNotFound
	}
	return out, nil
}
