package catalog

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func respond(status int, body string) roundTripFunc {
	return func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     http.Header{},
		}, nil
	}
}

func TestClientLookupRequest(t *testing.T) {
	var capturedURL string
	var capturedHeaders http.Header
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedHeaders = req.Header.Clone()
		return respond(http.StatusOK, `{"title":"Air Max 90","brand":"Nike","images":[{"url":"https://img.test/am90.png"}]}`)(req)
	})

	client, err := NewClient("http://catalog.test/v1/", WithAPIKey("k"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	got, err := client.Lookup(context.Background(), "CW 1234")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if capturedURL != "http://catalog.test/v1/products/CW%201234" {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if capturedHeaders.Get("X-Api-Key") != "k" {
		t.Fatalf("api key header missing")
	}
	if got.Brand != "Nike" || got.Title != "Air Max 90" || got.ImageURL != "https://img.test/am90.png" {
		t.Fatalf("unexpected enrichment %+v", got)
	}
}

func TestClientLookupNotFound(t *testing.T) {
	client, err := NewClient("http://catalog.test", WithHTTPClient(&http.Client{Transport: respond(http.StatusNotFound, "")}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Lookup(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	client, _ = NewClient("http://catalog.test", WithHTTPClient(&http.Client{Transport: respond(http.StatusOK, `{}`)}))
	if _, err := client.Lookup(context.Background(), "empty"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty body should be treated as not found, got %v", err)
	}
}

func TestClientLookupUpstreamFailure(t *testing.T) {
	client, err := NewClient("http://catalog.test", WithHTTPClient(&http.Client{Transport: respond(http.StatusBadGateway, "down")}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Lookup(context.Background(), "sku")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
