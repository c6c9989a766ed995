// Package catalog fetches importable todo records from the external catalog
// service (a jsonplaceholder-style API). The catalog is unreliable by
// contract: every failure mode surfaces as *UpstreamError.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"

	"taskpulse/pkg/config"
)

// UpstreamError reports a failed catalog fetch: network error, timeout,
// non-success status, or malformed payload.
type UpstreamError struct {
	URL    string
	Status int // 0 when the request never completed
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("catalog fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("catalog fetch %s: %v", e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsUpstream reports whether err is (or wraps) an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// Record is one normalized importable entry from the catalog.
type Record struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Client fetches records from the catalog over HTTP. The request timeout is
// fixed at construction; exceeding it is an UpstreamError like any other
// transport failure.
type Client struct {
	baseURL string
	maxID   int
	http    *http.Client
}

// New creates a catalog client from configuration.
func New(cfg config.CatalogConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		maxID:   cfg.MaxID,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Source names the catalog for provenance records, e.g. in synthesized task
// descriptions.
func (c *Client) Source() string {
	if u, err := url.Parse(c.baseURL); err == nil && u.Host != "" {
		return u.Host
	}
	return c.baseURL
}

// FetchOne selects one record uniformly at random from the catalog's known
// id range and returns it normalized.
func (c *Client) FetchOne(ctx context.Context) (*Record, error) {
	id := rand.IntN(c.maxID) + 1
	return c.fetch(ctx, id)
}

func (c *Client) fetch(ctx context.Context, id int) (*Record, error) {
	reqURL := fmt.Sprintf("%s/todos/%d", c.baseURL, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &UpstreamError{URL: reqURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UpstreamError{URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{URL: reqURL, Status: resp.StatusCode}
	}

	var rec Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, &UpstreamError{URL: reqURL, Err: fmt.Errorf("decode payload: %w", err)}
	}
	if rec.Title == "" {
		return nil, &UpstreamError{URL: reqURL, Err: fmt.Errorf("payload missing title")}
	}
	if rec.ID == 0 {
		rec.ID = id
	}
	return &rec, nil
}
