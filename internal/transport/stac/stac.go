// Package stac fetches the static catalog documents that describe the NOAA
// coastal LiDAR collection. Only the fields needed to build the index are decoded.
package stac

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/version"
)

// Link relations followed when walking the root catalog.
const (
	RelItem  = "item"
	RelChild = "child"
)

// maxDocumentBytes bounds a single catalog or item document.
const maxDocumentBytes = 16 << 20

// Link is a catalog link.
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// Catalog is the root catalog document.
type Catalog struct {
	ID    string `json:"id"`
	Links []Link `json:"links"`
}

// ItemLinks returns links with relation "item" or "child", in document order.
func (c *Catalog) ItemLinks() []Link {
	var out []Link
	for _, l := range c.Links {
		if (l.Rel == RelItem || l.Rel == RelChild) && l.Href != "" {
			out = append(out, l)
		}
	}
	return out
}

// Properties holds the item properties used by the index.
type Properties struct {
	Title           string   `json:"title"`
	PCCount         *float64 `json:"pc:count"`
	PointcloudCount *float64 `json:"pointcloud:count"`
}

// PointCount returns pc:count, else pointcloud:count; nil if neither is usable.
// Negative, NaN and values beyond int64 are unusable.
func (p Properties) PointCount() *int64 {
	for _, v := range []*float64{p.PCCount, p.PointcloudCount} {
		if v == nil || math.IsNaN(*v) || *v < 0 || *v >= math.MaxInt64 {
			continue
		}
		n := int64(*v)
		return &n
	}
	return nil
}

// Item is an item document.
type Item struct {
	ID         string     `json:"id"`
	BBox       []float64  `json:"bbox"`
	Properties Properties `json:"properties"`
}

// Client fetches catalog documents over HTTP.
type Client struct {
	http *http.Client
}

// NewClient creates a client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// NewClientWithHTTP wraps an existing http.Client (tests, custom transports).
func NewClientWithHTTP(c *http.Client) *Client {
	return &Client{http: c}
}

// FetchCatalog fetches the root catalog.
// Failures are *domain.CatalogFetchError; StatusCode is 0 for network errors.
func (c *Client) FetchCatalog(ctx context.Context, catalogURL string) (Catalog, error) {
	var cat Catalog
	status, err := c.getJSON(ctx, catalogURL, &cat)
	if err != nil {
		return Catalog{}, &domain.CatalogFetchError{URL: catalogURL, StatusCode: status, Err: err}
	}
	return cat, nil
}

// FetchItem fetches one item document. Failures are *domain.ItemFetchError.
func (c *Client) FetchItem(ctx context.Context, href string) (Item, error) {
	var item Item
	if _, err := c.getJSON(ctx, href, &item); err != nil {
		return Item{}, &domain.ItemFetchError{Href: href, Err: err}
	}
	if item.ID == "" {
		return Item{}, &domain.ItemFetchError{Href: href, Err: fmt.Errorf("item has no id")}
	}
	return item, nil
}

// ResolveHref resolves href against base, supporting relative links.
func ResolveHref(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	return b.ResolveReference(ref).String(), nil
}

// getJSON returns the HTTP status when a response was received (0 otherwise).
func (c *Client) getJSON(ctx context.Context, rawURL string, dst any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "noaa-lidar-index/"+version.Version)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentBytes)).Decode(dst); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return resp.StatusCode, nil
}
