// Package ept implements the point-cloud loader over Entwine Point Tile
// datasets. Loading validates the dataset's ept.json and tracks a handle;
// octree tiles are left to the renderer.
package ept

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/version"
)

const maxMetadataBytes = 4 << 20

// Dimension is one entry of the point schema.
type Dimension struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Size   int      `json:"size"`
	Scale  *float64 `json:"scale,omitempty"`
	Offset *float64 `json:"offset,omitempty"`
}

// SRS is the spatial reference of the dataset.
type SRS struct {
	Authority  string `json:"authority,omitempty"`
	Horizontal string `json:"horizontal,omitempty"`
	Vertical   string `json:"vertical,omitempty"`
	WKT        string `json:"wkt,omitempty"`
}

// Metadata is the decoded ept.json document.
type Metadata struct {
	Bounds           []float64   `json:"bounds"`
	BoundsConforming []float64   `json:"boundsConforming"`
	DataType         string      `json:"dataType"`
	HierarchyType    string      `json:"hierarchyType"`
	Points           int64       `json:"points"`
	Schema           []Dimension `json:"schema"`
	Span             int         `json:"span"`
	SRS              SRS         `json:"srs"`
	Version          string      `json:"version"`
}

// Validate checks the fields the renderer depends on.
func (m *Metadata) Validate() error {
	if len(m.Bounds) != 6 {
		return fmt.Errorf("bounds: expected 6 values, got %d", len(m.Bounds))
	}
	if m.Points < 0 {
		return fmt.Errorf("points: negative count %d", m.Points)
	}
	if len(m.Schema) == 0 {
		return fmt.Errorf("schema is empty")
	}
	switch m.DataType {
	case "laszip", "binary", "zstandard":
	default:
		return fmt.Errorf("unsupported dataType %q", m.DataType)
	}
	return nil
}

// Client fetches EPT metadata.
type Client struct {
	http *http.Client
}

// NewClient creates a client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// NewClientWithHTTP wraps an existing http.Client.
func NewClientWithHTTP(c *http.Client) *Client {
	return &Client{http: c}
}

// FetchMetadata fetches and validates the ept.json at url.
func (c *Client) FetchMetadata(ctx context.Context, url string) (Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "noaa-lidar-index/"+version.Version)

	resp, err := c.http.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}

	var md Metadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataBytes)).Decode(&md); err != nil {
		return Metadata{}, fmt.Errorf("decode %s: %w", url, err)
	}
	if err := md.Validate(); err != nil {
		return Metadata{}, fmt.Errorf("invalid ept metadata %s: %w", url, err)
	}
	return md, nil
}
