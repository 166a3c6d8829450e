package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidBBox signals a bounding box that cannot be parsed or normalized.
	ErrInvalidBBox = errors.New("invalid bounding box")
	// ErrSessionNotFound signals an unknown or evicted interaction session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrCatalogFetch signals a failed root catalog request.
	ErrCatalogFetch = errors.New("catalog fetch failed")
	// ErrItemFetch signals a failed item document request.
	ErrItemFetch = errors.New("item fetch failed")
	// ErrMissingAsset signals a record without a retrievable data URL.
	ErrMissingAsset = errors.New("missing asset")
	// ErrPointCloudLoad signals a point-cloud source that could not be opened.
	ErrPointCloudLoad = errors.New("point cloud load failed")
)

// KeyPrefix is the default storage key prefix.
const KeyPrefix = "noaalidar:"

// CatalogFetchError is returned when the root catalog document cannot be fetched.
// StatusCode is 0 when the request never produced an HTTP response.
type CatalogFetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *CatalogFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: status %d", ErrCatalogFetch.Error(), e.URL, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrCatalogFetch.Error(), e.URL, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrCatalogFetch.Error(), e.URL)
}

func (e *CatalogFetchError) Unwrap() error { return e.Err }

// Is reports ErrCatalogFetch as a match.
func (e *CatalogFetchError) Is(target error) bool { return target == ErrCatalogFetch }

// ItemFetchError wraps a single item document failure. It never aborts a rebuild.
type ItemFetchError struct {
	Href string
	Err  error
}

func (e *ItemFetchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrItemFetch.Error(), e.Href, e.Err)
}

func (e *ItemFetchError) Unwrap() error { return e.Err }

// Is reports ErrItemFetch as a match.
func (e *ItemFetchError) Is(target error) bool { return target == ErrItemFetch }

// MissingAssetError is returned when a record has no data URL. Not retryable.
type MissingAssetError struct {
	ID string
}

func (e *MissingAssetError) Error() string {
	return fmt.Sprintf("%s: record %q has no data url", ErrMissingAsset.Error(), e.ID)
}

// Is reports ErrMissingAsset as a match.
func (e *MissingAssetError) Is(target error) bool { return target == ErrMissingAsset }
