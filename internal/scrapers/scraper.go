// Package scrapers contains the marketplace review connectors.
//
// Each adapter speaks to one marketplace and normalizes its reviews into
// RawReview records. Adapters are resolved through a platform-keyed factory;
// an unknown platform name is a configuration error, never retried.
package scrapers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnknownPlatform is returned by the factory for unsupported platform names
var ErrUnknownPlatform = errors.New("unknown scraper platform")

// RawReview is a single review as fetched from a marketplace
type RawReview struct {
	Reviewer string    `json:"reviewer"`
	Content  string    `json:"content"`
	Rating   float64   `json:"rating"`
	ReviewAt time.Time `json:"review_at"`
}

// Scraper fetches the full review set for one product
type Scraper interface {
	// FetchReviews returns all reviews for the product. The adapter pages
	// through the marketplace listing itself; no limit is applied here.
	FetchReviews(ctx context.Context, productID string) ([]RawReview, error)
}

// Platform name constants accepted by the factory
const (
	PlatformElevenst = "elevenst"
	PlatformGmarket  = "gmarket"
)

// Factory resolves scrapers by platform name
type Factory struct {
	httpClient *http.Client
}

// NewFactory creates a scraper factory sharing one HTTP client across adapters
func NewFactory(timeout time.Duration) *Factory {
	return &Factory{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ForPlatform returns the scraper for the given platform name.
// Unknown names return ErrUnknownPlatform.
func (f *Factory) ForPlatform(platform string) (Scraper, error) {
	switch platform {
	case PlatformElevenst:
		return newElevenstScraper(f.httpClient), nil
	case PlatformGmarket:
		return newGmarketScraper(f.httpClient), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
	}
}
