// Package places resolves free-text place names to geographic bounds via a
// Nominatim-style geocoding service.
package places

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strconv"

	"github.com/karimogit/GBIF3D/internal/errors"
	"github.com/karimogit/GBIF3D/internal/geo"
	"github.com/karimogit/GBIF3D/internal/httpclient"
	"github.com/karimogit/GBIF3D/internal/respcache"
)

// Place is one geocoder match with its bounding box reordered to
// west/south/east/north.
type Place struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Bounds geo.Bounds `json:"bounds"`
}

// nominatimResult is the upstream response row. The bounding box arrives in
// south/north/west/east order.
type nominatimResult struct {
	PlaceID     json.Number `json:"place_id"`
	DisplayName string      `json:"display_name"`
	BoundingBox []string    `json:"boundingbox"`
}

// Config holds the geocoder client configuration.
type Config struct {
	BaseURL   string
	UserAgent string // the service requires a descriptive client identifier
}

// Client queries the geocoding service with short-TTL response caching.
type Client struct {
	config Config
	http   *httpclient.Client
	cache  *respcache.Cache
}

// NewClient creates a place search client sharing the given response cache.
func NewClient(config Config, cache *respcache.Cache) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if config.UserAgent == "" {
		config.UserAgent = "GBIF3D/1.0 (+https://github.com/karimogit/GBIF3D)"
	}
	if cache == nil {
		cache = respcache.New()
	}
	return &Client{
		config: config,
		http: httpclient.New(&httpclient.Config{
			UserAgent: config.UserAgent,
		}),
		cache: cache,
	}
}

// Search resolves a place name to candidate places. Matches whose bounding
// box cannot be parsed are skipped rather than failing the whole lookup.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Place, error) {
	if query == "" {
		return []Place{}, nil
	}
	if limit <= 0 {
		limit = 5
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", strconv.Itoa(limit))

	cacheKey := respcache.CanonicalKey("place-search", params)
	if cached, found := c.cache.Get(cacheKey); found {
		if places, ok := cached.([]Place); ok {
			return places, nil
		}
	}

	requestURL := c.config.BaseURL + "/search?" + params.Encode()
	resp, err := c.http.Get(ctx, requestURL)
	if err != nil {
		return nil, errors.Newf("place search request failed: %w", err).
			Category(errors.CategoryNetwork).
			Component("places").
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Newf("failed to read place search response: %w", err).
			Category(errors.CategoryNetwork).
			Component("places").
			Build()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Newf("place search error (status %d)", resp.StatusCode).
			Category(errors.CategoryNetwork).
			Context("status_code", resp.StatusCode).
			Component("places").
			Build()
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, errors.Newf("failed to parse place search response: %w", err).
			Category(errors.CategoryFileParsing).
			Component("places").
			Build()
	}

	places := make([]Place, 0, len(results))
	for _, result := range results {
		bounds, err := geo.ParseBBox(result.BoundingBox)
		if err != nil {
			continue
		}
		places = append(places, Place{
			ID:     result.PlaceID.String(),
			Name:   result.DisplayName,
			Bounds: bounds,
		})
	}

	c.cache.Set(cacheKey, places, respcache.LookupTTL)
	return places, nil
}
