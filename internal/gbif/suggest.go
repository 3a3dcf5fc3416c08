package gbif

import (
	"context"
	"net/url"
	"strconv"
	"unicode/utf8"

	"github.com/karimogit/GBIF3D/internal/respcache"
)

// MinQueryLength is the minimum query length for species lookups; shorter
// queries short-circuit to an empty result without a network call.
const MinQueryLength = 2

// SuggestSpecies queries the species suggest endpoint for typeahead
// completion. Responses are cached with the short lookup TTL to absorb
// duplicate keystrokes.
func (c *Client) SuggestSpecies(ctx context.Context, query string, limit int) ([]SpeciesSuggestion, error) {
	if utf8.RuneCountInString(query) < MinQueryLength {
		return []SpeciesSuggestion{}, nil
	}

	params := url.Values{}
	params.Set("q", query)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	cacheKey := respcache.CanonicalKey("species-suggest", params)
	if cached, found := c.cache.Get(cacheKey); found {
		if suggestions, ok := cached.([]SpeciesSuggestion); ok {
			c.metrics.CacheHit()
			return suggestions, nil
		}
	}
	c.metrics.CacheMiss()

	var suggestions []SpeciesSuggestion
	requestURL := c.config.BaseURL + "/species/suggest?" + params.Encode()
	if err := c.getJSON(ctx, requestURL, &suggestions); err != nil {
		return nil, err
	}
	if suggestions == nil {
		suggestions = []SpeciesSuggestion{}
	}

	c.cache.Set(cacheKey, suggestions, c.config.LookupTTL)
	return suggestions, nil
}

// speciesSearchResult is the paged species search response envelope.
type speciesSearchResult struct {
	Results []SpeciesSuggestion `json:"results"`
}

// SearchSpecies queries the full-text species search endpoint. With
// vernacular set the query matches vernacular names of accepted taxa
// instead of scientific names.
func (c *Client) SearchSpecies(ctx context.Context, query string, vernacular bool, limit int) ([]SpeciesSuggestion, error) {
	if utf8.RuneCountInString(query) < MinQueryLength {
		return []SpeciesSuggestion{}, nil
	}

	params := url.Values{}
	params.Set("q", query)
	if vernacular {
		params.Set("qField", "VERNACULAR")
		params.Set("status", "ACCEPTED")
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	cacheKey := respcache.CanonicalKey("species-search", params)
	if cached, found := c.cache.Get(cacheKey); found {
		if matches, ok := cached.([]SpeciesSuggestion); ok {
			c.metrics.CacheHit()
			return matches, nil
		}
	}
	c.metrics.CacheMiss()

	var result speciesSearchResult
	requestURL := c.config.BaseURL + "/species/search?" + params.Encode()
	if err := c.getJSON(ctx, requestURL, &result); err != nil {
		return nil, err
	}
	matches := result.Results
	if matches == nil {
		matches = []SpeciesSuggestion{}
	}

	c.cache.Set(cacheKey, matches, c.config.LookupTTL)
	return matches, nil
}
