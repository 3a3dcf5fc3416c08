package gbif

import (
	"context"
	"net/url"
	"strconv"

	"github.com/karimogit/GBIF3D/internal/errors"
	"github.com/karimogit/GBIF3D/internal/respcache"
)

// GetOccurrence fetches one occurrence record by key. Only positive keys
// exist upstream; negative keys belong to locally imported records.
func (c *Client) GetOccurrence(ctx context.Context, key int64) (*Occurrence, error) {
	if key <= 0 {
		return nil, errors.Newf("invalid occurrence key: %d", key).
			Category(errors.CategoryValidation).
			Context("key", key).
			Component("gbif").
			Build()
	}

	params := url.Values{}
	params.Set("key", strconv.FormatInt(key, 10))
	cacheKey := respcache.CanonicalKey("occurrence-get", params)

	if cached, found := c.cache.Get(cacheKey); found {
		if record, ok := cached.(*Occurrence); ok {
			c.metrics.CacheHit()
			return record, nil
		}
	}
	c.metrics.CacheMiss()

	var record Occurrence
	requestURL := c.config.BaseURL + "/occurrence/" + strconv.FormatInt(key, 10)
	if err := c.getJSON(ctx, requestURL, &record); err != nil {
		return nil, err
	}

	c.cache.Set(cacheKey, &record, c.config.LookupTTL)
	return &record, nil
}
