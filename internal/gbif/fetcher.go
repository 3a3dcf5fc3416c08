package gbif

import (
	"context"
)

// FetchUpTo gathers up to maxTotal records for the filter set by issuing
// sequential paged search requests. maxTotal is clamped to
// [1, MaxFetchTotal]. The loop stops when the accumulated record count
// reaches the target, the upstream reports end of records, or a page comes
// back short of the requested size — a short page implies exhaustion even
// when the end-of-records flag is unset, avoiding one wasted trailing call.
//
// A fixed inter-chunk delay is inserted before every request after the
// first to reduce rate-limit pressure. Any chunk failure aborts the whole
// operation; there is no partial-success contract.
func (c *Client) FetchUpTo(ctx context.Context, filter *FilterSet, maxTotal int) (*Aggregate, error) {
	if maxTotal < 1 {
		maxTotal = 1
	}
	if maxTotal > MaxFetchTotal {
		maxTotal = MaxFetchTotal
	}

	agg := &Aggregate{}
	offset := filter.Offset
	chunks := 0

	for len(agg.Records) < maxTotal {
		if chunks > 0 {
			if err := c.sleep(ctx, c.config.ChunkDelay); err != nil {
				return nil, err
			}
		}

		pageSize := maxTotal - len(agg.Records)
		if pageSize > MaxPageSize {
			pageSize = MaxPageSize
		}

		page := *filter
		page.Limit = pageSize
		page.Offset = offset

		result, err := c.Search(ctx, &page)
		if err != nil {
			logger.Error("chunked fetch aborted",
				"chunk", chunks+1,
				"offset", offset,
				"error", err)
			return nil, err
		}
		chunks++

		agg.Records = append(agg.Records, result.Results...)
		agg.Count = result.Count
		agg.EndOfRecords = result.EndOfRecords

		if result.EndOfRecords {
			break
		}
		if len(result.Results) < pageSize {
			// Upstream returned fewer records than requested without
			// flagging end of records; treat as exhaustion.
			agg.EndOfRecords = true
			break
		}

		// Offset advances by the page size actually requested.
		offset += pageSize
	}

	c.metrics.FetchCompleted(len(agg.Records), chunks)
	logger.Info("chunked fetch complete",
		"records", len(agg.Records),
		"chunks", chunks,
		"total_count", agg.Count,
		"end_of_records", agg.EndOfRecords)

	return agg, nil
}
