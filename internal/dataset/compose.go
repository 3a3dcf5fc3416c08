// Package dataset composes the single consistent record collection handed
// to rendering and export consumers: it merges API results with imported
// records, applies the time filter, and derives export payloads and report
// data.
package dataset

import (
	"strconv"

	"github.com/karimogit/GBIF3D/internal/gbif"
)

// DerivedYear returns the record's observation year, preferring the
// structured field and falling back to the leading YYYY segment of the
// free-text event date. Returns 0 when no year can be derived.
func DerivedYear(o *gbif.Occurrence) int {
	if o.Year > 0 {
		return o.Year
	}
	if len(o.EventDate) >= 4 {
		if year, err := strconv.Atoi(o.EventDate[:4]); err == nil && year > 0 {
			return year
		}
	}
	return 0
}

// DerivedMonth returns the record's observation month, preferring the
// structured field and falling back to the YYYY-MM segment of the event
// date. A date string that only specifies a year yields 0, never January:
// treating it as month 1 would artificially inflate the January bucket.
func DerivedMonth(o *gbif.Occurrence) int {
	if o.Month >= 1 && o.Month <= 12 {
		return o.Month
	}
	if len(o.EventDate) >= 7 && o.EventDate[4] == '-' {
		if month, err := strconv.Atoi(o.EventDate[5:7]); err == nil && month >= 1 && month <= 12 {
			return month
		}
	}
	return 0
}

// MergedView concatenates API and imported records and applies the time
// filter. Imported records are always included regardless of the result
// count cap. A year of 0 disables time filtering; with a year selected,
// only records whose derived year matches are retained; with additionally a
// month (1-12) selected, records lacking month data are excluded — but they
// stay included under a year-only filter, so the yearly view does not
// shrink when the user merely inspects months.
func MergedView(api, imported []gbif.Occurrence, year, month int) []gbif.Occurrence {
	merged := make([]gbif.Occurrence, 0, len(api)+len(imported))
	merged = append(merged, api...)
	merged = append(merged, imported...)

	if year == 0 {
		return merged
	}

	filtered := merged[:0:0]
	for i := range merged {
		if DerivedYear(&merged[i]) != year {
			continue
		}
		if month >= 1 && month <= 12 && DerivedMonth(&merged[i]) != month {
			continue
		}
		filtered = append(filtered, merged[i])
	}
	return filtered
}
