package gbif

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// API limits documented by the occurrence search endpoint.
const (
	// MaxPageSize is the per-request record cap of the occurrence search API.
	MaxPageSize = 300
	// MaxFetchTotal is the hard ceiling on records gathered by one fetch
	// operation, bounding worst-case cost.
	MaxFetchTotal = 100000
)

// MediaItem is one media entry attached to an occurrence record.
type MediaItem struct {
	Type       string `json:"type,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	References string `json:"references,omitempty"`
}

// Occurrence is one observation of a species at a place and time. Positive
// keys are API-sourced; negative keys are synthetically assigned to locally
// imported records so the two key spaces never collide.
type Occurrence struct {
	Key                 int64       `json:"key"`
	ScientificName      string      `json:"scientificName,omitempty"`
	VernacularName      string      `json:"vernacularName,omitempty"`
	DecimalLatitude     *float64    `json:"decimalLatitude,omitempty"`
	DecimalLongitude    *float64    `json:"decimalLongitude,omitempty"`
	Year                int         `json:"year,omitempty"`
	Month               int         `json:"month,omitempty"`
	EventDate           string      `json:"eventDate,omitempty"`
	Kingdom             string      `json:"kingdom,omitempty"`
	Phylum              string      `json:"phylum,omitempty"`
	Class               string      `json:"class,omitempty"`
	Order               string      `json:"order,omitempty"`
	Family              string      `json:"family,omitempty"`
	Genus               string      `json:"genus,omitempty"`
	Species             string      `json:"species,omitempty"`
	IUCNRedListCategory string      `json:"iucnRedListCategory,omitempty"`
	BasisOfRecord       string      `json:"basisOfRecord,omitempty"`
	CountryCode         string      `json:"countryCode,omitempty"`
	DatasetKey          string      `json:"datasetKey,omitempty"`
	DatasetName         string      `json:"datasetName,omitempty"`
	InstitutionCode     string      `json:"institutionCode,omitempty"`
	RecordedBy          string      `json:"recordedBy,omitempty"`
	Media               []MediaItem `json:"media,omitempty"`
}

// HasCoordinates reports whether the record carries a finite, in-range
// position and can be placed on the map or included in spatial exports.
func (o *Occurrence) HasCoordinates() bool {
	if o.DecimalLatitude == nil || o.DecimalLongitude == nil {
		return false
	}
	lat, lon := *o.DecimalLatitude, *o.DecimalLongitude
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// FilterSet is the query intent sent to the occurrence search endpoint. It is
// created by explicit user filter changes and read-only to the fetch layer.
type FilterSet struct {
	Geometry            string  // WKT polygon constraining results spatially
	TaxonKey            int64   // single taxon constraint
	TaxonKeys           []int64 // multi-taxon OR constraint, takes precedence over TaxonKey
	Year                string  // year or year range, e.g. "2000" or "2000,2020"
	EventDateFrom       string
	EventDateTo         string
	IUCNRedListCategory string
	BasisOfRecord       string
	Continent           string
	Country             string
	DatasetKey          string
	InstitutionCode     string
	Facets              []string
	FacetLimit          int
	Limit               int
	Offset              int
}

// HasTaxonFilter reports whether at least one taxonomic constraint is active.
func (f *FilterSet) HasTaxonFilter() bool {
	return f.TaxonKey > 0 || len(f.TaxonKeys) > 0
}

// Values serializes the filter set into query parameters. A multi-valued
// taxon filter becomes a repeated taxonKey parameter because the upstream
// requires one occurrence per value for OR semantics. Continent and country
// codes are upper-cased as the API requires.
func (f *FilterSet) Values() url.Values {
	params := url.Values{}

	if f.Geometry != "" {
		params.Set("geometry", f.Geometry)
	}
	switch {
	case len(f.TaxonKeys) > 0:
		for _, key := range f.TaxonKeys {
			params.Add("taxonKey", strconv.FormatInt(key, 10))
		}
	case f.TaxonKey > 0:
		params.Set("taxonKey", strconv.FormatInt(f.TaxonKey, 10))
	}
	if f.Year != "" {
		params.Set("year", f.Year)
	}
	if f.EventDateFrom != "" {
		eventDate := f.EventDateFrom
		if f.EventDateTo != "" {
			eventDate += "," + f.EventDateTo
		}
		params.Set("eventDate", eventDate)
	}
	if f.IUCNRedListCategory != "" {
		params.Set("iucnRedListCategory", f.IUCNRedListCategory)
	}
	if f.BasisOfRecord != "" {
		params.Set("basisOfRecord", f.BasisOfRecord)
	}
	if f.Continent != "" {
		params.Set("continent", strings.ToUpper(f.Continent))
	}
	if f.Country != "" {
		params.Set("country", strings.ToUpper(f.Country))
	}
	if f.DatasetKey != "" {
		params.Set("datasetKey", f.DatasetKey)
	}
	if f.InstitutionCode != "" {
		params.Set("institutionCode", f.InstitutionCode)
	}
	if len(f.Facets) > 0 {
		params.Set("facet", strings.Join(f.Facets, ","))
		if f.FacetLimit > 0 {
			params.Set("facetLimit", strconv.Itoa(f.FacetLimit))
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(f.Offset))

	return params
}

// FacetCount is one value bucket of a faceted search response.
type FacetCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Facet is one faceted field of a search response.
type Facet struct {
	Field  string       `json:"field"`
	Counts []FacetCount `json:"counts"`
}

// SearchResult is one page of the occurrence search response.
type SearchResult struct {
	Offset       int          `json:"offset"`
	Limit        int          `json:"limit"`
	EndOfRecords bool         `json:"endOfRecords"`
	Count        int64        `json:"count"`
	Results      []Occurrence `json:"results"`
	Facets       []Facet      `json:"facets,omitempty"`
}

// Aggregate is the ordered result set gathered across the chunk requests of
// one fetch operation. Count reflects the upstream's most recently reported
// total match count, which may exceed the records actually retrieved.
type Aggregate struct {
	Records      []Occurrence `json:"records"`
	Count        int64        `json:"count"`
	EndOfRecords bool         `json:"endOfRecords"`
}

// SpeciesSuggestion is one entry of the species suggest response.
type SpeciesSuggestion struct {
	Key            int64  `json:"key"`
	ScientificName string `json:"scientificName,omitempty"`
	CanonicalName  string `json:"canonicalName,omitempty"`
	VernacularName string `json:"vernacularName,omitempty"`
	Rank           string `json:"rank,omitempty"`
	Kingdom        string `json:"kingdom,omitempty"`
	Status         string `json:"status,omitempty"`
}

// apiError is the upstream error payload shape, parsed best-effort.
type apiError struct {
	Message string `json:"message"`
}

// Config holds the client configuration.
type Config struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration // per-request timeout
	PageTTL    time.Duration // cache TTL for occurrence pages
	LookupTTL  time.Duration // cache TTL for species suggest/search
	ChunkDelay time.Duration // delay between successive page requests
	MaxRetries int           // additional attempts after a 429
}

// DefaultConfig returns the documented client defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:    "https://api.gbif.org/v1",
		UserAgent:  "GBIF3D/1.0 (+https://github.com/karimogit/GBIF3D)",
		Timeout:    30 * time.Second,
		PageTTL:    15 * time.Minute,
		LookupTTL:  2 * time.Minute,
		ChunkDelay: 400 * time.Millisecond,
		MaxRetries: 2,
	}
}
