package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/karimogit/GBIF3D/internal/dataset"
	"github.com/karimogit/GBIF3D/internal/errors"
	"github.com/karimogit/GBIF3D/internal/gbif"
	"github.com/karimogit/GBIF3D/internal/geo"
)

// filterFromQuery builds the upstream filter set from request parameters.
// The bbox parameter is west,south,east,north degrees and becomes the wire
// polygon.
func filterFromQuery(ctx echo.Context) (*gbif.FilterSet, error) {
	filter := &gbif.FilterSet{
		Year:                ctx.QueryParam("year"),
		EventDateFrom:       ctx.QueryParam("eventDateFrom"),
		EventDateTo:         ctx.QueryParam("eventDateTo"),
		IUCNRedListCategory: ctx.QueryParam("iucnRedListCategory"),
		BasisOfRecord:       ctx.QueryParam("basisOfRecord"),
		Continent:           ctx.QueryParam("continent"),
		Country:             ctx.QueryParam("country"),
		DatasetKey:          ctx.QueryParam("datasetKey"),
		InstitutionCode:     ctx.QueryParam("institutionCode"),
	}

	for _, raw := range ctx.QueryParams()["taxonKey"] {
		key, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || key <= 0 {
			return nil, errors.Newf("invalid taxonKey: %q", raw).
				Category(errors.CategoryValidation).
				Component("api").
				Build()
		}
		filter.TaxonKeys = append(filter.TaxonKeys, key)
	}
	if len(filter.TaxonKeys) == 1 {
		filter.TaxonKey = filter.TaxonKeys[0]
		filter.TaxonKeys = nil
	}

	if bbox := ctx.QueryParam("bbox"); bbox != "" {
		parts := strings.Split(bbox, ",")
		if len(parts) != 4 {
			return nil, errors.Newf("invalid bbox: expected west,south,east,north").
				Category(errors.CategoryValidation).
				Component("api").
				Build()
		}
		vals := make([]float64, 4)
		for i, part := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return nil, errors.Newf("invalid bbox component: %q", part).
					Category(errors.CategoryValidation).
					Component("api").
					Build()
			}
			vals[i] = v
		}
		bounds := geo.Bounds{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}
		filter.Geometry = geo.BoundsToPolygon(bounds)
	}

	return filter, nil
}

// fetchTotal resolves the caller's record target, capped by the configured
// fetch ceiling.
func (c *Controller) fetchTotal(ctx echo.Context) int {
	total := defaultFetchTotal
	if raw := ctx.QueryParam("max"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			total = n
		}
	}
	if c.Settings != nil && c.Settings.Fetch.MaxTotal > 0 && total > c.Settings.Fetch.MaxTotal {
		total = c.Settings.Fetch.MaxTotal
	}
	return total
}

// SearchOccurrences runs a chunked fetch for the query's filter set. At
// least one taxon filter is required; an unconstrained fetch over a whole
// view would return an unbounded result set.
func (c *Controller) SearchOccurrences(ctx echo.Context) error {
	filter, err := filterFromQuery(ctx)
	if err != nil {
		return c.handleError(ctx, err)
	}
	if !filter.HasTaxonFilter() {
		return c.handleError(ctx, errors.Newf("at least one taxonKey is required").
			Category(errors.CategoryValidation).
			Component("api").
			Build())
	}

	agg, err := c.GBIF.FetchUpTo(ctx.Request().Context(), filter, c.fetchTotal(ctx))
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, agg)
}

// composedRecords fetches the filtered API records and merges imported and
// saved records plus the optional time filter, producing the collection all
// derived views share.
func (c *Controller) composedRecords(ctx echo.Context) ([]gbif.Occurrence, error) {
	filter, err := filterFromQuery(ctx)
	if err != nil {
		return nil, err
	}

	var apiRecords []gbif.Occurrence
	if filter.HasTaxonFilter() {
		agg, err := c.GBIF.FetchUpTo(ctx.Request().Context(), filter, c.fetchTotal(ctx))
		if err != nil {
			return nil, err
		}
		apiRecords = agg.Records
	}

	local := c.importedRecords()
	if c.Store != nil {
		saved, err := c.Store.ListSavedOccurrences()
		if err != nil {
			return nil, err
		}
		local = append(local, saved...)
	}

	year, _ := strconv.Atoi(ctx.QueryParam("filterYear"))
	month, _ := strconv.Atoi(ctx.QueryParam("filterMonth"))
	return dataset.MergedView(apiRecords, local, year, month), nil
}

// ExportGeoJSON streams the composed dataset as a GeoJSON file.
func (c *Controller) ExportGeoJSON(ctx echo.Context) error {
	records, err := c.composedRecords(ctx)
	if err != nil {
		return c.handleError(ctx, err)
	}

	data, err := dataset.ToGeoJSON(records)
	if err != nil {
		return c.handleError(ctx, err)
	}

	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="occurrences.geojson"`)
	return ctx.Blob(http.StatusOK, "application/geo+json", data)
}

// ExportCSV streams the composed dataset as a CSV file.
func (c *Controller) ExportCSV(ctx echo.Context) error {
	records, err := c.composedRecords(ctx)
	if err != nil {
		return c.handleError(ctx, err)
	}

	data, err := dataset.ToCSV(records)
	if err != nil {
		return c.handleError(ctx, err)
	}

	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="occurrences.csv"`)
	return ctx.Blob(http.StatusOK, "text/csv;charset=utf-8", []byte(data))
}

// SpeciesReport returns the per-species summary of the composed dataset,
// the data behind the PDF report rendered client-side.
func (c *Controller) SpeciesReport(ctx echo.Context) error {
	records, err := c.composedRecords(ctx)
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, dataset.SummarizeSpecies(records))
}
