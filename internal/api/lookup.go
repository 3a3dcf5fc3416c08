package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/karimogit/GBIF3D/internal/errors"
)

// SuggestSpecies proxies the species suggest endpoint for typeahead. Short
// queries return an empty list without touching the upstream.
func (c *Controller) SuggestSpecies(ctx echo.Context) error {
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))
	suggestions, err := c.GBIF.SuggestSpecies(ctx.Request().Context(), ctx.QueryParam("q"), limit)
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, suggestions)
}

// SearchSpecies proxies the full-text species search endpoint. With
// qField=VERNACULAR the query matches vernacular names.
func (c *Controller) SearchSpecies(ctx echo.Context) error {
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))
	vernacular := ctx.QueryParam("qField") == "VERNACULAR"
	matches, err := c.GBIF.SearchSpecies(ctx.Request().Context(), ctx.QueryParam("q"), vernacular, limit)
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, matches)
}

// SearchPlaces proxies the geocoding service.
func (c *Controller) SearchPlaces(ctx echo.Context) error {
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))
	results, err := c.Places.Search(ctx.Request().Context(), ctx.QueryParam("q"), limit)
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, results)
}

// RecordImages returns up to two image URLs for an occurrence record. The
// key must be a positive integer.
func (c *Controller) RecordImages(ctx echo.Context) error {
	key, err := strconv.ParseInt(ctx.Param("key"), 10, 64)
	if err != nil || key <= 0 {
		return c.handleError(ctx, errors.Newf("invalid occurrence key: %q", ctx.Param("key")).
			Category(errors.CategoryValidation).
			Component("api").
			Build())
	}

	urls, err := c.Images.RecordImages(ctx.Request().Context(), key)
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"key": key, "images": urls})
}
