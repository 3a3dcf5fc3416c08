package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/karimogit/GBIF3D/internal/datastore"
	"github.com/karimogit/GBIF3D/internal/errors"
	"github.com/karimogit/GBIF3D/internal/gbif"
)

// ListFavorites returns all favorite regions.
func (c *Controller) ListFavorites(ctx echo.Context) error {
	favorites, err := c.Store.ListFavorites()
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, favorites)
}

// SaveFavorite stores a favorite region, assigning an id when absent.
func (c *Controller) SaveFavorite(ctx echo.Context) error {
	var favorite datastore.FavoriteRegion
	if err := ctx.Bind(&favorite); err != nil {
		return c.handleError(ctx, errors.Newf("invalid favorite region payload: %w", err).
			Category(errors.CategoryValidation).
			Component("api").
			Build())
	}
	if favorite.ID == "" {
		favorite.ID = uuid.New().String()
	}
	if err := c.Store.SaveFavorite(&favorite); err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusCreated, favorite)
}

// DeleteFavorite removes a favorite region by id.
func (c *Controller) DeleteFavorite(ctx echo.Context) error {
	if err := c.Store.DeleteFavorite(ctx.Param("id")); err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ListSaved returns all saved occurrence records.
func (c *Controller) ListSaved(ctx echo.Context) error {
	records, err := c.Store.ListSavedOccurrences()
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, records)
}

// SaveRecord persists one occurrence record by key.
func (c *Controller) SaveRecord(ctx echo.Context) error {
	var record gbif.Occurrence
	if err := ctx.Bind(&record); err != nil {
		return c.handleError(ctx, errors.Newf("invalid occurrence payload: %w", err).
			Category(errors.CategoryValidation).
			Component("api").
			Build())
	}
	if err := c.Store.SaveOccurrence(&record); err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusCreated, record)
}

// DeleteSaved removes one saved record by key.
func (c *Controller) DeleteSaved(ctx echo.Context) error {
	key, err := strconv.ParseInt(ctx.Param("key"), 10, 64)
	if err != nil {
		return c.handleError(ctx, errors.Newf("invalid occurrence key: %q", ctx.Param("key")).
			Category(errors.CategoryValidation).
			Component("api").
			Build())
	}
	if err := c.Store.DeleteSavedOccurrence(key); err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ClearSaved removes all saved records.
func (c *Controller) ClearSaved(ctx echo.Context) error {
	if err := c.Store.ClearSavedOccurrences(); err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// GetViewPreferences returns the last-used view configuration.
func (c *Controller) GetViewPreferences(ctx echo.Context) error {
	prefs, err := c.Store.GetViewPreferences()
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, prefs)
}

// SaveViewPreferences stores the last-used view configuration.
func (c *Controller) SaveViewPreferences(ctx echo.Context) error {
	var prefs datastore.ViewPreferences
	if err := ctx.Bind(&prefs); err != nil {
		return c.handleError(ctx, errors.Newf("invalid view preferences payload: %w", err).
			Category(errors.CategoryValidation).
			Component("api").
			Build())
	}
	if err := c.Store.SaveViewPreferences(&prefs); err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, prefs)
}
