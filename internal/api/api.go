// Package api exposes the GBIF3D HTTP surface consumed by the browser
// frontend: orchestrated occurrence search, species and place lookups,
// record images, file import, exports and persisted user state.
package api

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/karimogit/GBIF3D/internal/conf"
	"github.com/karimogit/GBIF3D/internal/datastore"
	"github.com/karimogit/GBIF3D/internal/errors"
	"github.com/karimogit/GBIF3D/internal/gbif"
	"github.com/karimogit/GBIF3D/internal/logging"
	"github.com/karimogit/GBIF3D/internal/media"
	"github.com/karimogit/GBIF3D/internal/places"
)

// OccurrenceService is the GBIF client surface the controller depends on.
type OccurrenceService interface {
	Search(ctx context.Context, filter *gbif.FilterSet) (*gbif.SearchResult, error)
	FetchUpTo(ctx context.Context, filter *gbif.FilterSet, maxTotal int) (*gbif.Aggregate, error)
	SuggestSpecies(ctx context.Context, query string, limit int) ([]gbif.SpeciesSuggestion, error)
	SearchSpecies(ctx context.Context, query string, vernacular bool, limit int) ([]gbif.SpeciesSuggestion, error)
	GetOccurrence(ctx context.Context, key int64) (*gbif.Occurrence, error)
}

// PlaceService resolves place names to bounds.
type PlaceService interface {
	Search(ctx context.Context, query string, limit int) ([]places.Place, error)
}

// Controller manages the API routes and handlers.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Settings *conf.Settings
	GBIF     OccurrenceService
	Places   PlaceService
	Images   *media.Lookup
	Store    *datastore.Store

	// Imported records live in memory until explicitly cleared; they are
	// merged into every derived view and export.
	importedMutex sync.RWMutex
	imported      []gbif.Occurrence
	importNextKey int64

	apiLogger      *slog.Logger
	apiLevelVar    *slog.LevelVar
	apiLoggerClose func() error
}

// New creates the API controller and registers all routes.
func New(settings *conf.Settings, gbifClient OccurrenceService, placeClient PlaceService, images *media.Lookup, store *datastore.Store) *Controller {
	c := &Controller{
		Echo:        echo.New(),
		Settings:    settings,
		GBIF:        gbifClient,
		Places:      placeClient,
		Images:      images,
		Store:       store,
		apiLevelVar: new(slog.LevelVar),
	}

	c.Echo.HideBanner = true

	if settings.Debug {
		c.apiLevelVar.Set(slog.LevelDebug)
	} else {
		c.apiLevelVar.Set(slog.LevelInfo)
	}

	var err error
	logFilePath := filepath.Join("logs", "api.log")
	c.apiLogger, c.apiLoggerClose, err = logging.NewFileLogger(logFilePath, "api", c.apiLevelVar)
	if err != nil {
		log.Printf("Failed to initialize API file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: c.apiLevelVar})
		c.apiLogger = slog.New(fbHandler).With("service", "api")
		c.apiLoggerClose = func() error { return nil }
	}

	c.Echo.Use(middleware.Recover())
	c.Echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{settings.Server.CORSOrigin},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))

	c.initRoutes()
	return c
}

// initRoutes registers the API endpoints.
func (c *Controller) initRoutes() {
	c.Group = c.Echo.Group("/api/v1")

	// Occurrence data
	c.Group.GET("/occurrences", c.SearchOccurrences)
	c.Group.GET("/occurrences/:key/images", c.RecordImages)

	// Species and place lookups (proxied for CORS and caching)
	c.Group.GET("/species/suggest", c.SuggestSpecies)
	c.Group.GET("/species/search", c.SearchSpecies)
	c.Group.GET("/places/search", c.SearchPlaces)

	// Import and exports
	c.Group.POST("/import", c.ImportFile)
	c.Group.DELETE("/import", c.ClearImported)
	c.Group.GET("/export/geojson", c.ExportGeoJSON)
	c.Group.GET("/export/csv", c.ExportCSV)
	c.Group.GET("/report/species", c.SpeciesReport)

	// Persisted user state
	c.Group.GET("/regions/favorites", c.ListFavorites)
	c.Group.POST("/regions/favorites", c.SaveFavorite)
	c.Group.DELETE("/regions/favorites/:id", c.DeleteFavorite)
	c.Group.GET("/occurrences/saved", c.ListSaved)
	c.Group.POST("/occurrences/saved", c.SaveRecord)
	c.Group.DELETE("/occurrences/saved/:key", c.DeleteSaved)
	c.Group.DELETE("/occurrences/saved", c.ClearSaved)
	c.Group.GET("/preferences/view", c.GetViewPreferences)
	c.Group.PUT("/preferences/view", c.SaveViewPreferences)

	c.Group.GET("/health", c.Health)
	c.Echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Start runs the HTTP server until the context is cancelled.
func (c *Controller) Start(ctx context.Context, address string) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- c.Echo.Start(address)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return c.Echo.Shutdown(shutdownCtx)
	}
}

// Close releases controller resources.
func (c *Controller) Close() {
	if c.apiLoggerClose != nil {
		_ = c.apiLoggerClose()
	}
}

// Health reports service liveness.
func (c *Controller) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// errorResponse is the JSON failure payload for all endpoints.
type errorResponse struct {
	Error string `json:"error"`
}

// handleError maps a typed error onto the HTTP response: rate-limit errors
// are transient 429s, validation errors are the caller's fault, parse
// errors blocking user notifications, everything else an upstream failure.
func (c *Controller) handleError(ctx echo.Context, err error) error {
	status := http.StatusBadGateway
	switch {
	case errors.IsRateLimit(err):
		status = http.StatusTooManyRequests
	case errors.IsValidation(err):
		status = http.StatusBadRequest
	case errors.IsFileParsing(err):
		status = http.StatusUnprocessableEntity
	case errors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryDatabase):
		status = http.StatusInternalServerError
	}

	c.apiLogger.Warn("request failed",
		"path", ctx.Path(),
		"status", status,
		"error", err.Error())

	return ctx.JSON(status, errorResponse{Error: err.Error()})
}
