// Package refetch decides when a user-driven change to the selected region
// or filter set should trigger a new chunked fetch, without flooding the
// upstream API during camera pans or per-keystroke filter edits.
package refetch

import (
	"context"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/karimogit/GBIF3D/internal/conf"
	"github.com/karimogit/GBIF3D/internal/gbif"
	"github.com/karimogit/GBIF3D/internal/geo"
	"github.com/karimogit/GBIF3D/internal/logging"
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "refetch.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, _, err = logging.NewFileLogger(logFilePath, "refetch", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize refetch file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "refetch")
	}
}

// DefaultDebounce is the quiet period applied to bounds and filter changes
// before a fetch is issued.
const DefaultDebounce = 800 * time.Millisecond

// Change is a user-driven state change observed by the controller. The set
// of change types is closed; consumers switch on the concrete type.
type Change interface{ isChange() }

// RegionSelected reports an explicit change of selected region. LiveView
// marks the "current view" pseudo-region whose bounds follow the camera.
type RegionSelected struct {
	Bounds   geo.Bounds
	LiveView bool
}

// RectangleDrawn reports a free-hand two-point rectangle selection.
type RectangleDrawn struct{ Bounds geo.Bounds }

// PlaceChosen reports a place-search result selection.
type PlaceChosen struct{ Bounds geo.Bounds }

// CameraMoved reports camera movement with the resulting view extent. It
// triggers a refetch only while the live-view region is active.
type CameraMoved struct{ Bounds geo.Bounds }

// FiltersChanged reports a change of the taxonomic or temporal filter set.
type FiltersChanged struct{ Filter gbif.FilterSet }

func (RegionSelected) isChange() {}
func (RectangleDrawn) isChange() {}
func (PlaceChosen) isChange()    {}
func (CameraMoved) isChange()    {}
func (FiltersChanged) isChange() {}

// Update is a state change emitted to the display consumer. The set of
// update types is closed.
type Update interface{ isUpdate() }

// LoadingUpdate toggles the loading indicator.
type LoadingUpdate struct{ Loading bool }

// ResultsUpdate replaces the displayed occurrence set wholesale.
type ResultsUpdate struct {
	Records []gbif.Occurrence
	Count   int64
}

// ErrorUpdate surfaces a user-facing failure message. The displayed set has
// already been cleared by an accompanying ResultsUpdate.
type ErrorUpdate struct{ Message string }

func (LoadingUpdate) isUpdate() {}
func (ResultsUpdate) isUpdate() {}
func (ErrorUpdate) isUpdate()   {}

// Fetcher is the chunked fetch operation the controller drives.
type Fetcher interface {
	FetchUpTo(ctx context.Context, filter *gbif.FilterSet, maxTotal int) (*gbif.Aggregate, error)
}

// Controller debounces region and filter changes into chunked fetch
// operations and guarantees last-request-wins delivery: a stale fetch
// resolving after a newer one started is discarded, never displayed.
type Controller struct {
	fetcher  Fetcher
	notify   func(Update)
	debounce Debouncer
	delay    time.Duration
	maxTotal int

	// generation implements stale-result suppression: a fetch result is
	// applied only when its generation still matches at resolution time.
	generation atomic.Uint64

	mu       sync.Mutex
	bounds   geo.Bounds
	hasRect  bool
	liveView bool
	filter   gbif.FilterSet
	loading  bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithDebounce overrides the debounce quiet period.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) { c.delay = d }
}

// WithMaxTotal overrides the per-fetch record target.
func WithMaxTotal(n int) Option {
	return func(c *Controller) { c.maxTotal = n }
}

// NewController creates a controller delivering updates to notify. Defaults
// come from the loaded configuration when present; explicit options override
// both. The notify callback is invoked from timer goroutines and must not
// block.
func NewController(fetcher Fetcher, notify func(Update), opts ...Option) *Controller {
	c := &Controller{
		fetcher:  fetcher,
		notify:   notify,
		delay:    DefaultDebounce,
		maxTotal: gbif.MaxFetchTotal,
	}
	c.applySettings(conf.Setting())
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// applySettings overrides the built-in defaults with configured fetch bounds.
// A nil settings instance leaves the defaults untouched.
func (c *Controller) applySettings(settings *conf.Settings) {
	if settings == nil {
		return
	}
	if settings.Fetch.DebounceMS > 0 {
		c.delay = time.Duration(settings.Fetch.DebounceMS) * time.Millisecond
	}
	if settings.Fetch.MaxTotal > 0 {
		c.maxTotal = settings.Fetch.MaxTotal
	}
}

// Apply feeds one change into the controller, restarting the debounce timer
// when the change warrants a refetch.
func (c *Controller) Apply(change Change) {
	c.mu.Lock()

	trigger := false
	switch ch := change.(type) {
	case RegionSelected:
		c.bounds = ch.Bounds
		c.hasRect = true
		c.liveView = ch.LiveView
		trigger = true
	case RectangleDrawn:
		c.bounds = ch.Bounds
		c.hasRect = true
		c.liveView = false
		trigger = true
	case PlaceChosen:
		c.bounds = ch.Bounds
		c.hasRect = true
		c.liveView = false
		trigger = true
	case CameraMoved:
		// Camera movement within a fixed region never refetches; when the
		// live view is the active selection it is exactly what must.
		if c.liveView {
			c.bounds = ch.Bounds
			c.hasRect = true
			trigger = true
		}
	case FiltersChanged:
		c.filter = ch.Filter
		trigger = true
	}

	if !trigger {
		c.mu.Unlock()
		return
	}

	if !c.filter.HasTaxonFilter() {
		// An unconstrained fetch over a whole view would return an
		// unbounded, meaningless result set. Clear instead of fetching.
		c.mu.Unlock()
		c.debounce.Stop()
		c.generation.Add(1)
		c.notify(ResultsUpdate{Records: []gbif.Occurrence{}})
		return
	}

	c.mu.Unlock()
	c.debounce.Schedule(c.fire, c.delay)
}

// Loading reports whether a fetch is currently in flight.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// fire issues the fetch for the controller's current state. Runs on the
// debounce timer goroutine.
func (c *Controller) fire() {
	gen := c.generation.Add(1)
	opID := uuid.New().String()

	c.mu.Lock()
	filter := c.filter
	if c.hasRect {
		filter.Geometry = geo.BoundsToPolygon(c.bounds)
	}
	c.loading = true
	c.mu.Unlock()

	c.notify(LoadingUpdate{Loading: true})
	logger.Debug("refetch fired",
		"operation_id", opID,
		"generation", gen,
		"geometry_set", filter.Geometry != "")

	agg, err := c.fetcher.FetchUpTo(context.Background(), &filter, c.maxTotal)

	// A response is applied only if its generation still matches; a newer
	// request supersedes this one.
	if c.generation.Load() != gen {
		logger.Debug("stale fetch result discarded",
			"operation_id", opID,
			"generation", gen,
			"current", c.generation.Load())
		return
	}

	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()

	if err != nil {
		logger.Warn("refetch failed",
			"operation_id", opID,
			"error", err)
		c.notify(ResultsUpdate{Records: []gbif.Occurrence{}})
		c.notify(ErrorUpdate{Message: "Failed to load occurrences: " + err.Error()})
		c.notify(LoadingUpdate{Loading: false})
		return
	}

	logger.Info("refetch complete",
		"operation_id", opID,
		"records", len(agg.Records),
		"total_count", agg.Count)
	c.notify(ResultsUpdate{Records: agg.Records, Count: agg.Count})
	c.notify(LoadingUpdate{Loading: false})
}

// Stop cancels any pending debounced fetch and invalidates in-flight ones.
func (c *Controller) Stop() {
	c.debounce.Stop()
	c.generation.Add(1)
}
