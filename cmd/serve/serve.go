// Package serve implements the serve command starting the GBIF3D HTTP
// backend.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/karimogit/GBIF3D/internal/api"
	"github.com/karimogit/GBIF3D/internal/conf"
	"github.com/karimogit/GBIF3D/internal/datastore"
	"github.com/karimogit/GBIF3D/internal/gbif"
	"github.com/karimogit/GBIF3D/internal/logging"
	"github.com/karimogit/GBIF3D/internal/media"
	"github.com/karimogit/GBIF3D/internal/observability"
	"github.com/karimogit/GBIF3D/internal/places"
	"github.com/karimogit/GBIF3D/internal/respcache"
)

// Command returns the serve subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the occurrence explorer backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(settings)
		},
	}
}

func runServer(settings *conf.Settings) error {
	if settings.Debug {
		logging.SetLevel(slog.LevelDebug)
	}

	registry := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry

	// One response cache shared by every upstream client, scoped to the
	// process lifetime.
	cache := respcache.New()

	gbifClient := gbif.NewClient(gbif.Config{
		BaseURL:    settings.GBIF.BaseURL,
		Timeout:    time.Duration(settings.GBIF.TimeoutSeconds) * time.Second,
		PageTTL:    time.Duration(settings.GBIF.PageTTLMinutes) * time.Minute,
		LookupTTL:  time.Duration(settings.GBIF.LookupTTLMinutes) * time.Minute,
		ChunkDelay: time.Duration(settings.Fetch.ChunkDelayMS) * time.Millisecond,
	}, cache, metrics)
	defer gbifClient.Close()

	placeClient := places.NewClient(places.Config{
		BaseURL:   settings.Places.BaseURL,
		UserAgent: settings.Places.UserAgent,
	}, cache)

	store, err := datastore.Open(settings.Store.Path)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	controller := api.New(settings, gbifClient, placeClient, media.NewLookup(gbifClient), store)
	defer controller.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	address := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	slog.Info("starting GBIF3D backend", "address", address)
	return controller.Start(ctx, address)
}
