package conf

import "github.com/spf13/viper"

// setDefaultConfig registers the default value for every setting so a missing
// or partial config file still yields a usable configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	// Logging
	viper.SetDefault("log.enabled", true)
	viper.SetDefault("log.path", "logs")
	viper.SetDefault("log.rotation", RotationSize)
	viper.SetDefault("log.maxsize", 10*1024*1024)
	viper.SetDefault("log.maxbackups", 3)

	// HTTP server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.corsorigin", "*")

	// GBIF occurrence API
	viper.SetDefault("gbif.baseurl", "https://api.gbif.org/v1")
	viper.SetDefault("gbif.timeoutseconds", 30)
	viper.SetDefault("gbif.pagettlminutes", 15)
	viper.SetDefault("gbif.lookupttlminutes", 2)

	// Chunked fetch orchestration
	viper.SetDefault("fetch.maxtotal", 100000)
	viper.SetDefault("fetch.chunkdelayms", 400)
	viper.SetDefault("fetch.debouncems", 800)

	// Place search
	viper.SetDefault("places.baseurl", "https://nominatim.openstreetmap.org")
	viper.SetDefault("places.useragent", "GBIF3D/1.0 (+https://github.com/karimogit/GBIF3D)")

	// Local persistence
	viper.SetDefault("store.path", "gbif3d.db")
}
