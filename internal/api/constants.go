package api

import "time"

const (
	// shutdownTimeout bounds graceful server shutdown.
	shutdownTimeout = 10 * time.Second

	// defaultFetchTotal is the record target applied when the caller does
	// not specify one.
	defaultFetchTotal = 1000

	// maxImportSize bounds uploaded import files.
	maxImportSize = 50 << 20 // 50 MiB
)
