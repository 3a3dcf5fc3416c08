package main

import (
	"fmt"
	"os"

	"github.com/karimogit/GBIF3D/cmd"
	"github.com/karimogit/GBIF3D/internal/conf"
	"github.com/karimogit/GBIF3D/internal/logging"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
