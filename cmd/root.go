package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/karimogit/GBIF3D/cmd/serve"
	"github.com/karimogit/GBIF3D/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gbif3d",
		Short: "GBIF3D occurrence explorer backend",
	}

	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		serve.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := cmd.Flags().Parse(args); err != nil {
			return err
		}
		// Command-line arguments take precedence over the config file
		return viper.Unmarshal(settings)
	}

	return rootCmd
}

// setupFlags binds global flags shared by all subcommands
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.PersistentFlags().IntP("port", "p", settings.Server.Port, "HTTP listen port")
	cmd.PersistentFlags().BoolP("debug", "d", settings.Debug, "enable debug logging")
	cmd.PersistentFlags().String("datastore", settings.Store.Path, "path to the SQLite datastore")

	_ = viper.BindPFlag("server.port", cmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("debug", cmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("store.path", cmd.PersistentFlags().Lookup("datastore"))
}
