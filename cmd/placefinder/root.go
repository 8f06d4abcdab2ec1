package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/OCAP2/placefinder/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgDir   string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "placefinder",
	Short:         "Map markers, nearby place search and per-user favourites",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(cfgDir); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return err
			}
			config.LoadDefaults()
		}
		if logLevel != "" {
			viper.Set("logLevel", logLevel)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgDir, "conf", "c", ".", "directory containing "+config.ConfigFileName)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.SetVersionTemplate(fmt.Sprintf("placefinder %s (built %s)\n", Version, BuildDate))
}

// Execute runs the root command
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
