// Package cmd implements the CLI commands for hls2vod.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/basshelal/hls2vod/internal/config"
	"github.com/basshelal/hls2vod/internal/observability"
	"github.com/basshelal/hls2vod/internal/version"
)

// cfgFile holds the config file path from CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "hls2vod",
	Short:   "Schedule driven HLS live stream recorder",
	Version: version.Short(),
	Long: `hls2vod watches HLS live streams and records the shows of a weekly
schedule to video files.

Each stream polls its media playlist, appends new segments to one file per
airing show and remuxes the result with ffmpeg once the show ends.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml, $HOME/.hls2vod or /etc/hls2vod)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// loadConfig reads the configuration and applies explicitly set flags.
// Flags override env vars, which override the config file.
//
// Flags are not bound to viper because viper would then prefer a flag's
// default over env and file values. overrides maps flag names of cmd to
// config keys.
func loadConfig(cmd *cobra.Command, overrides map[string]string) (*viper.Viper, *config.Config, error) {
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	overrides["log-level"] = "logging.level"
	overrides["log-format"] = "logging.format"
	applyFlags(v, cmd.Flags(), overrides)

	cfg, err := config.Decode(v)
	if err != nil {
		return nil, nil, err
	}
	return v, cfg, nil
}

func applyFlags(v *viper.Viper, flags *pflag.FlagSet, overrides map[string]string) {
	for name, key := range overrides {
		f := flags.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		value := f.Value.String()
		if key == "logging.level" || key == "logging.format" {
			value = strings.ToLower(value)
			if value == "warning" {
				value = "warn"
			}
		}
		v.Set(key, value)
	}
}

// newLogger creates the process logger on stderr and makes it the default.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	logger := observability.NewLoggerWithWriter(cfg, os.Stderr)
	observability.SetDefault(logger)
	return logger
}
