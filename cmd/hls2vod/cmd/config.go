package cmd

import (
	"bytes"
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/basshelal/hls2vod/internal/config"
	"github.com/basshelal/hls2vod/internal/storage"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing hls2vod configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration in YAML format: defaults overlaid with
the config file and environment.

Use it to create a configuration template:

  hls2vod config dump -o config.yaml

Configuration can be set via:
  - Config file (config.yaml, $HOME/.hls2vod/config.yaml, /etc/hls2vod/config.yaml)
  - Environment variables (HLS2VOD_SERVER_PORT, HLS2VOD_DATABASE_DSN, etc.)
  - Command-line flags (for some options)

Environment variables use the HLS2VOD_ prefix and underscores for nesting.
Example: recording.offset_seconds -> HLS2VOD_RECORDING_OFFSET_SECONDS`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
	configDumpCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
}

// toMap converts a struct to a map keyed by mapstructure tags, formatting
// durations for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func renderConfig(cfg *config.Config) ([]byte, error) {
	data, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# hls2vod configuration\n")
	buf.WriteString("# Duration format: 30s, 5m, 1h\n")
	buf.WriteString("# Environment overrides use the HLS2VOD_ prefix, e.g. HLS2VOD_STORAGE_OUTPUT_DIR\n\n")
	buf.Write(data)
	return buf.Bytes(), nil
}

func runConfigDump(cmd *cobra.Command, _ []string) error {
	_, cfg, err := loadConfig(cmd, map[string]string{})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	data, err := renderConfig(cfg)
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := storage.WriteFileAtomic(output, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "wrote", output)
	return nil
}
