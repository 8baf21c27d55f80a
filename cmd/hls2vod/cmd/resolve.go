package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/basshelal/hls2vod/internal/hls"
	"github.com/basshelal/hls2vod/internal/httpclient"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <url>",
	Short: "Print the media playlist a source resolves to",
	Long: `Fetch a master or media playlist and print the media playlist URL that
would be recorded under the given bandwidth policy.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().String("bandwidth", "", "Variant policy: best, worst or a bits per second ceiling (default from config)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig(cmd, map[string]string{"bandwidth": "recording.bandwidth"})
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging)

	policy, err := hls.ParseBandwidthPolicy(cfg.Recording.Bandwidth)
	if err != nil {
		return err
	}

	client := httpclient.New(httpclient.ConfigFrom(cfg.HTTPClient, logger))
	playlistURL, err := hls.NewResolver(client, logger).Resolve(cmd.Context(), args[0], policy)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), playlistURL)
	return nil
}
