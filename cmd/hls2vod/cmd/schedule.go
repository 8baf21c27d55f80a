package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/basshelal/hls2vod/internal/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show schedule commands",
}

var scheduleValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a schedule file and print each show's next window",
	Long: `Parse a CSV show schedule and print the current or next recording window
of every show, with the configured offset and timezone applied.

The file needs the columns name, day, hour, minute and duration (minutes).`,
	Args: cobra.ExactArgs(1),
	RunE: runScheduleValidate,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleValidateCmd)
	scheduleValidateCmd.Flags().Bool("yaml", false, "print the shows as YAML")
}

func runScheduleValidate(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig(cmd, map[string]string{})
	if err != nil {
		return err
	}

	loc, err := cfg.Recording.Location()
	if err != nil {
		return err
	}

	entries, err := schedule.Load(args[0])
	if err != nil {
		return err
	}
	now := time.Now()
	shows, err := schedule.NewShows(entries, cfg.Recording.Offset(), loc, now)
	if err != nil {
		return err
	}

	asYAML, _ := cmd.Flags().GetBool("yaml")
	if asYAML {
		snaps := make([]schedule.ShowSnapshot, 0, len(shows))
		for _, s := range shows {
			snaps = append(snaps, s.Snapshot())
		}
		out, err := yaml.Marshal(snaps)
		if err != nil {
			return fmt.Errorf("marshaling shows: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	}
	return printShows(cmd.OutOrStdout(), shows, now)
}

func printShows(w io.Writer, shows []*schedule.Show, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SHOW\tSLOT\tRECORD FROM\tRECORD UNTIL\tACTIVE")
	for _, s := range shows {
		e := s.Entry()
		fmt.Fprintf(tw, "%s\t%s %02d:%02d %dm\t%s\t%s\t%t\n",
			e.Name, e.Day, e.Hour, e.Minute, e.DurationMinutes,
			s.OffsetStartTime().Format(time.RFC1123),
			s.OffsetEndTime().Format(time.RFC1123),
			s.IsActive(now, true),
		)
	}
	return tw.Flush()
}
