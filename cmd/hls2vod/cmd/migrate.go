package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/basshelal/hls2vod/internal/database"
	"github.com/basshelal/hls2vod/internal/database/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply every pending schema migration and exit.

serve migrates on startup; this command is for upgrading a database ahead
of time or inspecting its schema version.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		return db.Migrate(cmd.Context())
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether each is applied",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		statuses, err := db.Schema().Status(cmd.Context())
		if err != nil {
			return err
		}
		return printMigrations(cmd.OutOrStdout(), statuses)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the newest applied migration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		return db.Schema().Down(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateStatusCmd, migrateDownCmd)

	migrateCmd.PersistentFlags().String("database", "hls2vod.db", "Database DSN")
}

func openDatabase(cmd *cobra.Command) (*database.DB, error) {
	_, cfg, err := loadConfig(cmd, map[string]string{"database": "database.dsn"})
	if err != nil {
		return nil, err
	}
	db, err := database.New(cfg.Database, newLogger(cfg.Logging), nil)
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	return db, nil
}

func printMigrations(w io.Writer, statuses []migrations.Status) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tDESCRIPTION\tAPPLIED")
	for _, s := range statuses {
		applied := "pending"
		if s.AppliedAt != nil {
			applied = s.AppliedAt.Local().Format(time.RFC1123)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Version, s.Description, applied)
	}
	return tw.Flush()
}
