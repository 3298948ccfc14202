package cli

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/watzon/gensched/internal/database"
	"github.com/watzon/gensched/internal/database/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply the embedded schema migrations to the configured database.

serve and every task command migrate on open, so this is only needed to
prepare a database ahead of time.

Examples:
  gensched migrate
  gensched migrate status`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrateStatus,
}

func init() {
	migrateCmd.AddCommand(migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	db, err := database.Open(&appConfig.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := migrations.GetApplied(cmd.Context(), db.DB)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Database %s is up to date (%d migrations).\n", appConfig.Database.Path, len(applied))
	return nil
}

// runMigrateStatus reads the version table without migrating.
func runMigrateStatus(cmd *cobra.Command, args []string) error {
	sqlDB, err := sql.Open("sqlite", appConfig.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer sqlDB.Close()

	ctx := cmd.Context()
	applied, err := migrations.GetApplied(ctx, sqlDB)
	if err != nil {
		return err
	}
	pending, err := migrations.Pending(ctx, sqlDB)
	if err != nil {
		return err
	}

	printMigrationStatus(cmd.OutOrStdout(), applied, pending)
	return nil
}

func printMigrationStatus(w io.Writer, applied []migrations.AppliedMigration, pending []string) {
	if len(applied) == 0 {
		fmt.Fprintln(w, "No migrations have been applied yet.")
	} else {
		fmt.Fprintln(w, "Applied migrations:")
		for _, m := range applied {
			fmt.Fprintf(w, "  ✓ %s (applied %s)\n", m.ID, m.AppliedAt.Format("2006-01-02 15:04:05"))
		}
	}

	fmt.Fprintln(w)
	if len(pending) == 0 {
		fmt.Fprintln(w, "No pending migrations.")
		return
	}
	fmt.Fprintln(w, "Pending migrations:")
	for _, id := range pending {
		fmt.Fprintf(w, "  ○ %s\n", id)
	}
}
