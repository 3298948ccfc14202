package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/watzon/gensched/internal/store"
	"github.com/watzon/gensched/internal/task"
)

const historyTableWidth = 90

var (
	historyStatus    string
	historyLimit     int
	historyOutput    string
	historyOlderThan time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and prune execution history",
}

var historyListCmd = &cobra.Command{
	Use:   "list <task>",
	Short: "List executions of a task, newest first",
	Long: `List the execution history of a task, newest first.

Examples:
  gensched history list nightly-backup
  gensched history list nightly-backup --status Failed --limit 5 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runHistoryList,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old execution history",
	Long: `Delete history records started before now minus --older-than.

When archive.enabled is set the records are uploaded to S3 first, and a
failed upload leaves them in place.

Examples:
  gensched history prune --older-than 720h`,
	Args: cobra.NoArgs,
	RunE: runHistoryPrune,
}

func init() {
	historyListCmd.Flags().StringVar(&historyStatus, "status", "", "Only records with this status (Success, Failed, Canceled)")
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of records")
	historyListCmd.Flags().StringVarP(&historyOutput, "output", "o", outputTable, "Output format (table, json, yaml)")

	historyPruneCmd.Flags().DurationVar(&historyOlderThan, "older-than", 0, "Age of the records to delete")
	_ = historyPruneCmd.MarkFlagRequired("older-than")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyPruneCmd)

	rootCmd.AddCommand(historyCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	if err := checkOutput(historyOutput, outputTable, outputJSON, outputYAML); err != nil {
		return err
	}

	filter := store.HistoryFilter{Limit: historyLimit}
	if historyStatus != "" {
		status, err := task.ParseHistoryStatus(historyStatus)
		if err != nil {
			return err
		}
		filter.Statuses = []task.HistoryStatus{status}
	}

	return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
		t, err := a.launcher.ResolveTask(ctx, args[0])
		if err != nil {
			return err
		}
		filter.TaskIDs = []string{t.ID}

		var records []*task.History
		err = a.store.Do(ctx, func(s *store.Session) error {
			var err error
			records, err = s.History().GetAll(ctx, filter)
			return err
		})
		if err != nil {
			return err
		}

		if historyOutput != outputTable {
			if records == nil {
				records = []*task.History{}
			}
			return printStructured(cmd.OutOrStdout(), historyOutput, records)
		}
		printHistoryTable(cmd.OutOrStdout(), records)
		return nil
	})
}

func printHistoryTable(w io.Writer, records []*task.History) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No executions recorded.")
		return
	}

	fmt.Fprintf(w, "%-10s %-20s %-12s %-10s %-8s %s\n", "ID", "STARTED", "DURATION", "STATUS", "ATTEMPTS", "ERROR")
	fmt.Fprintln(w, strings.Repeat("-", historyTableWidth))
	for _, h := range records {
		errText := "-"
		if h.Error != "" {
			errText = truncate(h.Error, 40)
		}
		fmt.Fprintf(w, "%-10s %-20s %-12s %-10s %-8d %s\n",
			shortID(h.ID),
			formatTime(&h.StartedAt),
			h.Duration().Round(time.Millisecond),
			h.Status,
			h.Attempts,
			errText,
		)
	}
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	if historyOlderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	return withApp(cmd, appOptions{archive: true}, func(ctx context.Context, a *app) error {
		n, err := a.launcher.PruneHistory(ctx, time.Now().Add(-historyOlderThan))
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d history records.\n", n)
		return err
	})
}
