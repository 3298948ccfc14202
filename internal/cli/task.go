package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/watzon/gensched/internal/store"
	"github.com/watzon/gensched/internal/task"
	"github.com/watzon/gensched/internal/taskfile"
)

const taskTableWidth = 100

var (
	taskApplyFile  string
	taskListName   string
	taskListStatus string
	taskListActive string
	taskListLimit  int
	taskListOffset int
	taskOutput     string
	taskGetOutput  string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage scheduled tasks",
	Long: `Create, inspect and control scheduled tasks.

Tasks are referenced by id or by name. Changes are picked up by a running
scheduler on its next poll.`,
}

var taskApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create or update tasks from a YAML file",
	Long: `Create or update every task in a task file.

Tasks are matched by name. Existing tasks keep their id and the ids of
triggers whose definition did not change. Tasks listed in depends_on are
applied first.

Examples:
  gensched task apply -f tasks.yaml`,
	Args: cobra.NoArgs,
	RunE: runTaskApply,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long: `List tasks, optionally filtered.

Examples:
  gensched task list
  gensched task list --name 'backup-*' --status Waiting
  gensched task list --active false -o json`,
	Args: cobra.NoArgs,
	RunE: runTaskList,
}

var taskGetCmd = &cobra.Command{
	Use:   "get <task>",
	Short: "Show a task with its triggers",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskGet,
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <task>",
	Short: "Delete a task and its history",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDelete,
}

var taskEnableCmd = &cobra.Command{
	Use:   "enable <task>",
	Short: "Activate a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTaskActive(cmd, args[0], true)
	},
}

var taskDisableCmd = &cobra.Command{
	Use:   "disable <task>",
	Short: "Deactivate a task",
	Long: `Deactivate a task. An inactive task is never dispatched, and is
deleted on the next poll when scheduler.auto_delete_inactive_tasks is set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTaskActive(cmd, args[0], false)
	},
}

var taskRunCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run a task as soon as possible",
	Long: `Add a one-shot trigger due now. The trigger is removed after it fires.

Examples:
  gensched task run nightly-backup`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskRun,
}

func init() {
	taskApplyCmd.Flags().StringVarP(&taskApplyFile, "file", "f", "", "Task file to apply")
	_ = taskApplyCmd.MarkFlagRequired("file")

	taskListCmd.Flags().StringVar(&taskListName, "name", "", "Glob matched against task names")
	taskListCmd.Flags().StringVar(&taskListStatus, "status", "", "Only tasks in this status (Ready, Waiting, Running)")
	taskListCmd.Flags().StringVar(&taskListActive, "active", "", "Only active (true) or inactive (false) tasks")
	taskListCmd.Flags().IntVar(&taskListLimit, "limit", 0, "Maximum number of tasks (0 for all)")
	taskListCmd.Flags().IntVar(&taskListOffset, "offset", 0, "Number of tasks to skip")
	taskListCmd.Flags().StringVarP(&taskOutput, "output", "o", outputTable, "Output format (table, json, yaml)")

	taskGetCmd.Flags().StringVarP(&taskGetOutput, "output", "o", outputYAML, "Output format (json, yaml)")

	taskCmd.AddCommand(taskApplyCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskGetCmd)
	taskCmd.AddCommand(taskDeleteCmd)
	taskCmd.AddCommand(taskEnableCmd)
	taskCmd.AddCommand(taskDisableCmd)
	taskCmd.AddCommand(taskRunCmd)

	rootCmd.AddCommand(taskCmd)
}

func runTaskApply(cmd *cobra.Command, args []string) error {
	f, err := taskfile.Load(taskApplyFile)
	if err != nil {
		return err
	}

	return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
		sum, err := taskfile.Apply(ctx, a.launcher, f)

		out := cmd.OutOrStdout()
		for _, name := range sum.Created {
			fmt.Fprintf(out, "task/%s created\n", name)
		}
		for _, name := range sum.Applied {
			fmt.Fprintf(out, "task/%s configured\n", name)
		}
		return err
	})
}

func taskFilterFromFlags() (store.TaskFilter, error) {
	filter := store.TaskFilter{
		NamePattern: taskListName,
		Limit:       taskListLimit,
		Offset:      taskListOffset,
	}
	if taskListStatus != "" {
		status, err := task.ParseStatus(taskListStatus)
		if err != nil {
			return filter, err
		}
		filter.Statuses = []task.Status{status}
	}
	if taskListActive != "" {
		active, err := strconv.ParseBool(taskListActive)
		if err != nil {
			return filter, fmt.Errorf("invalid --active value %q", taskListActive)
		}
		filter.Active = &active
	}
	return filter, nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	if err := checkOutput(taskOutput, outputTable, outputJSON, outputYAML); err != nil {
		return err
	}
	filter, err := taskFilterFromFlags()
	if err != nil {
		return err
	}

	return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
		var tasks []*task.ScheduledTask
		err := a.store.Do(ctx, func(s *store.Session) error {
			var err error
			tasks, err = s.Tasks().GetAll(ctx, filter)
			return err
		})
		if err != nil {
			return err
		}

		if taskOutput != outputTable {
			if tasks == nil {
				tasks = []*task.ScheduledTask{}
			}
			return printStructured(cmd.OutOrStdout(), taskOutput, tasks)
		}
		printTaskTable(cmd.OutOrStdout(), tasks)
		return nil
	})
}

func printTaskTable(w io.Writer, tasks []*task.ScheduledTask) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks found.")
		return
	}

	fmt.Fprintf(w, "%-10s %-24s %-8s %-7s %-20s %-20s %s\n", "ID", "NAME", "STATUS", "ACTIVE", "NEXT", "LAST", "TRIGGERS")
	fmt.Fprintln(w, strings.Repeat("-", taskTableWidth))
	for _, t := range tasks {
		fmt.Fprintf(w, "%-10s %-24s %-8s %-7t %-20s %-20s %d\n",
			shortID(t.ID),
			truncate(t.Name, 24),
			t.Status,
			t.IsActive,
			formatTime(t.NextExecution),
			formatTime(t.LastExecution),
			len(t.Triggers),
		)
	}
}

func runTaskGet(cmd *cobra.Command, args []string) error {
	if err := checkOutput(taskGetOutput, outputJSON, outputYAML); err != nil {
		return err
	}
	return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
		t, err := a.launcher.ResolveTask(ctx, args[0])
		if err != nil {
			return err
		}
		return printStructured(cmd.OutOrStdout(), taskGetOutput, t)
	})
}

func runTaskDelete(cmd *cobra.Command, args []string) error {
	return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
		if err := a.launcher.DeleteTask(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "task/%s deleted\n", args[0])
		return nil
	})
}

func setTaskActive(cmd *cobra.Command, ref string, active bool) error {
	return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
		t, err := a.launcher.SetActive(ctx, ref, active)
		if err != nil {
			return err
		}
		state := "disabled"
		if active {
			state = "enabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "task/%s %s\n", t.Name, state)
		return nil
	})
}

func runTaskRun(cmd *cobra.Command, args []string) error {
	return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
		t, err := a.launcher.Trigger(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "task/%s queued for %s\n", t.Name, formatTime(t.NextExecution))
		return nil
	})
}
