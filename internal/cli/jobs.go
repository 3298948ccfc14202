package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/watzon/gensched/internal/job"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List the job types tasks can run",
	Long: `List the registered job types. A task's job.type must be one of these.

Examples:
  gensched jobs`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, name := range job.Default().Names() {
			fmt.Fprintln(out, name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}
