package cmd

import (
	"github.com/spf13/cobra"

	"github.com/josephgoksu/radial/internal/app"
	"github.com/josephgoksu/radial/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a task, a goal, or all goals",
	Long: `Without flags, summarize every goal.
With --goal, show the goal's metrics and tasks. With --task, show one task.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().String("goal", "", "goal id")
	statusCmd.Flags().String("task", "", "task id")
}

func runStatus(cmd *cobra.Command, args []string) error {
	goalID, _ := cmd.Flags().GetString("goal")
	taskID, _ := cmd.Flags().GetString("task")

	return withApp(func(ac *app.Context) error {
		rep, err := app.NewQueryApp(ac).Status(cmd.Context(), goalID, taskID)
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd, rep)
		}

		w := cmd.OutOrStdout()
		switch {
		case rep.Task != nil:
			ui.RenderTaskDetail(w, rep.Task)
		case rep.Goal != nil:
			ui.RenderGoalDetail(w, rep.Goal, rep.Tasks, isVerbose())
		default:
			ui.RenderGoalTable(w, rep.Goals)
		}
		return nil
	})
}
