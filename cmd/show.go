package cmd

import (
	"github.com/spf13/cobra"

	"github.com/josephgoksu/radial/internal/app"
	"github.com/josephgoksu/radial/internal/task"
	"github.com/josephgoksu/radial/internal/ui"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a task or goal by id",
	Long:  `Show every field of a task, or a goal with its tasks. The id is tried as a task first, then as a goal.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

// showResult tags the JSON output with the entity kind.
type showResult struct {
	Type  string      `json:"type"`
	Task  *task.Task  `json:"task,omitempty"`
	Goal  *task.Goal  `json:"goal,omitempty"`
	Tasks []task.Task `json:"tasks,omitempty"`
}

func newShowResult(entity app.Entity) showResult {
	res := showResult{Type: entity.Kind()}
	switch e := entity.(type) {
	case *app.TaskEntity:
		res.Task = e.Task
	case *app.GoalEntity:
		res.Goal = e.Goal
		res.Tasks = e.Tasks
	}
	return res
}

func runShow(cmd *cobra.Command, args []string) error {
	return withApp(func(ac *app.Context) error {
		entity, err := app.NewQueryApp(ac).Show(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd, newShowResult(entity))
		}

		w := cmd.OutOrStdout()
		switch e := entity.(type) {
		case *app.TaskEntity:
			ui.RenderTaskDetail(w, e.Task)
		case *app.GoalEntity:
			ui.RenderGoalDetail(w, e.Goal, e.Tasks, isVerbose())
		}
		return nil
	})
}
