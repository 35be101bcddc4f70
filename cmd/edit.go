package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/radial/internal/app"
	"github.com/josephgoksu/radial/internal/ui"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit a goal or task after creation",
}

var editGoalCmd = &cobra.Command{
	Use:   "goal <goal_id>",
	Short: "Change a goal's description",
	Args:  cobra.ExactArgs(1),
	RunE:  runEditGoal,
}

var editTaskCmd = &cobra.Command{
	Use:   "task <task_id>",
	Short: "Change a task's description, contract or dependencies",
	Long: `Change a task's description, contract or dependencies. Only the flags you pass are changed.

Contract fields are merged into the existing contract. --blocked-by replaces the
whole dependency list (pass --blocked-by "" to clear it); a pending or blocked
task moves between the two to match its new blockers.`,
	Args: cobra.ExactArgs(1),
	RunE: runEditTask,
}

func init() {
	rootCmd.AddCommand(editCmd)
	editCmd.AddCommand(editGoalCmd, editTaskCmd)

	editGoalCmd.Flags().StringP("description", "d", "", "new description")
	_ = editGoalCmd.MarkFlagRequired("description")

	editTaskCmd.Flags().StringP("description", "d", "", "new description")
	addContractFlags(editTaskCmd)
	editTaskCmd.Flags().StringSlice("blocked-by", nil, "replace the blocked_by list")
}

func runEditGoal(cmd *cobra.Command, args []string) error {
	desc, _ := cmd.Flags().GetString("description")
	return withApp(func(ac *app.Context) error {
		g, err := app.NewGoalApp(ac).Edit(cmd.Context(), args[0], desc)
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd, g)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Updated goal %s: %s\n", ui.StyleSuccess.Render("✓"), ui.StyleHeader.Render(g.ID), g.Description)
		return nil
	})
}

func runEditTask(cmd *cobra.Command, args []string) error {
	in := app.EditTaskInput{
		TaskID:       args[0],
		Contract:     contractFromFlags(cmd),
		SetBlockedBy: cmd.Flags().Changed("blocked-by"),
	}
	if cmd.Flags().Changed("description") {
		desc, _ := cmd.Flags().GetString("description")
		in.Description = &desc
	}
	if in.SetBlockedBy {
		in.BlockedBy, _ = cmd.Flags().GetStringSlice("blocked-by")
	}

	return withApp(func(ac *app.Context) error {
		t, err := app.NewTaskApp(ac).Edit(cmd.Context(), in)
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd, t)
		}
		printTaskLine(cmd.OutOrStdout(), "Updated", t)
		return nil
	})
}
