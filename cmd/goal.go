package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/radial/internal/app"
	"github.com/josephgoksu/radial/internal/ui"
)

var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Create, list and delete goals",
	Long: `Goals are high-level objectives that contain tasks.

A goal starts pending, moves to in_progress when its first task is created,
and becomes completed when every task is completed (failed if any task failed).`,
}

var goalCreateCmd = &cobra.Command{
	Use:   "create <description>",
	Short: "Create a goal",
	Args:  cobra.ExactArgs(1),
	RunE:  runGoalCreate,
}

var goalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all goals",
	Args:  cobra.NoArgs,
	RunE:  runGoalList,
}

var goalDeleteCmd = &cobra.Command{
	Use:   "delete <goal_id>",
	Short: "Delete a goal",
	Long:  `Delete a goal. A goal that still has tasks is only deleted with --cascade, which removes its tasks too.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runGoalDelete,
}

func init() {
	rootCmd.AddCommand(goalCmd)
	goalCmd.AddCommand(goalCreateCmd, goalListCmd, goalDeleteCmd)
	goalDeleteCmd.Flags().Bool("cascade", false, "also delete the goal's tasks")
}

func runGoalCreate(cmd *cobra.Command, args []string) error {
	return withApp(func(ac *app.Context) error {
		g, err := app.NewGoalApp(ac).Create(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd, g)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Created goal %s: %s\n", ui.StyleSuccess.Render("✓"), ui.StyleHeader.Render(g.ID), g.Description)
		return nil
	})
}

func runGoalList(cmd *cobra.Command, args []string) error {
	return withApp(func(ac *app.Context) error {
		goals, err := app.NewGoalApp(ac).List(cmd.Context())
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd, goals)
		}
		ui.RenderGoalTable(cmd.OutOrStdout(), goals)
		return nil
	})
}

type goalDeleteResult struct {
	ID           string `json:"id"`
	TasksRemoved int    `json:"tasks_removed"`
}

func runGoalDelete(cmd *cobra.Command, args []string) error {
	cascade, _ := cmd.Flags().GetBool("cascade")
	return withApp(func(ac *app.Context) error {
		removed, err := app.NewGoalApp(ac).Delete(cmd.Context(), args[0], cascade)
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd, goalDeleteResult{ID: args[0], TasksRemoved: removed})
		}
		msg := fmt.Sprintf("Deleted goal %s", args[0])
		if removed > 0 {
			msg += fmt.Sprintf(" and %d task(s)", removed)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.StyleSuccess.Render("✓"), msg)
		return nil
	})
}
