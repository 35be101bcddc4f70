package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/radial/internal/app"
	"github.com/josephgoksu/radial/internal/ui"
)

var readyCmd = &cobra.Command{
	Use:   "ready <goal_id>",
	Short: "List tasks that can be started now",
	Long:  `List the pending tasks of a goal that have a contract, in dependency order.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runReady,
}

func init() {
	rootCmd.AddCommand(readyCmd)
}

func runReady(cmd *cobra.Command, args []string) error {
	return withApp(func(ac *app.Context) error {
		tasks, err := app.NewQueryApp(ac).Ready(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd, tasks)
		}
		w := cmd.OutOrStdout()
		if len(tasks) == 0 {
			fmt.Fprintln(w, ui.StyleSubtle.Render("No tasks ready to start."))
			return nil
		}
		ui.RenderTaskTable(w, tasks, false)
		return nil
	})
}
