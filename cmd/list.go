/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/radial/internal/app"
	"github.com/josephgoksu/radial/internal/ui"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every goal with its tasks",
	Long: `List every goal with its tasks in dependency order.

Use --verbose to include task comments.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withApp(func(ac *app.Context) error {
		all, err := app.NewQueryApp(ac).ListAll(cmd.Context())
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd, all)
		}

		w := cmd.OutOrStdout()
		if len(all) == 0 {
			ui.RenderGoalTable(w, nil)
			return nil
		}
		for i, gt := range all {
			if i > 0 {
				fmt.Fprintln(w)
			}
			ui.RenderGoalHeader(w, &gt.Goal)
			ui.RenderTaskTable(w, gt.Tasks, isVerbose())
		}
		return nil
	})
}
