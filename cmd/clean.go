package cmd

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/radial/internal/app"
	"github.com/josephgoksu/radial/internal/task"
	"github.com/josephgoksu/radial/internal/ui"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove completed goals and their tasks",
	Long: `Remove completed goals together with their tasks.

By default each goal is confirmed interactively; in a non-interactive session
nothing is removed unless --all is given. --force removes every goal whatever
its state, without asking.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().Bool("all", false, "remove all completed goals without asking")
	cleanCmd.Flags().Bool("force", false, "remove every goal regardless of state, without asking")
}

func runClean(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	force, _ := cmd.Flags().GetBool("force")

	return withApp(func(ac *app.Context) error {
		goals := app.NewGoalApp(ac)
		candidates, err := goals.CleanCandidates(cmd.Context(), force)
		if err != nil {
			return err
		}

		var selected []task.Goal
		switch {
		case all || force:
			selected = candidates
		case isJSON():
			// JSON callers cannot answer prompts.
		default:
			reader := bufio.NewReader(cmd.InOrStdin())
			for _, g := range candidates {
				prompt := fmt.Sprintf("Remove goal %s %q (%d task(s))?", g.ID, g.Description, g.Metrics.TaskCount)
				if confirm(cmd.OutOrStdout(), reader, prompt) {
					selected = append(selected, g)
				}
			}
		}

		res, err := goals.Clean(cmd.Context(), selected)
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd, res)
		}

		w := cmd.OutOrStdout()
		if len(res.Goals) == 0 {
			if len(candidates) > 0 && !all && !force {
				fmt.Fprintln(w, ui.StyleSubtle.Render("Nothing removed. Use --all to skip confirmation."))
			} else {
				fmt.Fprintln(w, "Nothing to clean.")
			}
			return nil
		}
		fmt.Fprintf(w, "%s Removed %d goal(s) and %d task(s)\n", ui.StyleSuccess.Render("✓"), len(res.Goals), res.TasksRemoved)
		return nil
	})
}
