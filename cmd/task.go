package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/radial/internal/app"
	"github.com/josephgoksu/radial/internal/task"
	"github.com/josephgoksu/radial/internal/ui"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create tasks and move them through their lifecycle",
	Long: `Tasks are units of work under a goal.

Lifecycle:
  pending ──start──▶ in_progress ──complete──▶ completed
  blocked ──(blockers completed)──▶ pending
  in_progress/verifying ──fail──▶ failed ──retry──▶ in_progress

A task needs a contract (--receives, --produces or --verify) before it can start.`,
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <goal_id> <description>",
	Short: "Create a task under a goal",
	Example: `  rd task create aB3dE6gH "Parse config" \
    --receives "config.yaml path" --produces "Config struct" \
    --verify "unit tests pass" --blocked-by xY7kP2mQ`,
	Args: cobra.ExactArgs(2),
	RunE: runTaskCreate,
}

var taskListCmd = &cobra.Command{
	Use:   "list <goal_id>",
	Short: "List a goal's tasks in dependency order",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskList,
}

var taskStartCmd = &cobra.Command{
	Use:   "start <task_id>",
	Short: "Start a pending task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTaskTransition(cmd, args[0], "Started", (*app.TaskApp).Start)
	},
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <task_id>",
	Short: "Complete an in-progress task and release its dependents",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskComplete,
}

var taskFailCmd = &cobra.Command{
	Use:   "fail <task_id>",
	Short: "Mark an in-progress task as failed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTaskTransition(cmd, args[0], "Failed", (*app.TaskApp).Fail)
	},
}

var taskRetryCmd = &cobra.Command{
	Use:   "retry <task_id>",
	Short: "Move a failed task back to in_progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTaskTransition(cmd, args[0], "Retrying", (*app.TaskApp).Retry)
	},
}

var taskCommentCmd = &cobra.Command{
	Use:   "comment <task_id> <text>",
	Short: "Attach a timestamped note to a task",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskComment,
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <task_id>",
	Short: "Delete a pending task that nothing depends on",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDelete,
}

var taskReconcileCmd = &cobra.Command{
	Use:   "reconcile <goal_id>",
	Short: "Release blocked tasks whose blockers are done and refresh the goal state",
	Long: `Re-run the completion cascade for every blocked task of a goal.

Use it after a crash between a completion and its cascade, or to release a task
that was created against blockers that had already completed.`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskReconcile,
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskCreateCmd, taskListCmd, taskStartCmd, taskCompleteCmd, taskFailCmd,
		taskRetryCmd, taskCommentCmd, taskDeleteCmd, taskReconcileCmd)

	addContractFlags(taskCreateCmd)
	taskCreateCmd.Flags().StringSlice("blocked-by", nil, "comma-separated ids of tasks in the same goal that must complete first")

	taskCompleteCmd.Flags().String("result", "", "summary of what was done (required)")
	taskCompleteCmd.Flags().StringSlice("artifacts", nil, "comma-separated files or outputs produced")
	taskCompleteCmd.Flags().Int64("tokens", 0, "tokens spent on the task")
	taskCompleteCmd.Flags().Int64("elapsed", 0, "time spent on the task in milliseconds")
}

func addContractFlags(cmd *cobra.Command) {
	cmd.Flags().String("receives", "", "contract: what the task receives")
	cmd.Flags().String("produces", "", "contract: what the task produces")
	cmd.Flags().String("verify", "", "contract: how the result is verified")
}

// contractFromFlags returns only the contract fields that were passed.
func contractFromFlags(cmd *cobra.Command) task.ContractPatch {
	var p task.ContractPatch
	get := func(name string) *string {
		if !cmd.Flags().Changed(name) {
			return nil
		}
		v, _ := cmd.Flags().GetString(name)
		return &v
	}
	p.Receives = get("receives")
	p.Produces = get("produces")
	p.Verify = get("verify")
	return p
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	blockedBy, _ := cmd.Flags().GetStringSlice("blocked-by")
	return withApp(func(ac *app.Context) error {
		t, err := app.NewTaskApp(ac).Create(cmd.Context(), app.CreateTaskInput{
			GoalID:      args[0],
			Description: args[1],
			Contract:    contractFromFlags(cmd),
			BlockedBy:   blockedBy,
		})
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd, t)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s Created task %s (%s): %s\n", ui.StyleSuccess.Render("✓"),
			ui.StyleHeader.Render(t.ID), ui.RenderState(string(t.State)), t.Description)
		if !t.HasContract() {
			fmt.Fprintln(w, ui.StyleWarning.Render("  no contract yet: set one with rd edit task "+t.ID+" --verify \"...\" before starting"))
		}
		return nil
	})
}

func runTaskList(cmd *cobra.Command, args []string) error {
	return withApp(func(ac *app.Context) error {
		tasks, err := app.NewTaskApp(ac).List(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd, tasks)
		}
		ui.RenderTaskTable(cmd.OutOrStdout(), tasks, isVerbose())
		return nil
	})
}

// runTaskTransition runs a single-task lifecycle operation and reports the new state.
func runTaskTransition(cmd *cobra.Command, id, verb string, op func(*app.TaskApp, context.Context, string) (*task.Task, error)) error {
	return withApp(func(ac *app.Context) error {
		t, err := op(app.NewTaskApp(ac), cmd.Context(), id)
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd, t)
		}
		printTaskLine(cmd.OutOrStdout(), verb, t)
		return nil
	})
}

func printTaskLine(w io.Writer, verb string, t *task.Task) {
	fmt.Fprintf(w, "%s %s task %s (%s): %s\n", ui.StateIcon(string(t.State)), verb,
		ui.StyleHeader.Render(t.ID), ui.RenderState(string(t.State)), t.Description)
}

func runTaskComplete(cmd *cobra.Command, args []string) error {
	result, _ := cmd.Flags().GetString("result")
	artifacts, _ := cmd.Flags().GetStringSlice("artifacts")
	tokens, _ := cmd.Flags().GetInt64("tokens")
	elapsed, _ := cmd.Flags().GetInt64("elapsed")

	return withApp(func(ac *app.Context) error {
		res, err := app.NewTaskApp(ac).Complete(cmd.Context(), app.CompleteTaskInput{
			TaskID:    args[0],
			Summary:   result,
			Artifacts: artifacts,
			Tokens:    tokens,
			ElapsedMs: elapsed,
		})
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd, res)
		}
		w := cmd.OutOrStdout()
		printTaskLine(w, "Completed", res.Task)
		if len(res.Unblocked) > 0 {
			fmt.Fprintf(w, "  unblocked: %s\n", strings.Join(res.Unblocked, ", "))
		}
		fmt.Fprintf(w, "  goal %s: %s (%s)\n", res.Goal.ID, ui.RenderState(string(res.Goal.State)), ui.Progress(res.Goal.Metrics))
		return nil
	})
}

func runTaskComment(cmd *cobra.Command, args []string) error {
	return withApp(func(ac *app.Context) error {
		t, err := app.NewTaskApp(ac).Comment(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd, t)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Comment added to %s (%d total)\n",
			ui.StyleSuccess.Render("✓"), ui.StyleHeader.Render(t.ID), len(t.Comments))
		return nil
	})
}

type taskDeleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

func runTaskDelete(cmd *cobra.Command, args []string) error {
	return withApp(func(ac *app.Context) error {
		if err := app.NewTaskApp(ac).Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd, taskDeleteResult{ID: args[0], Deleted: true})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted task %s\n", ui.StyleSuccess.Render("✓"), args[0])
		return nil
	})
}

func runTaskReconcile(cmd *cobra.Command, args []string) error {
	return withApp(func(ac *app.Context) error {
		res, err := app.NewTaskApp(ac).Reconcile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd, res)
		}
		w := cmd.OutOrStdout()
		if len(res.Unblocked) == 0 {
			fmt.Fprintln(w, "Nothing to release.")
		} else {
			fmt.Fprintf(w, "Unblocked: %s\n", strings.Join(res.Unblocked, ", "))
		}
		fmt.Fprintf(w, "Goal %s: %s (%s)\n", res.Goal.ID, ui.RenderState(string(res.Goal.State)), ui.Progress(res.Goal.Metrics))
		return nil
	})
}
