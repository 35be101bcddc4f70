package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const prepGuide = "## Working with rd\n\n" +
	"rd keeps goals and their tasks in `.radial/` so agents can coordinate on what is ready.\n" +
	"Every command accepts `--json`; errors then arrive as `{\"error\": {kind, message, suggestion}}`.\n\n" +
	"### Setup\n\n" +
	"```bash\n" +
	"rd init                 # create .radial in the current project\n" +
	"rd init --stealth       # same, but hide it via .git/info/exclude\n" +
	"```\n\n" +
	"### Goals\n\n" +
	"```bash\n" +
	"rd goal create \"Implement login\"      # prints the goal id\n" +
	"rd goal list\n" +
	"rd goal delete <goal_id> --cascade     # also removes its tasks\n" +
	"```\n\n" +
	"### Tasks\n\n" +
	"```bash\n" +
	"rd task create <goal_id> \"Parse config\" \\\n" +
	"  --receives \"path to config.yaml\" --produces \"Config struct\" \\\n" +
	"  --verify \"go test ./config\" --blocked-by <task_id>,<task_id>\n" +
	"rd task list <goal_id>                 # dependency order; --verbose adds comments\n" +
	"rd task start <task_id>\n" +
	"rd task complete <task_id> --result \"what was done\" \\\n" +
	"  --artifacts a.go,b.go --tokens 1500 --elapsed 30000\n" +
	"rd task fail <task_id>\n" +
	"rd task retry <task_id>\n" +
	"rd task comment <task_id> \"progress note\"\n" +
	"rd task delete <task_id>\n" +
	"rd task reconcile <goal_id>           # release tasks whose blockers are done\n" +
	"```\n\n" +
	"### Editing\n\n" +
	"```bash\n" +
	"rd edit goal <goal_id> --description \"...\"\n" +
	"rd edit task <task_id> --description \"...\" --verify \"...\"\n" +
	"rd edit task <task_id> --blocked-by <task_id>   # replaces the list; \"\" clears it\n" +
	"```\n\n" +
	"### Looking around\n\n" +
	"```bash\n" +
	"rd ready <goal_id>          # pending tasks with a contract: pick one of these\n" +
	"rd show <id>                # a task, or a goal with its tasks\n" +
	"rd status [--goal <id> | --task <id>]\n" +
	"rd list                     # every goal with its tasks\n" +
	"rd clean [--all | --force]  # remove completed goals (--force: all goals)\n" +
	"```\n\n" +
	"### Rules\n\n" +
	"- Starting needs a contract (any of receives/produces/verify) and state `pending`.\n" +
	"- Tasks created with blockers start `blocked`; completing the last blocker moves them to `pending`.\n" +
	"- Complete needs `in_progress` and a `--result`. Fail needs `in_progress` or `verifying`. Retry needs `failed`.\n" +
	"- Only `pending` tasks that nothing depends on can be deleted.\n" +
	"- A goal completes when all its tasks complete and fails when a task fails.\n" +
	"- Exit codes: 2 not found, 3 invalid state, 4 conflict (someone else changed it: re-read and retry), 5 validation, 6 storage.\n\n" +
	"### Loop\n\n" +
	"1. `rd ready <goal_id>`\n" +
	"2. `rd task start <task_id>` (exit code 4 means another agent took it: go back to 1)\n" +
	"3. do the work, `rd task comment` as you go\n" +
	"4. `rd task complete <task_id> --result \"...\"`\n"

var prepCmd = &cobra.Command{
	Use:   "prep",
	Short: "Print a usage guide for LLM agents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if isJSON() {
			return printJSON(cmd, map[string]string{"guide": prepGuide})
		}
		_, err := fmt.Fprint(cmd.OutOrStdout(), prepGuide)
		return err
	},
}

func init() {
	rootCmd.AddCommand(prepCmd)
}
