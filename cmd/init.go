/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/radial/internal/config"
	"github.com/josephgoksu/radial/internal/memory"
	"github.com/josephgoksu/radial/internal/project"
	"github.com/josephgoksu/radial/internal/ui"
)

// storeIgnores are store artifacts that never belong in version control.
var storeIgnores = []string{
	"radial.db-wal",
	"radial.db-shm",
	"radial.lock",
	"*.tmp",
	project.CrashLogDirName + "/",
}

// initResult is the JSON output of rd init.
type initResult struct {
	Dir      string `json:"dir"`
	StoreDir string `json:"store_dir"`
	Backend  string `json:"backend"`
	Created  bool   `json:"created"`
	Stealth  bool   `json:"stealth"`
}

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize a .radial workspace",
	Long: `Create a .radial directory in the project root (default: current directory)
with a default config.yaml and an empty store.

With --stealth, .radial/ is added to .git/info/exclude so it never shows up
in git status without touching the shared .gitignore.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().Bool("stealth", false, "keep .radial out of git via .git/info/exclude")
}

func runInit(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) > 0 {
		root = args[0]
	} else if cwd, err := os.Getwd(); err == nil {
		root = cwd
	}
	stealth, _ := cmd.Flags().GetBool("stealth")

	ws, existed, err := project.NewOsLocator().Init(root, project.InitOptions{
		Stealth: stealth,
		Config:  config.FileDefaults(),
		Ignore:  storeIgnores,
	})
	if err != nil {
		return fmt.Errorf("init workspace: %w", err)
	}

	cfg := GetConfig()
	s, err := memory.Open(memory.Options{Backend: cfg.Store.Backend, Dir: ws.StoreDir, LockTimeout: cfg.Store.LockTimeout})
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	if err := s.Close(); err != nil {
		return err
	}

	if isJSON() {
		return printJSON(cmd, initResult{
			Dir: ws.Dir, StoreDir: ws.StoreDir, Backend: cfg.Store.Backend, Created: !existed, Stealth: stealth,
		})
	}
	if existed {
		fmt.Fprintf(cmd.OutOrStdout(), "%s rd already initialized in %s\n", ui.StyleSuccess.Render("✓"), ws.Dir)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Initialized rd in %s (%s store)\n", ui.StyleSuccess.Render("✓"), ws.Dir, cfg.Store.Backend)
	if ws.Redirected {
		fmt.Fprintf(cmd.OutOrStdout(), "  store redirected to %s\n", ws.StoreDir)
	}
	if stealth {
		fmt.Fprintln(cmd.OutOrStdout(), "  .radial/ added to .git/info/exclude")
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.StyleSubtle.Render("Next: rd goal create \"<description>\""))
	return nil
}
