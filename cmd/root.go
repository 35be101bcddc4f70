/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/josephgoksu/radial/internal/logger"
)

var (
	// cfgFile is the path to the configuration file.
	cfgFile string
	// version is the application version.
	version = "0.3.0"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rd",
	Short: "rd - goal and task orchestration for agents",
	Long: `rd tracks goals and the tasks that make them up: contracts, dependencies
and lifecycle state, stored in a .radial directory next to your project.

Tasks with blocked_by edges start blocked and are released automatically when
their blockers complete. Every state change is a conditional write, so several
agents can run rd against the same workspace concurrently.

Run 'rd prep' for a guide written for LLM agents.`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(reportError(rootCmd, err))
	}
}

// GetVersion returns the CLI version.
func GetVersion() string {
	return version
}

func init() {
	logger.SetVersion(version)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default is .radial/config.yaml)")
	flags.BoolP("verbose", "v", false, "enable debug logging and extra detail")
	flags.Bool("json", false, "output as JSON")
	flags.String("dir", "", "store directory to use instead of the discovered .radial")
	flags.String("backend", "", "store backend: sqlite or jsonl")
	bindFlags(flags)
}

// bindFlags binds persistent flags to Viper keys.
func bindFlags(flags *pflag.FlagSet) {
	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = viper.BindPFlag("json", flags.Lookup("json"))
	_ = viper.BindPFlag("store.dir", flags.Lookup("dir"))
	_ = viper.BindPFlag("store.backend", flags.Lookup("backend"))
}

// setup loads configuration and logging before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	logger.SetCommand(cmd.CommandPath(), args)
	if err := InitConfig(); err != nil {
		return err
	}
	cfg := GetConfig()
	return logger.Setup(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
}
