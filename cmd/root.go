package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ridoystarlord/archiveprune/utils"
)

var (
	configFile    string
	logFile       string
	logLevel      string
	sandboxPolicy string
	dryRun        bool
)

var rootCmd = &cobra.Command{
	Use:   "archiveprune <base-dir>",
	Short: "Delete an archived record tree and its files",
	Long: `archiveprune deletes a hierarchy of records from a relational store,
children before parents, together with the files kept for each record.

The workflows, file locations and expected schema hash are read from a
YAML configuration file. Every configured path is resolved inside
<base-dir>.

Examples:

  archiveprune /data/pcf
  archiveprune /data/pcf --dry-run --log-level debug
  archiveprune /data/pcf --config ./config.yaml --sandbox-policy fail-closed
  archiveprune check /data/pcf
  archiveprune validate /data/pcf
`,
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return utils.LoadEnv()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Arguments are fine from here on; failures are not usage errors.
		cmd.SilenceUsage = true
		report, err := prune(cmd.Context(), runOptions{
			BaseDir:       args[0],
			ConfigFile:    configFile,
			LogFile:       logFile,
			LogLevel:      logLevel,
			SandboxPolicy: sandboxPolicy,
			DryRun:        dryRun,
		})
		if err != nil {
			return err
		}
		printReport(report)
		return nil
	},
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

// Register flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", utils.DefaultPath("config.yaml"), "Configuration file")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", utils.DefaultPath("archiveprune.log"), "Run log file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Minimum log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVar(&sandboxPolicy, "sandbox-policy", "", "Override sandbox.policy (fail-open, fail-closed)")
	rootCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Select and log only; delete nothing")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
}
