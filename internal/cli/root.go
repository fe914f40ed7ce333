package cli

import (
	"fmt"
	"os"

	"github.com/mongodb/grip"
	"github.com/mongodb/grip/level"
	"github.com/mongodb/grip/send"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

var (
	logLevel string
	noColor  bool
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "ccsweep",
	Short:   "Benchmark sweeps across services, congestion-control algorithms and loads",
	Version: version,
	Long: `ccsweep runs every combination of service, TCP congestion-control
algorithm and load profile against a remote host. It starts and stops
services inside a container over SSH, switches the kernel's congestion
control between runs, captures benchmark output into a fixed directory
layout, and retries failed runs before moving on.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loggingSetup("ccsweep", logLevel)
	},
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand is provided, print help
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// loggingSetup sends structured logs to stderr so that progress output on
// stdout stays readable.
func loggingSetup(name, logLevel string) error {
	sender := send.MakeErrorLogger()
	sender.SetName(name)

	lvl := send.LevelInfo{Default: level.Info, Threshold: level.FromString(logLevel)}
	if err := sender.SetLevel(lvl); err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	return grip.SetSender(sender)
}

func init() {
	RootCmd.PersistentFlags().StringVar(&logLevel, "level", "info", "Log level (debug, info, notice, warning, error)")
	RootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(planCmd)
	RootCmd.AddCommand(validateCmd)
	RootCmd.AddCommand(ledgerCmd)
}
