package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel   string // Log verbosity level
	configFile string // Optional YAML/TOML file overriding flag defaults
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "epon-sim",
	Short: "Discrete-event simulator for the upstream channel of an EPON",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		logrus.SetLevel(level)
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file (YAML or TOML) with flag values")

	registerSimFlags(runCmd.Flags())
	registerOutputFlags(runCmd.Flags())
	runCmd.Flags().BoolP("verbose", "v", false, "Print every event and the report table of every DBA cycle")
	runCmd.Flags().String("results", "", "Write per-ONU statistics as JSON to this file")
	runCmd.Flags().String("trace-level", "none", "DBA decision trace: none, cycles, transitions")

	registerSimFlags(sweepCmd.Flags())
	registerOutputFlags(sweepCmd.Flags())
	sweepCmd.Flags().StringSlice("policies", nil, "DBA policies to sweep (default: all)")
	sweepCmd.Flags().Int("seeds", 3, "Number of consecutive seeds per policy, starting at --seed")
	sweepCmd.Flags().Int("parallel", 0, "Maximum concurrent runs (default: number of CPUs)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sweepCmd)
}
