package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "braid",
	Short: "Braid - Multi-task training and evaluation pipeline",
	Long: `Braid trains one shared model across a heterogeneous set of supervised
tasks (classification, regression, ranking) that differ in label cardinality,
loss function and decoding strategy.

Braid turns independently-defined tasks into one coherent training schedule
and one coherent evaluation pipeline: tasks register once, derive their
decoding and loss configuration, and train over a single interleaved
multi-task batch stream.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}
