package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/exemplar/cmd/exemplar/commands"
	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/logger"
)

var rootCmd = &cobra.Command{
	Use:   "exemplar",
	Short: "exemplar - synthesize data transformations from examples",
	Long: `exemplar - synthesize data transformations from paired examples.

Given a handful of input/output examples, exemplar infers both schemas,
detects how every output field derives from the input, writes a
specification, and has a code generation backend implement it. Generated
code is checked against structural constraints before anything is written.

Available commands:
  analyze  - Infer schemas and field patterns for a project
  generate - Run the full pipeline and write validated code
  batch    - Generate several projects on a worker pool
  validate - Check existing Go files against the constraints
  runs     - Show recent runs and backend usage
  am       - Manage exemplar configuration ("I am")
  version  - Show version information

Examples:
  exemplar analyze ./employees          # Show schemas and patterns
  exemplar analyze ./employees --watch  # Re-analyze when examples change
  exemplar generate ./employees         # Generate, validate and write
  exemplar batch ./projects/*           # Generate every project
  exemplar validate generated/*.go      # Re-check generated code`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")

	rootCmd.AddCommand(commands.AnalyzeCmd)
	rootCmd.AddCommand(commands.GenerateCmd)
	rootCmd.AddCommand(commands.BatchCmd)
	rootCmd.AddCommand(commands.ValidateCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	err := rootCmd.Execute()
	logger.Cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		for _, h := range errors.GetAllHints(err) {
			fmt.Fprintln(os.Stderr, "Hint:", h)
		}
		os.Exit(1)
	}
}
