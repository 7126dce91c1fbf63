package commands

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/exemplar/artifact"
	"github.com/teranos/exemplar/codegen"
	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/pipeline"
	"github.com/teranos/exemplar/validator"
)

// GenerateCmd runs the full pipeline for one project
var GenerateCmd = &cobra.Command{
	Use:   "generate <project>",
	Short: "Generate, validate and write a transformation",
	Long: `Analyze a project, ask the configured backend for an implementation, and
validate it. Rejected implementations are sent back with their violations
until one passes or generation.max_attempts is reached.

Nothing is written unless validation passes. Existing files in the output
directory are renamed to <name>.<timestamp>.bak, never overwritten.

Examples:
  exemplar generate ./employees
  exemplar generate ./employees -v       # Log each attempt`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	s, err := newSession(true)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	spinner, _ := pterm.DefaultSpinner.Start("Generating " + filepath.Base(args[0]))
	res, err := s.pipeline.Generate(ctx, args[0])
	if err != nil {
		spinner.Fail("Generation failed")
		var vf *codegen.ValidationFailure
		if errors.As(err, &vf) {
			printViolations(vf.Violations)
		}
		return err
	}
	spinner.Success("Generated " + res.Analysis.Project.Name)
	printResult(res)
	return nil
}

func printResult(res *pipeline.Result) {
	pterm.Info.Printfln("run %s: %d attempt(s)", res.RunID, res.Outcome.Attempts)
	for _, path := range res.Written.Written {
		pterm.Println(wroteLine(path))
	}

	backups := make([]string, 0, len(res.Written.Backups))
	for path := range res.Written.Backups {
		backups = append(backups, path)
	}
	sort.Strings(backups)
	for _, path := range backups {
		pterm.Printfln("  kept  %s", res.Written.Backups[path])
	}
	if res.Written.Commit != "" {
		pterm.Printfln("  commit %s", res.Written.Commit)
	}

	warnings := append(res.Outcome.Validation.Warnings(), res.Outcome.TestValidation.Warnings()...)
	if len(warnings) > 0 {
		pterm.Warning.Printfln("%d warnings in generated code", len(warnings))
		printViolations(warnings)
	}
}

// wroteLine describes a written file and how many earlier versions of it are
// kept next to it.
func wroteLine(path string) string {
	history, err := artifact.Backups(path)
	if err != nil || len(history) == 0 {
		return "  wrote " + path
	}
	return fmt.Sprintf("  wrote %s (%d earlier version(s), newest %s)",
		path, len(history), filepath.Base(history[len(history)-1]))
}

func printViolations(vs []validator.Violation) {
	data := pterm.TableData{{"Location", "Severity", "Rule", "Message"}}
	for _, v := range vs {
		data = append(data, []string{v.Location(), string(v.Severity), v.RuleID, v.Message})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
