package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/example"
	"github.com/teranos/exemplar/internal/value"
	"github.com/teranos/exemplar/logger"
	"github.com/teranos/exemplar/pattern"
	"github.com/teranos/exemplar/pipeline"
	"github.com/teranos/exemplar/schema"
	"github.com/teranos/exemplar/specification"
)

// AnalyzeCmd infers schemas and patterns without generating code
var AnalyzeCmd = &cobra.Command{
	Use:   "analyze <project>",
	Short: "Infer schemas and field patterns for a project",
	Long: `Load a project's examples, infer input and output schemas, and detect how
every output field derives from the input.

<project> is a directory holding exemplar.toml, or the descriptor itself.

Examples:
  exemplar analyze ./employees              # Tables of schemas and patterns
  exemplar analyze ./employees --json       # Specification as JSON
  exemplar analyze ./employees --markdown   # Specification as sent to the backend
  exemplar analyze ./employees --watch      # Re-analyze on every change`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var (
	analyzeJSON     bool
	analyzeMarkdown bool
	analyzeWatch    bool
)

func init() {
	AnalyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the specification as JSON")
	AnalyzeCmd.Flags().BoolVar(&analyzeMarkdown, "markdown", false, "Print the rendered specification")
	AnalyzeCmd.Flags().BoolVarP(&analyzeWatch, "watch", "w", false, "Re-analyze when the descriptor, examples or collaborator change")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	s, err := newSession(false)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	analyze := func() error {
		a, err := s.pipeline.Analyze(ctx, args[0])
		if err != nil {
			return err
		}
		return printAnalysis(a)
	}

	if !analyzeWatch {
		return analyze()
	}

	paths, err := watchPaths(args[0], nil)
	if err != nil {
		return err
	}
	if err := analyze(); err != nil {
		reportError(err)
	}
	pterm.Info.Printfln("Watching %d files, Ctrl-C to stop", len(paths))
	return watchProject(ctx, args[0], paths, logger.ComponentLogger("watch"), func() {
		pterm.Println()
		pterm.Info.Println("Change detected, re-analyzing")
		if err := analyze(); err != nil {
			reportError(err)
		}
	})
}

// watchProject calls onChange after every change to the watched files. The
// descriptor is reloaded after each change and the watch restarts when the
// set of example or collaborator files differs.
func watchProject(ctx context.Context, project string, paths []string, log *zap.SugaredLogger, onChange func()) error {
	for {
		wctx, cancel := context.WithCancel(ctx)
		var next []string
		err := example.Watch(wctx, paths, example.DefaultDebounce, log, func() {
			onChange()
			updated, err := watchPaths(project, paths)
			if err != nil {
				log.Warnw("keeping previous watch set", logger.FieldError, err)
				return
			}
			if !slices.Equal(updated, paths) {
				next = updated
				cancel()
			}
		})
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		if ctx.Err() != nil || next == nil {
			return nil
		}
		log.Infow("watch set changed", logger.FieldCount, len(next))
		pterm.Info.Printfln("Watching %d files", len(next))
		paths = next
	}
}

// watchPaths loads the project descriptor and returns its watch set sorted.
// When the descriptor cannot be loaded and prev is non-nil, prev is returned
// together with the error.
func watchPaths(project string, prev []string) ([]string, error) {
	proj, err := example.LoadProject(project)
	if err != nil {
		return prev, err
	}
	paths := proj.WatchPaths()
	sort.Strings(paths)
	return slices.Compact(paths), nil
}

func reportError(err error) {
	pterm.Error.Println(err.Error())
	for _, h := range errors.GetAllHints(err) {
		pterm.Info.Println(h)
	}
}

func printAnalysis(a *pipeline.Analysis) error {
	switch {
	case analyzeJSON:
		data, err := json.MarshalIndent(analysisJSON(a), "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to encode analysis")
		}
		fmt.Println(string(data))
		return nil
	case analyzeMarkdown:
		fmt.Print(a.Specification.Render())
		return nil
	}

	pterm.DefaultSection.Printfln("%s: %d examples", a.Project.Name, len(a.Examples))
	for _, err := range a.Skipped {
		pterm.Warning.Printfln("skipped: %v", err)
	}

	pterm.DefaultSection.WithLevel(2).Println("Input schema")
	if err := schemaTable(a.InputSchema); err != nil {
		return err
	}
	pterm.DefaultSection.WithLevel(2).Println("Output schema")
	if err := schemaTable(a.OutputSchema); err != nil {
		return err
	}
	pterm.DefaultSection.WithLevel(2).Println("Patterns")
	if err := patternTable(a.Patterns); err != nil {
		return err
	}

	for _, w := range a.Patterns.Warnings {
		pterm.Warning.Println(w.Error())
	}
	for _, w := range a.Specification.Warnings {
		pterm.Warning.Println(w)
	}
	if n := len(a.Specification.Unresolved); n > 0 {
		pterm.Warning.Printfln("%d fields need review before generation can cover them", n)
	}
	return nil
}

func schemaTable(s *schema.Schema) error {
	data := pterm.TableData{{"Path", "Kind", "Nullable", "Samples"}}
	for _, f := range s.Fields {
		samples := make([]string, len(f.Samples))
		for i, v := range f.Samples {
			samples[i] = value.Format(v)
		}
		data = append(data, []string{f.Path, string(f.Kind), fmt.Sprint(f.Nullable), truncate(strings.Join(samples, ", "), 60)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func patternTable(r *pattern.Result) error {
	data := pterm.TableData{{"Target", "Kind", "Sources", "Confidence", "Evidence", "Flags"}}
	for _, p := range r.Patterns {
		var flags []string
		if p.NeedsReview {
			flags = append(flags, specification.NeedsReview)
		}
		if p.Ambiguous {
			flags = append(flags, "ambiguous")
		}
		flags = append(flags, p.Notes...)
		data = append(data, []string{
			p.TargetPath,
			string(p.Kind),
			strings.Join(p.SourcePaths, ", "),
			confidenceStyle(p.Confidence).Sprint(p.Confidence),
			fmt.Sprintf("%d/%d", p.Confirmed, p.Observed),
			strings.Join(flags, " "),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func confidenceStyle(c pattern.Confidence) *pterm.Style {
	switch c {
	case pattern.High:
		return pterm.NewStyle(pterm.FgGreen)
	case pattern.Medium:
		return pterm.NewStyle(pterm.FgYellow)
	default:
		return pterm.NewStyle(pterm.FgRed)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

type analysisOutput struct {
	Project       string                       `json:"project"`
	Examples      []string                     `json:"examples"`
	Skipped       []string                     `json:"skipped,omitempty"`
	Ambiguities   []string                     `json:"ambiguities,omitempty"`
	Specification *specification.Specification `json:"specification"`
}

func analysisJSON(a *pipeline.Analysis) analysisOutput {
	out := analysisOutput{Project: a.Project.Name, Specification: a.Specification}
	for _, ex := range a.Examples {
		out.Examples = append(out.Examples, ex.ID)
	}
	for _, err := range a.Skipped {
		out.Skipped = append(out.Skipped, err.Error())
	}
	for _, w := range a.Patterns.Warnings {
		out.Ambiguities = append(out.Ambiguities, w.Error())
	}
	return out
}
