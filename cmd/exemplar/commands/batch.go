package commands

import (
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/exemplar/errors"
)

// BatchCmd generates several projects concurrently
var BatchCmd = &cobra.Command{
	Use:   "batch <project>...",
	Short: "Generate several projects on a worker pool",
	Long: `Generate every listed project. Projects run concurrently, at most
batch.workers at a time, and fail independently.

Examples:
  exemplar batch ./projects/*
  EXEMPLAR_BATCH_WORKERS=2 exemplar batch ./a ./b ./c`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
	s, err := newSession(true)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	results := s.pipeline.RunBatch(ctx, args)

	data := pterm.TableData{{"Project", "Status", "Attempts", "Output"}}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			data = append(data, []string{r.Project, pterm.Red("failed"), "-", r.Err.Error()})
			continue
		}
		data = append(data, []string{
			r.Project,
			pterm.Green("ok"),
			pterm.Sprint(r.Result.Outcome.Attempts),
			r.Result.Written.Dir,
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	if failed > 0 {
		return errors.Newf("%d of %d projects failed", failed, len(results))
	}
	return nil
}
