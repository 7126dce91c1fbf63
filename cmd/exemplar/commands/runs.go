package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/exemplar/ai/tracker"
	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/logger"
)

// RunsCmd reports recorded runs and backend usage
var RunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent runs and backend usage",
	Long: `List recent generate runs and aggregate backend usage from the usage
database (database.path).

Examples:
  exemplar runs                       # Last 20 runs, usage for 7 days
  exemplar runs --project employees   # Runs of one project
  exemplar runs --since 24h`,
	RunE: runRuns,
}

var (
	runsProject string
	runsLimit   int
	runsSince   time.Duration
)

func init() {
	RunsCmd.Flags().StringVar(&runsProject, "project", "", "Only show runs of this project")
	RunsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to show")
	RunsCmd.Flags().DurationVar(&runsSince, "since", 7*24*time.Hour, "Usage window")
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()
	t := tracker.NewUsageTracker(database, logger.ComponentLogger("tracker"))

	runs, err := t.RecentRuns(ctx, runsProject, runsLimit)
	if err != nil {
		return err
	}
	pterm.DefaultSection.Println("Runs")
	if len(runs) == 0 {
		pterm.Info.Println("no runs recorded")
	} else {
		data := pterm.TableData{{"ID", "Project", "Started", "Status", "Attempts", "Patterns", "Unresolved"}}
		for _, r := range runs {
			status := r.Status
			if r.ErrorMessage != nil {
				status += ": " + truncate(*r.ErrorMessage, 48)
			}
			data = append(data, []string{
				r.ID[:min(8, len(r.ID))],
				r.Project,
				r.StartedAt.Local().Format(time.DateTime),
				status,
				fmt.Sprint(r.Attempts),
				fmt.Sprint(r.Patterns),
				fmt.Sprint(r.Unresolved),
			})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return errors.Wrap(err, "failed to render runs")
		}
	}

	since := time.Now().Add(-runsSince)
	stats, err := t.GetUsageStats(ctx, since)
	if err != nil {
		return err
	}
	pterm.DefaultSection.Printfln("Usage since %s", since.Local().Format(time.DateTime))
	pterm.Printfln("%d requests, %.0f%% successful, %d tokens, $%.4f",
		stats.TotalRequests, stats.SuccessRate*100, stats.TotalTokens, stats.TotalCost)

	breakdown, err := t.GetModelBreakdown(ctx, since)
	if err != nil {
		return err
	}
	if len(breakdown) == 0 {
		return nil
	}
	data := pterm.TableData{{"Model", "Provider", "Requests", "Tokens", "Cost", "Avg latency"}}
	for _, b := range breakdown {
		latency := "-"
		if b.AvgResponseTimeMs != nil {
			latency = fmt.Sprintf("%.0fms", *b.AvgResponseTimeMs)
		}
		data = append(data, []string{
			b.ModelName, b.ModelProvider,
			fmt.Sprint(b.RequestCount), fmt.Sprint(b.TotalTokens),
			fmt.Sprintf("$%.4f", b.TotalCost), latency,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
