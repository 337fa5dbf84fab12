package main

import (
	"fmt"

	"github.com/a-marczewski/faultline/internal/app"
	"github.com/a-marczewski/faultline/internal/workflow"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pipeline run statistics and store sizes",
	Long: `Show pipeline run statistics and store sizes. Stage timings are only
recorded when [metrics] enabled = true.`,
}

var statsJSON bool

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print statistics as JSON")
}

func runStatsCmd(a *app.App, cmd *cobra.Command, args []string) {
	m, err := a.Analytics.GetRunMetrics(cmd.Context())
	if err != nil {
		fail(a, "Failed to compute statistics", err)
	}
	if statsJSON {
		if err := printJSON(m); err != nil {
			fail(a, "Failed to encode statistics", err)
		}
		return
	}

	fmt.Println("=== faultline Statistics ===")
	fmt.Printf("Evidence library records: %d\n", m.Library.FailureModes)
	fmt.Printf("Historical patterns:      %d\n", m.Library.HistoricalPatterns)
	fmt.Printf("Pending proposals:        %d\n", m.Library.PendingProposals)
	fmt.Printf("Pending escalations:      %d\n", m.Library.PendingEscalations)

	if !a.Core.Config.MetricsEnabled {
		fmt.Println("\nRun metrics are disabled.")
	}
	if m.TotalRuns == 0 {
		return
	}
	fmt.Printf("\nRuns: %d across %d incident(s), %d failed\n", m.TotalRuns, m.Incidents, m.FailedRuns)
	fmt.Println("\nStage                        runs  degraded  skipped  failed  avg ms")
	for _, s := range m.Stages {
		fmt.Printf("%d. %-25s %5d %9d %8d %7d %7.1f\n",
			s.Stage, workflow.StageName(s.Stage), s.Total, s.Degraded, s.Skipped, s.Failed, s.AvgDurationMs)
	}
	if len(m.DailyRuns) > 0 {
		fmt.Println("\nRuns per day:")
		for _, p := range m.DailyRuns {
			fmt.Printf("  %s  %d\n", p.Date, p.Runs)
		}
	}
}
