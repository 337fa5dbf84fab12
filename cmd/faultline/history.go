package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/a-marczewski/faultline/internal/app"
	"github.com/a-marczewski/faultline/internal/history"
	"github.com/spf13/cobra"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List captured historical patterns",
}

var (
	patternsGroup    string
	patternsCategory string
	patternsLimit    int
)

func init() {
	patternsCmd.Flags().StringVarP(&patternsGroup, "group", "g", "", "Filter by equipment group name")
	patternsCmd.Flags().StringVarP(&patternsCategory, "category", "c", "", "Filter by failure category: mechanical, sealing, electrical, process, general")
	patternsCmd.Flags().IntVarP(&patternsLimit, "limit", "n", 20, "Maximum number of patterns")
}

func runPatternsCmd(a *app.App, cmd *cobra.Command, args []string) {
	patterns, err := a.Patterns.FindPatterns(cmd.Context(), history.Criteria{
		EquipmentGroup:  patternsGroup,
		FailureCategory: patternsCategory,
		Limit:           patternsLimit,
	})
	if err != nil {
		fail(a, "Failed to list patterns", err)
	}
	if len(patterns) == 0 {
		fmt.Println("No historical patterns found.")
		return
	}
	for _, p := range patterns {
		fmt.Printf("[%d] %s %s/%s/%s - %s\n", p.ID, p.FailureCategory,
			p.Equipment.Group, p.Equipment.Type, p.Equipment.Subtype, strings.Join(p.RootCauses, "; "))
		fmt.Printf("    symptoms: %s\n", strings.Join(p.Symptoms, ", "))
		fmt.Printf("    used %d time(s), success rate %.0f%%, last used %s\n",
			p.Frequency, p.SuccessRate*100, p.LastUsed.Format("2006-01-02 15:04"))
	}
}

var outcomeCmd = &cobra.Command{
	Use:   "outcome <pattern-id>",
	Short: "Record whether a historical pattern led to a successful resolution",
	Args:  cobra.ExactArgs(1),
}

var (
	outcomeSuccess    bool
	outcomeFailed     bool
	outcomeConfidence float64
	outcomeDuration   time.Duration
)

func init() {
	outcomeCmd.Flags().BoolVar(&outcomeSuccess, "success", false, "The investigation was resolved")
	outcomeCmd.Flags().BoolVar(&outcomeFailed, "failed", false, "The investigation was not resolved")
	outcomeCmd.Flags().Float64Var(&outcomeConfidence, "confidence", 0, "Final confidence (0..1)")
	outcomeCmd.Flags().DurationVar(&outcomeDuration, "resolution-time", 0, "Time taken to resolve, e.g. 36h")
	outcomeCmd.MarkFlagsMutuallyExclusive("success", "failed")
	outcomeCmd.MarkFlagsOneRequired("success", "failed")
}

func runOutcomeCmd(a *app.App, cmd *cobra.Command, args []string) {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fail(a, "Invalid pattern id", err)
	}
	p, err := a.History.RecordOutcome(cmd.Context(), id, history.Outcome{
		Successful:      outcomeSuccess,
		ResolutionTime:  outcomeDuration,
		FinalConfidence: outcomeConfidence,
	})
	if err != nil {
		fail(a, "Failed to record outcome", err)
	}
	fmt.Printf("✅ Pattern %d: used %d time(s), success rate %.0f%%\n", p.ID, p.Frequency, p.SuccessRate*100)
}
