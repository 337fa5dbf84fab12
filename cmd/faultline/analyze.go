package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/a-marczewski/faultline/internal/app"
	"github.com/a-marczewski/faultline/internal/workflow"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <request.json|->",
	Short: "Run the analysis pipeline for one incident",
	Long: `Run the nine-stage analysis pipeline on an incident request read from a
JSON file, or from stdin when the argument is "-".

Example request:
  {
    "incidentId": "INC-1042",
    "symptoms": ["high vibration at drive end bearing", "noise"],
    "equipmentGroupId": 1, "equipmentTypeId": 10,
    "equipmentGroup": "Rotating", "equipmentType": "Pump",
    "evidence": [{"fileName": "vib.csv", "parsedSummary": "1x dominant", "adequacyScore": 80}]
  }`,
	Args: cobra.ExactArgs(1),
}

var analyzeJSON bool

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the full result as JSON")
}

func runAnalyzeCmd(a *app.App, cmd *cobra.Command, args []string) {
	req, err := readRequest(args[0])
	if err != nil {
		fail(a, "Failed to read analysis request", err)
	}

	ctx := a.ContextWithLogger(cmd.Context(), zap.String("command", "analyze"), zap.String("request_file", args[0]))
	res, err := a.Orchestrator.Analyze(ctx, req)
	if err != nil {
		fail(a, fmt.Sprintf("Analysis stopped at stage %d", res.WorkflowStage), err)
	}
	a.Core.Logger.Debug("LLM usage", zap.Any("stats", a.AI.Stats.GetStats()))

	if analyzeJSON {
		if err := printJSON(res); err != nil {
			fail(a, "Failed to encode result", err)
		}
		return
	}
	printSummary(os.Stdout, res)
}

func readRequest(path string) (workflow.AnalyzeRequest, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return workflow.AnalyzeRequest{}, err
		}
		defer f.Close()
		r = f
	}

	var req workflow.AnalyzeRequest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return workflow.AnalyzeRequest{}, fmt.Errorf("invalid request JSON: %w", err)
	}
	return req, nil
}

func printSummary(w io.Writer, res workflow.AnalysisResult) {
	fmt.Fprintf(w, "Incident %s (run %s)\n", res.IncidentID, res.RunID)
	fmt.Fprintf(w, "Overall confidence: %d%% (evidence patterns %d%%)\n", res.OverallConfidence, res.EngineConfidence)
	if len(res.Degraded) > 0 {
		fmt.Fprintf(w, "Degraded sources: %s\n", strings.Join(res.Degraded, ", "))
	}

	fmt.Fprintln(w, "\nCandidate failure modes:")
	if len(res.Candidates) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for i, c := range res.Candidates {
		fmt.Fprintf(w, "  %d. %s (%d%%)\n     %s\n", i+1, c.Label, c.Confidence, c.Reasoning)
	}
	if len(res.Eliminated) > 0 {
		fmt.Fprintln(w, "\nEliminated:")
		for _, c := range res.Eliminated {
			fmt.Fprintf(w, "  - %s: %s\n", c.Label, c.Reasoning)
		}
	}

	if len(res.Recommendations) > 0 {
		fmt.Fprintf(w, "\nEvidence pattern matches (digest %s):\n", res.DeterminismDigest)
		for _, r := range res.Recommendations {
			fmt.Fprintf(w, "  - %s (%d%%)\n", r.SpecificFault, r.Confidence)
		}
	}
	if res.Narrative.Summary != "" {
		fmt.Fprintf(w, "\nNarrative (%s): %s\n", res.Narrative.Source, res.Narrative.Summary)
	}

	if len(res.RecommendedActions) > 0 {
		fmt.Fprintln(w, "\nRecommended actions:")
		for _, act := range res.RecommendedActions {
			fmt.Fprintf(w, "  [%s] %s (%s)\n", act.Priority, act.Action, act.Timeframe)
		}
	}
	if len(res.EvidenceGaps) > 0 {
		fmt.Fprintln(w, "\nEvidence gaps:")
		for _, g := range res.EvidenceGaps {
			fmt.Fprintf(w, "  [%s] %s\n", g.Priority, g.Description)
		}
	}
	for _, insight := range res.HistoricalSupport.Insights {
		fmt.Fprintf(w, "History: %s\n", insight)
	}

	if res.Fallback != nil {
		fmt.Fprintf(w, "\nFallback: %s - %s\n", res.Fallback.State, res.Fallback.Reason)
		for _, step := range res.Fallback.RequiredActions {
			fmt.Fprintf(w, "  - %s\n", step)
		}
		for _, review := range res.Fallback.Hypotheses {
			fmt.Fprintf(w, "Hypothesis %q:\n", review.Hypothesis.FailureMode)
			for _, step := range review.NextSteps {
				fmt.Fprintf(w, "    %s\n", step)
			}
		}
		if res.Fallback.Ticket != nil {
			fmt.Fprintf(w, "SME escalation %s (%s) for: %s\n",
				res.Fallback.Ticket.ID, res.Fallback.Ticket.Urgency, strings.Join(res.Fallback.Expertise, ", "))
		}
	}
	if len(res.Proposals) > 0 {
		fmt.Fprintf(w, "\n%d library update proposal(s) pending review\n", len(res.Proposals))
	}
	if res.CapturedPatternID != 0 {
		fmt.Fprintf(w, "Captured as historical pattern %d\n", res.CapturedPatternID)
	}
}
