package fallback

// GuidedStep is one step of the human reasoning prompt set.
type GuidedStep struct {
	Step           string   `json:"step"`
	Guidance       string   `json:"guidance"`
	Examples       []string `json:"examples"`
	RequiredInputs []string `json:"requiredInputs"`
}

// Hypothesis is an investigator-supplied failure hypothesis.
type Hypothesis struct {
	FailureMode     string   `json:"failureMode"`
	Reasoning       string   `json:"reasoning"`
	EvidenceSupport []string `json:"evidenceSupport"`
	Confidence      int      `json:"confidence"`
	SubmittedBy     string   `json:"submittedBy"`
}

// HypothesisReview pairs a submitted hypothesis with the steps that
// validate it.
type HypothesisReview struct {
	Hypothesis Hypothesis `json:"hypothesis"`
	NextSteps  []string   `json:"nextSteps"`
}

// GuidedReasoningSteps returns the four-step prompt set, in order.
func GuidedReasoningSteps() []GuidedStep {
	return []GuidedStep{
		{
			Step:           "1. Define Primary Failure Mode",
			Guidance:       "Identify the main failure that occurred based on observed symptoms",
			Examples:       []string{"Equipment stopped unexpectedly", "Performance degraded", "Safety system activated"},
			RequiredInputs: []string{"Primary failure description", "Observable symptoms"},
		},
		{
			Step:           "2. Identify Contributing Factors",
			Guidance:       "List conditions that may have contributed to the primary failure",
			Examples:       []string{"Operating conditions", "Maintenance history", "Environmental factors"},
			RequiredInputs: []string{"Contributing factor list", "Supporting evidence"},
		},
		{
			Step:           "3. Trace Root Causes",
			Guidance:       "Work backwards from failure to identify underlying root causes",
			Examples:       []string{"Design inadequacy", "Procedure failure", "Human error"},
			RequiredInputs: []string{"Root cause hypotheses", "Validation evidence"},
		},
		{
			Step:           "4. Validate Logic Chain",
			Guidance:       "Ensure logical connection between root causes and observed failure",
			Examples:       []string{"Cause-effect relationships", "Timeline consistency", "Physical evidence"},
			RequiredInputs: []string{"Logic validation", "Evidence correlation"},
		},
	}
}
