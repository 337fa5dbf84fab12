package workflow

import (
	"github.com/a-marczewski/faultline/internal/fallback"
	"github.com/a-marczewski/faultline/internal/knowledge"
	"github.com/a-marczewski/faultline/internal/llm"
	"github.com/a-marczewski/faultline/internal/proposal"
	"github.com/a-marczewski/faultline/internal/recommend"
	"github.com/a-marczewski/faultline/internal/scoring"
)

// Evidence availability statuses reported by the investigator.
const (
	StatusAvailable    = "Available"
	StatusNotAvailable = "Not Available"
	StatusWillUpload   = "Will Upload"
	StatusUnknown      = "Unknown"

	CriticalityCritical = "Critical"
)

// EvidenceItem is one expected piece of evidence and its collection status.
type EvidenceItem struct {
	Type        string `json:"type"`
	Status      string `json:"status"`
	Criticality string `json:"criticality,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// AnalyzeRequest is the inbound request for one incident.
type AnalyzeRequest struct {
	IncidentID         string                      `json:"incidentId"`
	Symptoms           []string                    `json:"symptoms"`
	EquipmentGroupID   *int64                      `json:"equipmentGroupId,omitempty"`
	EquipmentTypeID    *int64                      `json:"equipmentTypeId,omitempty"`
	EquipmentSubtypeID *int64                      `json:"equipmentSubtypeId,omitempty"`
	RiskRankingID      *int64                      `json:"riskRankingId,omitempty"`
	EquipmentGroup     string                      `json:"equipmentGroup,omitempty"`
	EquipmentType      string                      `json:"equipmentType,omitempty"`
	EquipmentSubtype   string                      `json:"equipmentSubtype,omitempty"`
	Evidence           []recommend.EvidenceSummary `json:"evidence"`
	EvidenceItems      []EvidenceItem              `json:"evidenceItems,omitempty"`
	// Hypotheses are investigator-proposed failure modes. Library records
	// they name are scored even without a keyword match.
	Hypotheses         []fallback.Hypothesis       `json:"hypotheses,omitempty"`
}

// Taxonomy returns the request's equipment classification.
func (r AnalyzeRequest) Taxonomy() knowledge.Taxonomy {
	return knowledge.Taxonomy{
		GroupID:       r.EquipmentGroupID,
		TypeID:        r.EquipmentTypeID,
		SubtypeID:     r.EquipmentSubtypeID,
		RiskRankingID: r.RiskRankingID,
	}
}

// EvidenceValidation is the stage 4 outcome.
type EvidenceValidation struct {
	CanProceed          bool     `json:"canProceed"`
	Ratio               float64  `json:"evidenceRatio"`
	Total               int      `json:"total"`
	Available           int      `json:"available"`
	CriticalUnavailable int      `json:"criticalUnavailable"`
	CriticalGaps        []string `json:"criticalGaps"`
}

// RecommendedAction is one prioritized next step for the investigator.
type RecommendedAction struct {
	Priority  string   `json:"priority"`
	Action    string   `json:"action"`
	Timeframe string   `json:"timeframe"`
	Resources []string `json:"resources"`
}

// EvidenceGap is evidence the analysis needs but has not seen.
type EvidenceGap struct {
	EvidenceType string `json:"evidenceType"`
	Description  string `json:"description"`
	Priority     string `json:"priority"`
}

// HistoricalSupport summarizes the history contribution.
type HistoricalSupport struct {
	SimilarPatterns int      `json:"similarPatterns"`
	ConfidenceBoost float64  `json:"confidenceBoost"`
	Insights        []string `json:"learningInsights"`
}

// AnalysisResult is the terminal output of a run. It is never modified after
// Analyze returns it.
type AnalysisResult struct {
	RunID              string                         `json:"runId"`
	IncidentID         string                         `json:"incidentId"`
	WorkflowStage      int                            `json:"workflowStage"`
	Candidates         []scoring.CandidateFailureMode `json:"candidates"`
	Eliminated         []scoring.CandidateFailureMode `json:"eliminated"`
	OverallConfidence  int                            `json:"overallConfidence"`
	RecommendedActions []RecommendedAction            `json:"recommendedActions"`
	EvidenceGaps       []EvidenceGap                  `json:"evidenceGaps"`
	DeterminismDigest  string                         `json:"determinismDigest"`
	Recommendations    []recommend.Recommendation     `json:"recommendations"`
	EngineConfidence   int                            `json:"engineConfidence"`
	Narrative          llm.Narrative                  `json:"narrative"`
	EvidenceValidation EvidenceValidation             `json:"evidenceValidation"`
	HistoricalSupport  HistoricalSupport              `json:"historicalSupport"`
	Fallback           *fallback.Assessment           `json:"fallback,omitempty"`
	Proposals          []proposal.Proposal            `json:"proposals"`
	CapturedPatternID  int64                          `json:"capturedPatternId,omitempty"`
	// FallbackApplied marks a run that continued past a degraded source.
	// Fallback is set whenever the low-confidence handler ran.
	FallbackApplied    bool                           `json:"fallbackApplied"`
	Degraded           []string                       `json:"degraded,omitempty"`
}
