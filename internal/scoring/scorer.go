package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/a-marczewski/faultline/internal/knowledge"
	"go.uber.org/zap"
)

const (
	baseConfidence = 50
	groupBonus     = 20
	typeBonus      = 15
	subtypeBonus   = 10
	riskBonus      = 5

	// EliminationThreshold prunes candidates scoring below it.
	EliminationThreshold = 30
)

// CandidateFailureMode is a scored evidence library record. Values are never
// mutated after Score returns them.
type CandidateFailureMode struct {
	ID               int64    `json:"id"`
	Label            string   `json:"label"`
	FailureCode      string   `json:"failureCode,omitempty"`
	Confidence       int      `json:"confidence"`
	Reasoning        string   `json:"reasoning"`
	RequiredEvidence []string `json:"requiredEvidence"`
	RootCause        string   `json:"rootCause,omitempty"`
	Eliminated       bool     `json:"eliminated"`
}

// Result partitions scored records. Every input record lands in exactly one
// of the two lists.
type Result struct {
	Candidates []CandidateFailureMode `json:"candidates"`
	Eliminated []CandidateFailureMode `json:"eliminated"`
}

// Scorer computes confidence and elimination for candidate records.
type Scorer struct {
	logger *zap.Logger
}

// NewScorer creates a scorer. A nil logger is replaced by a no-op one.
func NewScorer(logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{logger: logger}
}

// Score rates every record against the incident taxonomy and symptoms. Both
// output lists are ordered by confidence descending, ties in input order.
func (s *Scorer) Score(records []knowledge.FailureModeRecord, tax knowledge.Taxonomy, symptoms []string) Result {
	symptomText := strings.ToLower(strings.Join(symptoms, " "))

	result := Result{
		Candidates: []CandidateFailureMode{},
		Eliminated: []CandidateFailureMode{},
	}
	for _, r := range records {
		c := s.scoreRecord(r, tax, symptomText)
		if c.Eliminated {
			result.Eliminated = append(result.Eliminated, c)
		} else {
			result.Candidates = append(result.Candidates, c)
		}
	}

	sortByConfidence(result.Candidates)
	sortByConfidence(result.Eliminated)
	return result
}

func (s *Scorer) scoreRecord(r knowledge.FailureModeRecord, tax knowledge.Taxonomy, symptomText string) CandidateFailureMode {
	score := baseConfidence
	var reasons []string

	var matched []string
	if exactMatch(tax.GroupID, r.EquipmentGroupID) {
		score += groupBonus
		matched = append(matched, "group")
	}
	if exactMatch(tax.TypeID, r.EquipmentTypeID) {
		score += typeBonus
		matched = append(matched, "type")
	}
	if exactMatch(tax.SubtypeID, r.EquipmentSubtypeID) {
		score += subtypeBonus
		matched = append(matched, "subtype")
	}
	if exactMatch(tax.RiskRankingID, r.RiskRankingID) {
		score += riskBonus
		matched = append(matched, "risk ranking")
	}
	if len(matched) > 0 {
		reasons = append(reasons, "taxonomy match: "+strings.Join(matched, ", "))
	}

	if strings.TrimSpace(r.ConfidenceHint) != "" {
		hint, ok := ParseConfidenceHint(r.ConfidenceHint)
		if !ok {
			s.logger.Debug("Unparseable confidence hint, using default",
				zap.Int64("failure_mode_id", r.ID),
				zap.String("hint", r.ConfidenceHint),
				zap.Int("default", DefaultHintConfidence),
			)
		}
		score = int(math.Round(float64(score+hint) / 2))
		reasons = append(reasons, fmt.Sprintf("library confidence %q read as %d", r.ConfidenceHint, hint))
	}

	score = clamp(score)

	c := CandidateFailureMode{
		ID:               r.ID,
		Label:            r.FailureMode,
		FailureCode:      r.FailureCode,
		Confidence:       score,
		RequiredEvidence: r.RequiredEvidence(),
		RootCause:        r.PrimaryRootCause,
	}
	if c.RequiredEvidence == nil {
		c.RequiredEvidence = []string{}
	}

	if cond, ok := matchElimination(r.EliminationCondition, symptomText); ok {
		c.Eliminated = true
		reason := fmt.Sprintf("eliminated: condition %q matches incident symptoms", cond)
		if r.EliminationRationale != "" {
			reason += " (" + r.EliminationRationale + ")"
		}
		reasons = append(reasons, reason)
	} else if score < EliminationThreshold {
		c.Eliminated = true
		reasons = append(reasons, fmt.Sprintf("eliminated: confidence %d below %d", score, EliminationThreshold))
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "base confidence, no taxonomy match or library hint")
	}
	c.Reasoning = strings.Join(reasons, "; ")
	return c
}

// matchElimination returns the first declared condition found in the symptom
// text. Conditions of three characters or fewer are ignored.
func matchElimination(condition, symptomText string) (string, bool) {
	if condition == "" || symptomText == "" {
		return "", false
	}
	for _, part := range strings.FieldsFunc(strings.ToLower(condition), func(c rune) bool { return c == ',' || c == ';' }) {
		part = strings.TrimSpace(part)
		if len(part) > 3 && strings.Contains(symptomText, part) {
			return part, true
		}
	}
	return "", false
}

func exactMatch(filter, record *int64) bool {
	return filter != nil && record != nil && *filter == *record
}

func sortByConfidence(list []CandidateFailureMode) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Confidence > list[j].Confidence
	})
}
