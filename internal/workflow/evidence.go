package workflow

import (
	"fmt"
	"strings"

	"github.com/a-marczewski/faultline/internal/recommend"
	"github.com/a-marczewski/faultline/internal/scoring"
)

// ValidateEvidence checks evidence availability against threshold. Will
// Upload counts as available. When no items are reported the ratio falls
// back to the mean adequacy score of the supplied evidence.
func ValidateEvidence(items []EvidenceItem, evidence []recommend.EvidenceSummary, threshold float64) (EvidenceValidation, error) {
	v := EvidenceValidation{CriticalGaps: []string{}}

	for _, item := range items {
		critical := strings.EqualFold(item.Criticality, CriticalityCritical)
		v.Total++
		switch item.Status {
		case StatusAvailable, StatusWillUpload:
			v.Available++
		case StatusNotAvailable:
			if critical {
				v.CriticalUnavailable++
				reason := item.Reason
				if reason == "" {
					reason = "No reason provided"
				}
				v.CriticalGaps = append(v.CriticalGaps, fmt.Sprintf("Critical evidence unavailable: %s - %s", item.Type, reason))
			}
		case StatusUnknown, "":
			if critical {
				v.CriticalGaps = append(v.CriticalGaps, "Critical evidence status unknown: "+item.Type)
			}
		default:
			return EvidenceValidation{}, fmt.Errorf("%w: evidence %q has unknown status %q", ErrInvalidRequest, item.Type, item.Status)
		}
	}

	switch {
	case v.Total > 0:
		v.Ratio = float64(v.Available) / float64(v.Total)
	case len(evidence) > 0:
		sum := 0
		for _, e := range evidence {
			sum += max(0, min(100, e.AdequacyScore))
		}
		v.Ratio = float64(sum) / float64(len(evidence)) / 100
	}

	v.CanProceed = v.Ratio >= threshold && v.CriticalUnavailable == 0
	return v, nil
}

// recommendedActions prioritizes next steps from the scored candidates.
func recommendedActions(candidates []scoring.CandidateFailureMode) []RecommendedAction {
	if len(candidates) == 0 {
		return []RecommendedAction{{
			Priority:  "High",
			Action:    "Expand evidence collection - no clear failure modes identified",
			Timeframe: "Immediate",
			Resources: []string{"Additional investigation", "Expert consultation"},
		}}
	}

	var high, medium []string
	for _, c := range candidates {
		switch {
		case c.Confidence >= 75:
			high = append(high, c.Label)
		case c.Confidence >= 50:
			medium = append(medium, c.Label)
		}
	}

	actions := []RecommendedAction{}
	if len(high) > 0 {
		actions = append(actions, RecommendedAction{
			Priority:  "Critical",
			Action:    "Focus on high-confidence failure modes: " + strings.Join(high, ", "),
			Timeframe: "Immediate",
			Resources: []string{"Root cause validation", "Corrective action planning"},
		})
	}
	if len(medium) > 0 {
		actions = append(actions, RecommendedAction{
			Priority:  "High",
			Action:    "Collect additional evidence for: " + strings.Join(medium, ", "),
			Timeframe: "24-48 hours",
			Resources: []string{"Data collection team", "Trend analysis tools"},
		})
	}
	return actions
}

// evidenceGaps lists critical stage 4 gaps, then the required evidence of
// candidates below 70 that no supplied evidence mentions.
func evidenceGaps(validation EvidenceValidation, candidates []scoring.CandidateFailureMode, evidence []recommend.EvidenceSummary) []EvidenceGap {
	gaps := []EvidenceGap{}
	for _, g := range validation.CriticalGaps {
		gaps = append(gaps, EvidenceGap{EvidenceType: "critical", Description: g, Priority: "Critical"})
	}

	var corpus strings.Builder
	for _, e := range evidence {
		corpus.WriteString(strings.ToLower(e.FileName))
		corpus.WriteByte(' ')
		corpus.WriteString(strings.ToLower(e.Summary))
		corpus.WriteByte(' ')
	}
	seen := corpus.String()

	listed := make(map[string]struct{})
	for _, c := range candidates {
		if c.Confidence >= 70 {
			continue
		}
		priority := "Medium"
		if c.Confidence > 50 {
			priority = "High"
		}
		for _, req := range c.RequiredEvidence {
			key := strings.ToLower(req)
			if strings.Contains(seen, key) {
				continue
			}
			if _, dup := listed[key]; dup {
				continue
			}
			listed[key] = struct{}{}
			gaps = append(gaps, EvidenceGap{
				EvidenceType: req,
				Description:  fmt.Sprintf("Missing evidence for %s: %s", c.Label, req),
				Priority:     priority,
			})
		}
	}
	return gaps
}
