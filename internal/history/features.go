package history

import (
	"strings"
	"time"
)

const maxSymptomKeywords = 10

// Features are the parts of an incident compared against patterns.
// Patterns captured from IncidentID itself are never matched.
type Features struct {
	IncidentID string
	Symptoms   []string
	Equipment  EquipmentContext
	Category   string
}

// NewFeatures extracts matching features from symptom text and equipment names.
func NewFeatures(incidentID string, symptoms []string, equipment EquipmentContext) Features {
	keywords := ExtractSymptoms(symptoms...)
	return Features{
		IncidentID: incidentID,
		Symptoms:   keywords,
		Equipment:  equipment,
		Category:   Categorize(keywords, nil),
	}
}

// ExtractSymptoms lower-cases texts, keeps whitespace-separated words longer
// than three characters and returns the first ten distinct ones.
func ExtractSymptoms(texts ...string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, text := range texts {
		for _, word := range strings.Fields(strings.ToLower(text)) {
			if len([]rune(word)) <= 3 {
				continue
			}
			if _, dup := seen[word]; dup {
				continue
			}
			seen[word] = struct{}{}
			out = append(out, word)
			if len(out) == maxSymptomKeywords {
				return out
			}
		}
	}
	return out
}

// Categorize infers a failure category from symptoms and root causes. The
// first matching rule wins.
func Categorize(symptoms, rootCauses []string) string {
	text := strings.ToLower(strings.Join(append(append([]string{}, symptoms...), rootCauses...), " "))
	switch {
	case containsAny(text, "vibrat", "bearing", "rotat"):
		return CategoryMechanical
	case containsAny(text, "leak", "seal", "gasket"):
		return CategorySealing
	case containsAny(text, "electric", "motor", "power"):
		return CategoryElectrical
	case containsAny(text, "pressure", "temperature", "flow"):
		return CategoryProcess
	default:
		return CategoryGeneral
	}
}

func containsAny(text string, subs ...string) bool {
	for _, s := range subs {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// CaptureInput describes a completed investigation to record as a pattern.
type CaptureInput struct {
	IncidentID   string
	Symptoms     []string
	Equipment    EquipmentContext
	RootCauses   []string
	EvidenceUsed []string
	Confidence   float64
	Resolution   string
}

// BuildPattern turns a completed investigation into a new pattern with
// frequency 1 and success rate 1.
func BuildPattern(in CaptureInput, now time.Time) HistoricalPattern {
	symptoms := ExtractSymptoms(in.Symptoms...)
	equipment := in.Equipment
	if equipment.Group == "" {
		equipment.Group = "Unknown"
	}
	if equipment.Type == "" {
		equipment.Type = "Unknown"
	}
	if equipment.Subtype == "" {
		equipment.Subtype = "Unknown"
	}
	resolution := in.Resolution
	if resolution == "" {
		resolution = "Unknown"
	}

	return HistoricalPattern{
		IncidentID:        in.IncidentID,
		Symptoms:          symptoms,
		Equipment:         equipment,
		RootCauses:        nonNil(in.RootCauses),
		EvidenceUsed:      nonNil(in.EvidenceUsed),
		OutcomeConfidence: in.Confidence,
		Resolution:        resolution,
		FailureCategory:   Categorize(symptoms, in.RootCauses),
		Frequency:         1,
		SuccessRate:       1.0,
		LastUsed:          now,
		CreatedAt:         now,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
