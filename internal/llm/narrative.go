package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// UnavailableSummary is the narrative text used when no model output could
// be obtained or read.
const UnavailableSummary = "AI analysis unavailable"

// NarrativeSource records how a narrative was obtained.
type NarrativeSource string

const (
	SourceModel       NarrativeSource = "model"
	SourceLegacy      NarrativeSource = "legacy"
	SourceUnavailable NarrativeSource = "unavailable"
)

// Narrative is the advisory explanation attached to recommendations. It never
// influences numeric results.
type Narrative struct {
	Summary            string          `json:"summary"`
	ProbableFault      string          `json:"probableFault,omitempty"`
	Confidence         int             `json:"confidence,omitempty"`
	RecommendedActions []string        `json:"recommendedActions,omitempty"`
	Source             NarrativeSource `json:"source"`
}

// narrativeSchema is the exact object the model is asked to return.
type narrativeSchema struct {
	Summary            string   `json:"summary"`
	ProbableFault      string   `json:"probable_fault"`
	Confidence         *int     `json:"confidence"`
	RecommendedActions []string `json:"recommended_actions"`
}

// NarrativeSchemaHint is appended to prompts to request the strict format.
const NarrativeSchemaHint = `Respond with a single JSON object and nothing else:
{"summary": string, "probable_fault": string, "confidence": integer 0-100, "recommended_actions": [string]}`

// UnavailableNarrative is the typed fallback value.
func UnavailableNarrative() Narrative {
	return Narrative{Summary: UnavailableSummary, Source: SourceUnavailable}
}

// DecodeNarrative strictly decodes model output. Unknown fields, trailing
// data, a missing summary or an out-of-range confidence are errors. A single
// surrounding markdown code fence is tolerated.
func DecodeNarrative(raw string) (Narrative, error) {
	body := stripCodeFence(strings.TrimSpace(raw))
	if body == "" {
		return Narrative{}, errors.New("empty model output")
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()

	var wire narrativeSchema
	if err := dec.Decode(&wire); err != nil {
		return Narrative{}, fmt.Errorf("decode narrative: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Narrative{}, errors.New("decode narrative: trailing data after object")
	}
	if strings.TrimSpace(wire.Summary) == "" {
		return Narrative{}, errors.New("decode narrative: summary is required")
	}

	n := Narrative{
		Summary:            strings.TrimSpace(wire.Summary),
		ProbableFault:      strings.TrimSpace(wire.ProbableFault),
		RecommendedActions: wire.RecommendedActions,
		Source:             SourceModel,
	}
	if wire.Confidence != nil {
		if *wire.Confidence < 0 || *wire.Confidence > 100 {
			return Narrative{}, fmt.Errorf("decode narrative: confidence %d out of range", *wire.Confidence)
		}
		n.Confidence = *wire.Confidence
	}
	return n, nil
}

// ResolveNarrative returns the strict decode when it succeeds, otherwise the
// legacy free-text reading, otherwise the unavailable fallback. The strict
// decode error is returned alongside any non-model result for logging.
func ResolveNarrative(raw string) (Narrative, error) {
	n, err := DecodeNarrative(raw)
	if err == nil {
		return n, nil
	}
	if legacy, ok := legacyNarrative(raw); ok {
		return legacy, err
	}
	return UnavailableNarrative(), err
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
