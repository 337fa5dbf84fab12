package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/a-marczewski/faultline/internal/llm"
	"github.com/a-marczewski/faultline/internal/scoring"
	"go.uber.org/zap"
)

const (
	// Method names the analysis in reports and audit trails.
	Method = "deterministic-pattern-matching"

	patternHitScore         = 20
	vibrationThreshold      = 30
	genericConfidence       = 60
	genericFaultID          = "vibration-analysis-required"
	defaultNarrativeTimeout = 20 * time.Second
)

// Recommendation is one matched fault signature.
type Recommendation struct {
	FaultID            string   `json:"faultId"`
	SpecificFault      string   `json:"specificFault"`
	FailureType        string   `json:"failureType,omitempty"`
	Confidence         int      `json:"confidence"`
	EvidenceSupport    []string `json:"evidenceSupport"`
	RecommendedActions []string `json:"recommendedActions"`
	Rationale          string   `json:"rationale"`
}

// Report is the engine output for one incident.
type Report struct {
	Recommendations   []Recommendation `json:"recommendations"`
	OverallConfidence int              `json:"overallConfidence"`
	Method            string           `json:"method"`
	CanonicalDigest   string           `json:"canonicalDigest"`
	DeterminismDigest string           `json:"determinismDigest"`
	Narrative         llm.Narrative    `json:"narrative"`
	// NarrativeDegraded is set when a configured model failed or returned
	// unreadable output. It never affects the numeric fields.
	NarrativeDegraded bool `json:"narrativeDegraded"`
}

// Engine matches canonical evidence against a fault signature table.
type Engine struct {
	signatures []FaultSignature
	completer  llm.Completer
	timeout    time.Duration
	logger     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCompleter enables the advisory narrative. Each call is bounded by timeout.
func WithCompleter(c llm.Completer, timeout time.Duration) Option {
	return func(e *Engine) {
		e.completer = c
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine over signatures. A nil table uses the built-in one.
func NewEngine(signatures []FaultSignature, opts ...Option) *Engine {
	if signatures == nil {
		signatures = DefaultSignatures()
	}
	e := &Engine{
		signatures: signatures,
		timeout:    defaultNarrativeTimeout,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Signatures returns the engine's signature table.
func (e *Engine) Signatures() []FaultSignature {
	return append([]FaultSignature(nil), e.signatures...)
}

type signatureMatch struct {
	signature FaultSignature
	score     int
	matched   []string
}

// Recommend builds the canonical digest, pattern-matches it and attaches the
// advisory narrative. Identical evidence in any order yields identical
// recommendations and digests.
func (e *Engine) Recommend(ctx context.Context, evidence []EvidenceSummary, equipmentType string) (Report, error) {
	digest, err := CanonicalDigest(evidence)
	if err != nil {
		return Report{}, err
	}

	matches := e.match(digest, equipmentType)

	recs := make([]Recommendation, 0, len(matches)+1)
	for _, m := range matches {
		support := m.matched
		if len(support) == 0 {
			support = []string{"vibration analysis evidence available"}
		}
		recs = append(recs, Recommendation{
			FaultID:            m.signature.ID,
			SpecificFault:      m.signature.SpecificFault,
			FailureType:        m.signature.FailureType,
			Confidence:         min(m.score, 100),
			EvidenceSupport:    support,
			RecommendedActions: append([]string(nil), m.signature.RecommendedActions...),
			Rationale: fmt.Sprintf("Pattern match confidence: %d%% based on evidence patterns: %s",
				m.score, strings.Join(m.matched, ", ")),
		})
	}

	if len(recs) == 0 && hasVibrationContent(digest) {
		recs = append(recs, genericRecommendation())
	}

	report := Report{
		Recommendations:   recs,
		OverallConfidence: OverallConfidence(recs),
		Method:            Method,
		CanonicalDigest:   digest,
		DeterminismDigest: DeterminismHash(digest),
		Narrative:         llm.UnavailableNarrative(),
	}

	if e.completer != nil && len(evidence) > 0 {
		report.Narrative, report.NarrativeDegraded = e.narrate(ctx, digest, matches)
	}

	return report, nil
}

func (e *Engine) match(digest, equipmentType string) []signatureMatch {
	lower := strings.ToLower(digest)
	vibration := hasVibrationContent(lower)

	var matches []signatureMatch
	for _, sig := range e.signatures {
		if !sig.AppliesTo(equipmentType) {
			continue
		}

		score := 0
		matched := []string{}
		for _, pattern := range sig.EvidencePatterns {
			p := strings.ToLower(pattern)
			if strings.Contains(lower, p) || synonymHit(lower, p) {
				score += patternHitScore
				matched = append(matched, pattern)
			}
		}

		threshold := sig.ConfidenceThreshold
		if vibration {
			threshold = vibrationThreshold
		}
		if score > 0 && score >= threshold {
			matches = append(matches, signatureMatch{signature: sig, score: score, matched: matched})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].signature.ID < matches[j].signature.ID
	})
	return matches
}

// synonyms maps a pattern fragment to digest terms that also count as a hit.
var synonyms = []struct {
	fragment     string
	alternatives []string
}{
	{"frequency", []string{"hz", "freq"}},
	{"vibration", []string{"vibration", "rms"}},
	{"resonance", []string{"peak", "dominant"}},
}

func synonymHit(digest, pattern string) bool {
	for _, s := range synonyms {
		if !strings.Contains(pattern, s.fragment) {
			continue
		}
		for _, alt := range s.alternatives {
			if strings.Contains(digest, alt) {
				return true
			}
		}
	}
	return false
}

func hasVibrationContent(digest string) bool {
	d := strings.ToLower(digest)
	return strings.Contains(d, "vibration") || strings.Contains(d, "frequenc") ||
		strings.Contains(d, "hz") || strings.Contains(d, "rms")
}

func genericRecommendation() Recommendation {
	return Recommendation{
		FaultID:         genericFaultID,
		SpecificFault:   "Vibration anomaly requires further investigation",
		FailureType:     "mechanical",
		Confidence:      genericConfidence,
		EvidenceSupport: []string{"vibration frequency data available"},
		RecommendedActions: []string{
			"Conduct detailed vibration spectrum analysis",
			"Compare with equipment baseline vibration levels",
			"Check for resonance conditions at operating speed",
			"Verify mounting and foundation integrity",
		},
		Rationale: "Vibration data detected but specific fault patterns require additional analysis",
	}
}

// OverallConfidence is the rank-weighted mean of recommendation confidences.
// Zero recommendations give 0.
func OverallConfidence(recs []Recommendation) int {
	confidences := make([]int, len(recs))
	for i, r := range recs {
		confidences[i] = r.Confidence
	}
	return scoring.RankWeightedMean(confidences)
}

func (e *Engine) narrate(ctx context.Context, digest string, matches []signatureMatch) (llm.Narrative, bool) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.completer.Complete(ctx, buildPrompt(digest, matches))
	if err != nil {
		if errors.Is(err, llm.ErrDisabled) {
			return llm.UnavailableNarrative(), false
		}
		e.logger.Warn("AI narrative unavailable, using pattern matching only", zap.Error(err))
		return llm.UnavailableNarrative(), true
	}

	n, err := llm.ResolveNarrative(raw)
	if err != nil {
		e.logger.Debug("Model output failed strict narrative decode",
			zap.Error(err),
			zap.String("source", string(n.Source)),
		)
	}
	return n, n.Source == llm.SourceUnavailable
}

func buildPrompt(digest string, matches []signatureMatch) string {
	type summary struct {
		Fault    string   `json:"fault"`
		Score    int      `json:"score"`
		Patterns []string `json:"patterns"`
	}
	summaries := make([]summary, 0, len(matches))
	for _, m := range matches {
		summaries = append(summaries, summary{Fault: m.signature.SpecificFault, Score: m.score, Patterns: m.matched})
	}
	matchJSON, _ := json.Marshal(summaries)

	var sb strings.Builder
	sb.WriteString("FAULT ANALYSIS REQUEST - DETERMINISTIC MODE\n")
	sb.WriteString("Evidence Summary (canonical): ")
	sb.WriteString(digest)
	sb.WriteString("\nPattern Matches: ")
	sb.Write(matchJSON)
	sb.WriteString("\n\nINSTRUCTIONS:\n")
	sb.WriteString("1. Analyze evidence patterns objectively\n")
	sb.WriteString("2. Identify the most probable specific fault\n")
	sb.WriteString("3. Provide a confidence assessment\n")
	sb.WriteString("4. Recommend specific actions\n")
	sb.WriteString("5. Identical input must produce identical output\n\n")
	sb.WriteString(llm.NarrativeSchemaHint)
	return sb.String()
}
