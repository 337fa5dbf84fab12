package history

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxBoost caps the total history boost on case confidence.
	DefaultMaxBoost = 0.15

	similarityFloor = 0.3
	maxMatches      = 5
	boostFactor     = 0.1
	recencyWindow   = 365 * 24 * time.Hour
)

// Match is one pattern similar enough to the current incident.
type Match struct {
	Pattern         HistoricalPattern `json:"pattern"`
	Similarity      float64           `json:"similarity"`
	Relevance       float64           `json:"relevance"`
	ConfidenceBoost float64           `json:"confidenceBoost"`
	Recommendations []string          `json:"recommendations"`
}

// BoostResult is the history contribution to an analysis.
type BoostResult struct {
	Boost    float64  `json:"boost"`
	Matches  []Match  `json:"matches"`
	Insights []string `json:"insights"`
}

// Matcher ranks stored patterns against an incident.
type Matcher struct {
	store    Store
	maxBoost float64
	now      func() time.Time
	logger   *zap.Logger
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithClock sets the clock used for recency weighting.
func WithClock(now func() time.Time) MatcherOption {
	return func(m *Matcher) { m.now = now }
}

// WithMaxBoost sets the boost cap. Values outside (0, DefaultMaxBoost] are
// clamped to DefaultMaxBoost.
func WithMaxBoost(v float64) MatcherOption {
	return func(m *Matcher) {
		if v > 0 && v <= DefaultMaxBoost {
			m.maxBoost = v
		}
	}
}

// WithMatcherLogger sets the matcher logger.
func WithMatcherLogger(logger *zap.Logger) MatcherOption {
	return func(m *Matcher) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMatcher creates a matcher over store.
func NewMatcher(store Store, opts ...MatcherOption) *Matcher {
	m := &Matcher{
		store:    store,
		maxBoost: DefaultMaxBoost,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FindMatches returns up to five patterns with similarity above 0.3, ranked
// by relevance. Patterns of the incident being analyzed are skipped.
func (m *Matcher) FindMatches(ctx context.Context, f Features) ([]Match, error) {
	patterns, err := m.store.FindPatterns(ctx, Criteria{})
	if err != nil {
		return nil, fmt.Errorf("failed to load historical patterns: %w", err)
	}

	now := m.now()
	matches := []Match{}
	for _, p := range patterns {
		if f.IncidentID != "" && p.IncidentID == f.IncidentID {
			continue
		}
		sim := Similarity(f, p)
		if sim <= similarityFloor {
			continue
		}
		matches = append(matches, Match{
			Pattern:         p,
			Similarity:      sim,
			Relevance:       relevance(sim, p, now),
			ConfidenceBoost: sim * p.SuccessRate * boostFactor,
			Recommendations: recommendations(p, sim),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Relevance != matches[j].Relevance {
			return matches[i].Relevance > matches[j].Relevance
		}
		return matches[i].Pattern.ID < matches[j].Pattern.ID
	})
	if len(matches) > maxMatches {
		matches = matches[:maxMatches]
	}

	m.logger.Debug("Historical patterns matched",
		zap.Int("candidates", len(patterns)),
		zap.Int("matches", len(matches)),
	)
	return matches, nil
}

// Boost computes the capped confidence boost and insights for f. The boost
// never exceeds the matcher's cap.
func (m *Matcher) Boost(ctx context.Context, f Features) (BoostResult, error) {
	matches, err := m.FindMatches(ctx, f)
	if err != nil {
		return BoostResult{Matches: []Match{}, Insights: []string{}}, err
	}

	total := 0.0
	insights := make([]string, 0, len(matches))
	for _, match := range matches {
		total += match.ConfidenceBoost
		insights = append(insights, fmt.Sprintf("Similar pattern found: %s (%d%% match, %d%% success rate)",
			match.Pattern.FailureCategory,
			int(math.Round(match.Similarity*100)),
			int(math.Round(match.Pattern.SuccessRate*100)),
		))
	}

	return BoostResult{
		Boost:    math.Min(total, m.maxBoost),
		Matches:  matches,
		Insights: insights,
	}, nil
}

// Similarity weighs equipment (0.3), symptom (0.5) and category (0.2)
// agreement between f and p. The result is in [0, 1].
func Similarity(f Features, p HistoricalPattern) float64 {
	sim := 0.3*equipmentSimilarity(f.Equipment, p.Equipment) +
		0.5*symptomSimilarity(f.Symptoms, p.Symptoms) +
		0.2*categorySimilarity(f.Category, p.FailureCategory)
	return math.Min(sim, 1.0)
}

func equipmentSimilarity(a, b EquipmentContext) float64 {
	score := 0.0
	if sameName(a.Group, b.Group) {
		score += 0.5
	}
	if sameName(a.Type, b.Type) {
		score += 0.3
	}
	if sameName(a.Subtype, b.Subtype) {
		score += 0.2
	}
	return score
}

// sameName compares taxonomy names case-insensitively. Unknown names never match.
func sameName(a, b string) bool {
	a = strings.TrimSpace(a)
	if a == "" || strings.EqualFold(a, "unknown") {
		return false
	}
	return strings.EqualFold(a, strings.TrimSpace(b))
}

func symptomSimilarity(current, stored []string) float64 {
	if len(current) == 0 || len(stored) == 0 {
		return 0
	}
	overlap := 0
	for _, c := range current {
		c = strings.ToLower(c)
		for _, s := range stored {
			s = strings.ToLower(s)
			if strings.Contains(c, s) || strings.Contains(s, c) {
				overlap++
				break
			}
		}
	}
	return float64(overlap) / float64(max(len(current), len(stored)))
}

func categorySimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	return 0.3
}

func relevance(sim float64, p HistoricalPattern, now time.Time) float64 {
	recency := 0.0
	if !p.LastUsed.IsZero() {
		recency = math.Max(0, 1-float64(now.Sub(p.LastUsed))/float64(recencyWindow))
		recency = math.Min(recency, 1)
	}
	return 0.6*sim + 0.3*p.SuccessRate + 0.1*recency
}

func recommendations(p HistoricalPattern, sim float64) []string {
	cause := "Unknown"
	if len(p.RootCauses) > 0 && p.RootCauses[0] != "" {
		cause = p.RootCauses[0]
	}
	recs := []string{"Consider root cause: " + cause}

	if len(p.EvidenceUsed) > 0 {
		recs = append(recs, "Focus on evidence: "+strings.Join(p.EvidenceUsed[:min(2, len(p.EvidenceUsed))], ", "))
	}
	if sim > 0.7 {
		recs = append(recs, "High similarity - consider following historical investigation approach")
	}
	if p.SuccessRate > 0.8 {
		recs = append(recs, "Pattern has high success rate - reliable approach")
	}
	return recs
}

// Capture records a completed investigation as a new pattern. An incident
// already captured keeps its first pattern, which is returned.
func (m *Matcher) Capture(ctx context.Context, in CaptureInput) (HistoricalPattern, error) {
	p, err := m.store.CreatePattern(ctx, BuildPattern(in, m.now()))
	if err != nil {
		return HistoricalPattern{}, err
	}
	m.logger.Info("Historical pattern captured",
		zap.Int64("pattern_id", p.ID),
		zap.String("incident_id", p.IncidentID),
		zap.String("category", p.FailureCategory),
	)
	return p, nil
}

// RecordOutcome updates a pattern's success metrics after it was used.
func (m *Matcher) RecordOutcome(ctx context.Context, id int64, outcome Outcome) (HistoricalPattern, error) {
	p, err := m.store.UpdatePatternSuccess(ctx, id, outcome)
	if err != nil {
		return HistoricalPattern{}, err
	}
	m.logger.Info("Historical pattern outcome recorded",
		zap.Int64("pattern_id", id),
		zap.Bool("successful", outcome.Successful),
		zap.Float64("success_rate", p.SuccessRate),
	)
	return p, nil
}
