package history

import (
	"context"
	"errors"
	"time"
)

// ErrPatternNotFound is returned when a pattern id does not exist.
var ErrPatternNotFound = errors.New("historical pattern not found")

// Failure categories inferred from symptom and root-cause text.
const (
	CategoryMechanical = "mechanical"
	CategorySealing    = "sealing"
	CategoryElectrical = "electrical"
	CategoryProcess    = "process"
	CategoryGeneral    = "general"
)

// EquipmentContext holds the human-readable taxonomy names of an incident.
type EquipmentContext struct {
	Group   string `json:"group"`
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
}

// HistoricalPattern is a captured successful investigation. Only Frequency,
// SuccessRate and LastUsed change after creation.
type HistoricalPattern struct {
	ID                int64            `json:"id"`
	IncidentID        string           `json:"incidentId"`
	Symptoms          []string         `json:"symptoms"`
	Equipment         EquipmentContext `json:"equipment"`
	RootCauses        []string         `json:"rootCauses"`
	EvidenceUsed      []string         `json:"evidenceUsed"`
	OutcomeConfidence float64          `json:"outcomeConfidence"`
	Resolution        string           `json:"resolution"`
	FailureCategory   string           `json:"failureCategory"`
	Frequency         int              `json:"frequency"`
	SuccessRate       float64          `json:"successRate"`
	LastUsed          time.Time        `json:"lastUsed"`
	CreatedAt         time.Time        `json:"createdAt"`
}

// Outcome is the validated result of an investigation that used a pattern.
type Outcome struct {
	Successful      bool          `json:"successful"`
	ResolutionTime  time.Duration `json:"resolutionTime"`
	FinalConfidence float64       `json:"finalConfidence"`
}

// Criteria narrows FindPatterns. Zero values match everything.
type Criteria struct {
	ID              int64
	EquipmentGroup  string
	FailureCategory string
	Limit           int
}

// Store persists historical patterns. Patterns are append-only apart from
// UpdatePatternSuccess, and each incident contributes at most one.
type Store interface {
	FindPatterns(ctx context.Context, c Criteria) ([]HistoricalPattern, error)
	CreatePattern(ctx context.Context, p HistoricalPattern) (HistoricalPattern, error)
	UpdatePatternSuccess(ctx context.Context, id int64, outcome Outcome) (HistoricalPattern, error)
}

// ApplyOutcome returns p with its success metrics advanced by outcome.
// SuccessRate stays the running fraction of successful uses.
func ApplyOutcome(p HistoricalPattern, outcome Outcome, now time.Time) HistoricalPattern {
	f := float64(p.Frequency)
	if outcome.Successful {
		p.SuccessRate = (p.SuccessRate*f + 1) / (f + 1)
	} else {
		p.SuccessRate = p.SuccessRate * f / (f + 1)
	}
	p.Frequency++
	p.LastUsed = now
	return p
}
