package proposal

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/a-marczewski/faultline/internal/knowledge"
	"github.com/google/uuid"
)

// MinConfidence is the final analysis confidence (0-1) below which no
// proposals are generated.
const MinConfidence = 0.85

// Type of a library update proposal.
type Type string

const (
	TypeNewFaultSignature  Type = "new_fault_signature"
	TypePatternEnhancement Type = "pattern_enhancement"
)

// Status of a proposal in admin review.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

const (
	minSignatureUniqueness = 0.7
	enhancementScore       = 0.7
)

var proposalStopwords = map[string]struct{}{
	"have": {}, "this": {}, "that": {}, "with": {}, "from": {},
}

// Changes is the library edit a proposal would make once approved.
type Changes struct {
	RecordID              int64              `json:"recordId,omitempty"`
	FailureMode           string             `json:"failureMode,omitempty"`
	FaultSignaturePattern string             `json:"faultSignaturePattern"`
	PrimaryRootCause      string             `json:"primaryRootCause,omitempty"`
	EquipmentGroup        string             `json:"equipmentGroup,omitempty"`
	EquipmentType         string             `json:"equipmentType,omitempty"`
	EquipmentSubtype      string             `json:"equipmentSubtype,omitempty"`
	Taxonomy              knowledge.Taxonomy `json:"taxonomy"`
	ConfidenceLevel       string             `json:"confidenceLevel,omitempty"`
	DiagnosticValue       string             `json:"diagnosticValue,omitempty"`
}

// Impact estimates what an approved proposal changes.
type Impact struct {
	AffectedEquipment    []string `json:"affectedEquipment"`
	EstimatedImprovement float64  `json:"estimatedImprovement"`
	RiskLevel            string   `json:"riskLevel"`
}

// Proposal is a knowledge-base edit awaiting admin review. Proposals never
// change the library until approved.
type Proposal struct {
	ID         string     `json:"id"`
	IncidentID string     `json:"incidentId"`
	Type       Type       `json:"proposalType"`
	Changes    Changes    `json:"proposedChanges"`
	Rationale  string     `json:"rationale"`
	Confidence float64    `json:"confidence"`
	Impact     Impact     `json:"impactAssessment"`
	Status     Status     `json:"status"`
	ReviewedBy string     `json:"reviewedBy,omitempty"`
	ReviewedAt *time.Time `json:"reviewedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Candidate is the top-ranked failure mode of a confirmed analysis.
type Candidate struct {
	RecordID        int64
	Label           string
	RootCause       string
	ExistingPattern string
}

// Input describes a completed high-confidence analysis.
type Input struct {
	IncidentID       string
	Symptoms         []string
	EquipmentGroup   string
	EquipmentType    string
	EquipmentSubtype string
	Taxonomy         knowledge.Taxonomy
	Confidence       float64
	// MinConfidence overrides the package MinConfidence when positive.
	MinConfidence    float64
	Top              *Candidate
}

// Detect returns proposals for in, with ids taken from newID (random UUIDs
// when nil). Analyses below the minimum confidence yield none.
func Detect(in Input, now time.Time, newID func() string) []Proposal {
	floor := MinConfidence
	if in.MinConfidence > 0 {
		floor = in.MinConfidence
	}
	if in.Confidence < floor {
		return nil
	}
	if newID == nil {
		newID = uuid.NewString
	}
	keywords := symptomKeywords(in.Symptoms)

	var out []Proposal
	if p, ok := newSignature(in, keywords, now); ok {
		p.ID = newID()
		out = append(out, p)
	}
	if p, ok := enhancement(in, keywords, now); ok {
		p.ID = newID()
		out = append(out, p)
	}
	return out
}

// symptomKeywords keeps the first ten lower-cased words longer than three
// characters that are not stopwords.
func symptomKeywords(symptoms []string) []string {
	var out []string
	for _, word := range strings.Fields(strings.ToLower(strings.Join(symptoms, " "))) {
		if len([]rune(word)) <= 3 {
			continue
		}
		if _, stop := proposalStopwords[word]; stop {
			continue
		}
		out = append(out, word)
		if len(out) == 10 {
			break
		}
	}
	return out
}

func newSignature(in Input, keywords []string, now time.Time) (Proposal, bool) {
	uniqueness := math.Min(float64(len(keywords))/5, 1) * 0.8
	if uniqueness <= minSignatureUniqueness {
		return Proposal{}, false
	}

	pattern := strings.Join(keywords, " + ")
	rootCause := ""
	if in.Top != nil {
		rootCause = in.Top.RootCause
		if rootCause == "" {
			rootCause = in.Top.Label
		}
	}
	subtype := in.EquipmentSubtype
	if subtype == "" {
		subtype = "General"
	}

	return Proposal{
		IncidentID: in.IncidentID,
		Type:       TypeNewFaultSignature,
		Changes: Changes{
			FailureMode:           subtype + " - " + pattern,
			FaultSignaturePattern: strings.Join(keywords, ", "),
			PrimaryRootCause:      rootCause,
			EquipmentGroup:        in.EquipmentGroup,
			EquipmentType:         in.EquipmentType,
			EquipmentSubtype:      in.EquipmentSubtype,
			Taxonomy:              in.Taxonomy,
			ConfidenceLevel:       "High",
			DiagnosticValue:       "Critical",
		},
		Rationale: fmt.Sprintf("New fault signature detected from successful investigation. Pattern: %s with symptoms: %s",
			pattern, strings.Join(keywords, ", ")),
		Confidence: uniqueness,
		Impact: Impact{
			AffectedEquipment:    []string{subtype},
			EstimatedImprovement: 0.15,
			RiskLevel:            "low",
		},
		Status:    StatusPending,
		CreatedAt: now.UTC(),
	}, true
}

// enhancement proposes adding symptom keywords the top candidate's signature
// pattern does not mention yet.
func enhancement(in Input, keywords []string, now time.Time) (Proposal, bool) {
	if in.Top == nil || in.Top.RecordID == 0 {
		return Proposal{}, false
	}
	existing := strings.ToLower(in.Top.ExistingPattern)
	var missing []string
	for _, k := range keywords {
		if !strings.Contains(existing, k) {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return Proposal{}, false
	}

	pattern := strings.Join(missing, ", ")
	if strings.TrimSpace(in.Top.ExistingPattern) != "" {
		pattern = strings.TrimSpace(in.Top.ExistingPattern) + ", " + pattern
	}
	affected := in.EquipmentSubtype
	if affected == "" {
		affected = "General"
	}

	return Proposal{
		IncidentID: in.IncidentID,
		Type:       TypePatternEnhancement,
		Changes: Changes{
			RecordID:              in.Top.RecordID,
			FailureMode:           in.Top.Label,
			FaultSignaturePattern: pattern,
			Taxonomy:              in.Taxonomy,
		},
		Rationale:  fmt.Sprintf("Enhancement identified for existing Evidence Library entry: %s also presented %s", in.Top.Label, strings.Join(missing, ", ")),
		Confidence: enhancementScore,
		Impact: Impact{
			AffectedEquipment:    []string{affected},
			EstimatedImprovement: enhancementScore * 0.2,
			RiskLevel:            "medium",
		},
		Status:    StatusPending,
		CreatedAt: now.UTC(),
	}, true
}
