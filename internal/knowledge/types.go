package knowledge

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// ErrNotFound is returned when a failure mode id does not exist.
var ErrNotFound = errors.New("failure mode not found")

// FailureModeRecord is one row of the evidence library. Nil taxonomy ids mean
// the record applies broadly at that level.
type FailureModeRecord struct {
	ID                    int64  `json:"id" yaml:"id"`
	EquipmentGroupID      *int64 `json:"equipmentGroupId,omitempty" yaml:"equipment_group_id,omitempty"`
	EquipmentTypeID       *int64 `json:"equipmentTypeId,omitempty" yaml:"equipment_type_id,omitempty"`
	EquipmentSubtypeID    *int64 `json:"equipmentSubtypeId,omitempty" yaml:"equipment_subtype_id,omitempty"`
	RiskRankingID         *int64 `json:"riskRankingId,omitempty" yaml:"risk_ranking_id,omitempty"`
	FailureCode           string `json:"failureCode,omitempty" yaml:"failure_code,omitempty"`
	FailureMode           string `json:"failureMode" yaml:"failure_mode"`
	FaultSignaturePattern string `json:"faultSignaturePattern,omitempty" yaml:"fault_signature_pattern,omitempty"`
	EliminationCondition  string `json:"eliminationCondition,omitempty" yaml:"elimination_condition,omitempty"`
	EliminationRationale  string `json:"eliminationRationale,omitempty" yaml:"elimination_rationale,omitempty"`
	ConfidenceHint        string `json:"confidenceHint,omitempty" yaml:"confidence_hint,omitempty"`
	RequiredTrendEvidence string `json:"requiredTrendEvidence,omitempty" yaml:"required_trend_evidence,omitempty"`
	RequiredAttachments   string `json:"requiredAttachments,omitempty" yaml:"required_attachments,omitempty"`
	InvestigatorQuestions string `json:"investigatorQuestions,omitempty" yaml:"investigator_questions,omitempty"`
	PrimaryRootCause      string `json:"primaryRootCause,omitempty" yaml:"primary_root_cause,omitempty"`
	ContributingFactor    string `json:"contributingFactor,omitempty" yaml:"contributing_factor,omitempty"`
}

// RequiredEvidence lists the trend and attachment evidence a record asks for,
// split on commas and semicolons.
func (r FailureModeRecord) RequiredEvidence() []string {
	var out []string
	for _, field := range []string{r.RequiredTrendEvidence, r.RequiredAttachments} {
		for _, part := range strings.FieldsFunc(field, func(c rune) bool { return c == ',' || c == ';' }) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Description concatenates the free-text fields the symptom matcher searches.
func (r FailureModeRecord) Description() string {
	return strings.Join([]string{
		r.FailureMode,
		r.FaultSignaturePattern,
		r.InvestigatorQuestions,
		r.PrimaryRootCause,
		r.ContributingFactor,
		r.RequiredTrendEvidence,
	}, " ")
}

// Taxonomy identifies an incident's equipment classification. Nil fields are
// wildcards.
type Taxonomy struct {
	GroupID       *int64 `json:"equipmentGroupId,omitempty"`
	TypeID        *int64 `json:"equipmentTypeId,omitempty"`
	SubtypeID     *int64 `json:"equipmentSubtypeId,omitempty"`
	RiskRankingID *int64 `json:"riskRankingId,omitempty"`
}

// Key renders the taxonomy as a stable cache key.
func (t Taxonomy) Key() string {
	parts := make([]string, 0, 4)
	for _, id := range []*int64{t.GroupID, t.TypeID, t.SubtypeID, t.RiskRankingID} {
		if id == nil {
			parts = append(parts, "*")
			continue
		}
		parts = append(parts, strconv.FormatInt(*id, 10))
	}
	return strings.Join(parts, "/")
}

// Store is the read side of the evidence library.
type Store interface {
	All(ctx context.Context) ([]FailureModeRecord, error)
}

// ID returns a pointer to v, for building taxonomy filters and fixtures.
func ID(v int64) *int64 {
	return &v
}
