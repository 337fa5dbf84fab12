package proposal

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/a-marczewski/faultline/internal/knowledge"
	"github.com/a-marczewski/faultline/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func confirmedInput() Input {
	return Input{
		IncidentID:       "INC-9",
		Symptoms:         []string{"High vibration with bearing noise", "temperature rising from drive end"},
		EquipmentGroup:   "Rotating",
		EquipmentType:    "Pump",
		EquipmentSubtype: "Centrifugal",
		Taxonomy:         knowledge.Taxonomy{GroupID: knowledge.ID(1), TypeID: knowledge.ID(2)},
		Confidence:       0.9,
		Top: &Candidate{
			RecordID:        7,
			Label:           "Bearing failure",
			RootCause:       "Lubrication breakdown",
			ExistingPattern: "vibration, bearing",
		},
	}
}

func TestDetectBelowThreshold(t *testing.T) {
	in := confirmedInput()
	in.Confidence = 0.84
	assert.Empty(t, Detect(in, fixedNow, nil))
}

func sequence(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func TestDetectUsesMinConfidenceOverride(t *testing.T) {
	in := confirmedInput()
	in.Confidence = 0.75
	in.MinConfidence = 0.7
	assert.Len(t, Detect(in, fixedNow, nil), 2)

	in.MinConfidence = 0.9
	in.Confidence = 0.88
	assert.Empty(t, Detect(in, fixedNow, nil))
}

func TestDetect(t *testing.T) {
	proposals := Detect(confirmedInput(), fixedNow, sequence("prop"))
	require.Len(t, proposals, 2)

	sig := proposals[0]
	assert.Equal(t, TypeNewFaultSignature, sig.Type)
	assert.Equal(t, StatusPending, sig.Status)
	assert.Equal(t, "High", sig.Changes.ConfidenceLevel)
	assert.Equal(t, "Centrifugal - high + vibration + bearing + noise + temperature + rising + drive", sig.Changes.FailureMode)
	assert.Equal(t, "Lubrication breakdown", sig.Changes.PrimaryRootCause)
	assert.InDelta(t, 0.8, sig.Confidence, 1e-9)
	assert.Equal(t, Impact{AffectedEquipment: []string{"Centrifugal"}, EstimatedImprovement: 0.15, RiskLevel: "low"}, sig.Impact)
	assert.Equal(t, "prop-1", sig.ID)

	enh := proposals[1]
	assert.Equal(t, TypePatternEnhancement, enh.Type)
	assert.Equal(t, "prop-2", enh.ID)
	assert.Equal(t, int64(7), enh.Changes.RecordID)
	assert.Equal(t, "vibration, bearing, high, noise, temperature, rising, drive", enh.Changes.FaultSignaturePattern)
	assert.Equal(t, "medium", enh.Impact.RiskLevel)
}

func TestDetectNeedsDistinctiveSymptoms(t *testing.T) {
	in := confirmedInput()
	in.Symptoms = []string{"pump trips with noise"}
	in.Top = nil
	// Three keywords are not distinctive enough for a new signature.
	assert.Empty(t, Detect(in, fixedNow, nil))
}

func TestSymptomKeywords(t *testing.T) {
	got := symptomKeywords([]string{"This pump have leaks from that seal with noise"})
	assert.Equal(t, []string{"pump", "leaks", "seal", "noise"}, got)
}

func openStore(t *testing.T) (*SQLiteStore, *knowledge.SQLiteStore) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "faultline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	library := knowledge.NewSQLiteStore(db.GetConnection())
	store := NewSQLiteStore(db.GetConnection(), library, nil)
	store.now = func() time.Time { return fixedNow }
	return store, library
}

func TestSQLiteStoreCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _ := openStore(t)

	first := Detect(confirmedInput(), fixedNow, nil)[0]
	stored, err := store.Create(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)

	again := Detect(confirmedInput(), fixedNow, nil)[0]
	require.NotEqual(t, first.ID, again.ID)
	dup, err := store.Create(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, first.ID, dup.ID)

	pending, err := store.List(ctx, StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.Changes, pending[0].Changes)
	assert.Equal(t, first.Impact, pending[0].Impact)
}

func TestReviewApproveAddsLibraryRecord(t *testing.T) {
	ctx := context.Background()
	store, library := openStore(t)

	p, err := store.Create(ctx, Detect(confirmedInput(), fixedNow, nil)[0])
	require.NoError(t, err)

	reviewed, err := store.Review(ctx, p.ID, Approve, "admin")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, reviewed.Status)
	assert.Equal(t, "admin", reviewed.ReviewedBy)
	require.NotNil(t, reviewed.ReviewedAt)

	records, err := library.All(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, p.Changes.FailureMode, records[0].FailureMode)
	assert.Equal(t, int64(1), *records[0].EquipmentGroupID)
	assert.Nil(t, records[0].EquipmentSubtypeID)

	_, err = store.Review(ctx, p.ID, Reject, "admin")
	assert.ErrorIs(t, err, ErrAlreadyReviewed)

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
}

func TestReviewApproveEnhancementUpdatesRecord(t *testing.T) {
	ctx := context.Background()
	store, library := openStore(t)

	_, err := library.Import(ctx, []knowledge.FailureModeRecord{{
		ID:                    7,
		FailureMode:           "Bearing failure",
		FaultSignaturePattern: "vibration, bearing",
	}})
	require.NoError(t, err)

	p, err := store.Create(ctx, Detect(confirmedInput(), fixedNow, nil)[1])
	require.NoError(t, err)
	_, err = store.Review(ctx, p.ID, Approve, "admin")
	require.NoError(t, err)

	record, err := library.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "vibration, bearing, high, noise, temperature, rising, drive", record.FaultSignaturePattern)
	assert.Equal(t, "Bearing failure", record.FailureMode)
}

func TestReviewReject(t *testing.T) {
	ctx := context.Background()
	store, library := openStore(t)

	p, err := store.Create(ctx, Detect(confirmedInput(), fixedNow, nil)[0])
	require.NoError(t, err)
	reviewed, err := store.Review(ctx, p.ID, Reject, "admin")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, reviewed.Status)

	records, err := library.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = store.Review(ctx, "missing", Approve, "admin")
	assert.ErrorIs(t, err, ErrNotFound)
}
