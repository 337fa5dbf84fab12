package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/a-marczewski/faultline/internal/analytics"
	"github.com/a-marczewski/faultline/internal/config"
	"github.com/a-marczewski/faultline/internal/history"
	"github.com/a-marczewski/faultline/internal/knowledge"
	"github.com/a-marczewski/faultline/internal/llm"
	"github.com/a-marczewski/faultline/internal/proposal"
	"github.com/a-marczewski/faultline/internal/recommend"
	"github.com/a-marczewski/faultline/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default(dir, filepath.Join(dir, config.DataDirName))
	cfg.DBPath = filepath.Join(dir, "faultline.sqlite3")
	cfg.MetricsEnabled = true
	return cfg
}

func pumpLibrary() []knowledge.FailureModeRecord {
	return []knowledge.FailureModeRecord{
		{
			ID: 1, EquipmentGroupID: knowledge.ID(1), EquipmentTypeID: knowledge.ID(10),
			FailureMode:           "Bearing failure",
			FaultSignaturePattern: "vibration, bearing noise",
			EliminationCondition:  "no vibration present",
			ConfidenceHint:        "High",
			PrimaryRootCause:      "Lubrication breakdown",
		},
		{
			ID: 2, EquipmentGroupID: knowledge.ID(1), EquipmentTypeID: knowledge.ID(10),
			FailureMode:           "Mechanical seal leak",
			FaultSignaturePattern: "leak at gland",
			ConfidenceHint:        "Medium",
		},
		{
			ID: 3, EquipmentGroupID: knowledge.ID(1), EquipmentTypeID: knowledge.ID(10),
			FailureMode:           "Cavitation",
			FaultSignaturePattern: "noise, pressure pulsation",
			ConfidenceHint:        "8/10",
		},
	}
}

func TestBuild_AnalyzeReviewLoop(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, testConfig(t), zap.NewNop(), llm.NewRegistry())
	require.NoError(t, err)
	defer a.Close()

	n, err := a.ImportRecords(ctx, pumpLibrary())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	req := workflow.AnalyzeRequest{
		IncidentID:       "INC-9",
		Symptoms:         []string{"high vibration at bearing housing with rising temperature"},
		EquipmentGroupID: knowledge.ID(1),
		EquipmentTypeID:  knowledge.ID(10),
		EquipmentGroup:   "Rotating",
		EquipmentType:    "Pump",
		EquipmentSubtype: "Centrifugal",
		Evidence: []recommend.EvidenceSummary{{
			FileName:      "de_bearing_spectrum.csv",
			Summary:       "1x and bearing defect frequencies elevated, overall velocity 6.2 mm/s",
			AdequacyScore: 85,
		}},
	}
	res, err := a.Orchestrator.Analyze(ctx, req)
	require.NoError(t, err)

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "Bearing failure", res.Candidates[0].Label)
	assert.Equal(t, 85, res.OverallConfidence)
	assert.Nil(t, res.Fallback)
	assert.Empty(t, res.Degraded)
	assert.NotEmpty(t, res.DeterminismDigest)
	require.Len(t, res.Proposals, 2)
	require.NotZero(t, res.CapturedPatternID)

	patterns, err := a.Patterns.FindPatterns(ctx, history.Criteria{ID: res.CapturedPatternID})
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, history.CategoryMechanical, patterns[0].FailureCategory)

	pending, err := a.Proposals.List(ctx, proposal.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	before, err := a.Knowledge.Cached.Lookup(ctx, req.Taxonomy())
	require.NoError(t, err)
	assert.Len(t, before, 3)

	approved, err := a.ReviewProposal(ctx, res.Proposals[0].ID, proposal.Approve, "reliability lead")
	require.NoError(t, err)
	assert.Equal(t, proposal.StatusApproved, approved.Status)

	after, err := a.Knowledge.Cached.Lookup(ctx, req.Taxonomy())
	require.NoError(t, err)
	assert.Len(t, after, 4)

	_, err = a.ReviewProposal(ctx, res.Proposals[0].ID, proposal.Reject, "reliability lead")
	assert.ErrorIs(t, err, proposal.ErrAlreadyReviewed)

	a.Metrics.Close()
	m, err := a.Analytics.GetRunMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalRuns)
	assert.Equal(t, 1, m.Incidents)
	assert.Zero(t, m.FailedRuns)
	require.Len(t, m.Stages, 9)
	assert.Equal(t, 1, m.Stages[5].Skipped)
	assert.Equal(t, analytics.LibrarySummary{
		FailureModes:       4,
		HistoricalPatterns: 1,
		PendingProposals:   1,
	}, m.Library)
}

func TestBuild_UnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLMProvider = "carrier-pigeon"

	_, err := Build(context.Background(), cfg, nil, llm.NewRegistry())
	assert.ErrorIs(t, err, llm.ErrUnknownProvider)
}

func TestBuild_MissingSignaturesFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.SignaturesFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := Build(context.Background(), cfg, nil, llm.NewRegistry())
	assert.ErrorContains(t, err, "failed to load fault signatures")
}
