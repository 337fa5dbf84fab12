package history

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/a-marczewski/faultline/internal/storage"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func pumpEquipment() EquipmentContext {
	return EquipmentContext{Group: "Rotating", Type: "Pump", Subtype: "Centrifugal"}
}

func bearingPattern() HistoricalPattern {
	return HistoricalPattern{
		IncidentID:      "INC-100",
		Symptoms:        []string{"vibration", "bearing", "noise"},
		Equipment:       pumpEquipment(),
		RootCauses:      []string{"Bearing wear"},
		EvidenceUsed:    []string{"vibration spectrum", "oil analysis", "thermography"},
		FailureCategory: CategoryMechanical,
		Frequency:       1,
		SuccessRate:     1.0,
		LastUsed:        fixedNow,
		CreatedAt:       fixedNow,
	}
}

func TestExtractSymptoms(t *testing.T) {
	got := ExtractSymptoms("High vibration at the drive end bearing", "VIBRATION rising")
	assert.Equal(t, []string{"high", "vibration", "drive", "bearing", "rising"}, got)

	many := ExtractSymptoms("alpha bravo charlie delta echo foxtrot golf1 hotel india juliet kilo lima")
	assert.Len(t, many, 10)
	assert.Equal(t, "alpha", many[0])

	assert.Empty(t, ExtractSymptoms("", "a an the"))
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		symptoms []string
		causes   []string
		want     string
	}{
		{[]string{"vibration"}, nil, CategoryMechanical},
		{[]string{"drip"}, []string{"Seal failure"}, CategorySealing},
		{[]string{"motor", "trip"}, nil, CategoryElectrical},
		{[]string{"pressure", "drop"}, nil, CategoryProcess},
		{[]string{"bearing", "leak"}, nil, CategoryMechanical},
		{nil, nil, CategoryGeneral},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Categorize(tt.symptoms, tt.causes), "%v %v", tt.symptoms, tt.causes)
	}
}

func TestBuildPatternDefaults(t *testing.T) {
	p := BuildPattern(CaptureInput{
		IncidentID: "INC-7",
		Symptoms:   []string{"Seal leaking at gland"},
		Confidence: 0.9,
	}, fixedNow)

	assert.Equal(t, 1, p.Frequency)
	assert.Equal(t, 1.0, p.SuccessRate)
	assert.Equal(t, EquipmentContext{Group: "Unknown", Type: "Unknown", Subtype: "Unknown"}, p.Equipment)
	assert.Equal(t, CategorySealing, p.FailureCategory)
	assert.Equal(t, "Unknown", p.Resolution)
	assert.Equal(t, []string{}, p.RootCauses)
	assert.Equal(t, fixedNow, p.LastUsed)
}

func TestApplyOutcomeKeepsRunningMean(t *testing.T) {
	p := bearingPattern()

	p = ApplyOutcome(p, Outcome{Successful: false}, fixedNow)
	assert.Equal(t, 2, p.Frequency)
	assert.InDelta(t, 0.5, p.SuccessRate, 1e-9)

	p = ApplyOutcome(p, Outcome{Successful: true}, fixedNow.Add(time.Hour))
	assert.Equal(t, 3, p.Frequency)
	assert.InDelta(t, 2.0/3.0, p.SuccessRate, 1e-9)
	assert.Equal(t, fixedNow.Add(time.Hour), p.LastUsed)

	// Repeated success never lowers the rate.
	q := bearingPattern()
	for i := 0; i < 5; i++ {
		q = ApplyOutcome(q, Outcome{Successful: true}, fixedNow)
		assert.InDelta(t, 1.0, q.SuccessRate, 1e-9)
	}
}

func TestSimilarity(t *testing.T) {
	f := NewFeatures("INC-200", []string{"High vibration at drive end bearing"}, pumpEquipment())
	require.Equal(t, CategoryMechanical, f.Category)

	// equipment 1.0, symptoms 2/4, category 1.0
	assert.InDelta(t, 0.75, Similarity(f, bearingPattern()), 1e-9)

	other := HistoricalPattern{
		Symptoms:        []string{"leak", "seal"},
		Equipment:       EquipmentContext{Group: "Static", Type: "Vessel"},
		FailureCategory: CategorySealing,
	}
	assert.InDelta(t, 0.06, Similarity(f, other), 1e-9)

	unknown := NewFeatures("", nil, EquipmentContext{Group: "Unknown"})
	assert.InDelta(t, 0.06, Similarity(unknown, HistoricalPattern{Equipment: EquipmentContext{Group: "Unknown"}, FailureCategory: CategorySealing}), 1e-9)
}

func TestMatcherBoost(t *testing.T) {
	ctx := context.Background()
	leak := HistoricalPattern{
		Symptoms:        []string{"leak", "seal"},
		Equipment:       EquipmentContext{Group: "Static", Type: "Vessel", Subtype: "Drum"},
		FailureCategory: CategorySealing,
		SuccessRate:     1,
		LastUsed:        fixedNow,
	}
	store := NewMemoryStore(bearingPattern(), leak)
	m := NewMatcher(store, WithClock(func() time.Time { return fixedNow }))

	f := NewFeatures("INC-200", []string{"High vibration at drive end bearing"}, pumpEquipment())
	res, err := m.Boost(ctx, f)
	require.NoError(t, err)

	require.Len(t, res.Matches, 1)
	match := res.Matches[0]
	assert.Equal(t, int64(1), match.Pattern.ID)
	assert.InDelta(t, 0.85, match.Relevance, 1e-9)
	assert.InDelta(t, 0.075, match.ConfidenceBoost, 1e-9)
	assert.InDelta(t, 0.075, res.Boost, 1e-9)

	want := []string{
		"Consider root cause: Bearing wear",
		"Focus on evidence: vibration spectrum, oil analysis",
		"High similarity - consider following historical investigation approach",
		"Pattern has high success rate - reliable approach",
	}
	if diff := cmp.Diff(want, match.Recommendations); diff != "" {
		t.Errorf("recommendations mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"Similar pattern found: mechanical (75% match, 100% success rate)"}, res.Insights)
}

func TestMatcherBoostIsCapped(t *testing.T) {
	ctx := context.Background()
	var patterns []HistoricalPattern
	for i := 0; i < 8; i++ {
		patterns = append(patterns, bearingPattern())
	}
	m := NewMatcher(NewMemoryStore(patterns...), WithClock(func() time.Time { return fixedNow }))

	res, err := m.Boost(ctx, NewFeatures("INC-200", []string{"vibration bearing noise"}, pumpEquipment()))
	require.NoError(t, err)
	assert.Len(t, res.Matches, 5)
	assert.Equal(t, DefaultMaxBoost, res.Boost)

	low := NewMatcher(NewMemoryStore(patterns...), WithMaxBoost(0.05))
	res, err = low.Boost(ctx, NewFeatures("INC-200", []string{"vibration bearing noise"}, pumpEquipment()))
	require.NoError(t, err)
	assert.Equal(t, 0.05, res.Boost)
}

func TestMatcherBoostBoundsRandomized(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(3))
	words := []string{"vibration", "bearing", "leak", "seal", "motor", "pressure", "noise", "heat"}
	groups := []string{"Rotating", "Static", "Electrical"}

	for i := 0; i < 50; i++ {
		var patterns []HistoricalPattern
		n := r.Intn(12)
		for j := 0; j < n; j++ {
			patterns = append(patterns, HistoricalPattern{
				Symptoms:        []string{words[r.Intn(len(words))], words[r.Intn(len(words))]},
				Equipment:       EquipmentContext{Group: groups[r.Intn(len(groups))], Type: "Pump"},
				FailureCategory: Categorize([]string{words[r.Intn(len(words))]}, nil),
				SuccessRate:     r.Float64(),
				LastUsed:        fixedNow.Add(-time.Duration(r.Intn(800)) * 24 * time.Hour),
			})
		}
		m := NewMatcher(NewMemoryStore(patterns...), WithClock(func() time.Time { return fixedNow }))
		f := NewFeatures("INC-200", []string{words[r.Intn(len(words))] + " " + words[r.Intn(len(words))]},
			EquipmentContext{Group: groups[r.Intn(len(groups))], Type: "Pump"})

		res, err := m.Boost(ctx, f)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Boost, 0.0)
		assert.LessOrEqual(t, res.Boost, DefaultMaxBoost)
		assert.LessOrEqual(t, len(res.Matches), 5)
		for k, match := range res.Matches {
			assert.Greater(t, match.Similarity, 0.3)
			assert.LessOrEqual(t, match.Similarity, 1.0)
			if k > 0 {
				assert.GreaterOrEqual(t, res.Matches[k-1].Relevance, match.Relevance)
			}
		}
	}
}

func TestRecencyDecay(t *testing.T) {
	old := bearingPattern()
	old.LastUsed = fixedNow.Add(-400 * 24 * time.Hour)
	assert.InDelta(t, 0.6*0.75+0.3, relevance(0.75, old, fixedNow), 1e-9)

	recent := bearingPattern()
	assert.InDelta(t, 0.6*0.75+0.3+0.1, relevance(0.75, recent, fixedNow), 1e-9)
}

func TestMatcherStoreError(t *testing.T) {
	store := NewMemoryStore()
	store.FailWith(errors.New("disk gone"))
	res, err := NewMatcher(store).Boost(context.Background(), Features{})
	assert.Error(t, err)
	assert.Zero(t, res.Boost)
	assert.Empty(t, res.Matches)
}

func TestCaptureAndRecordOutcome(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SetClock(func() time.Time { return fixedNow })
	m := NewMatcher(store, WithClock(func() time.Time { return fixedNow }))

	p, err := m.Capture(ctx, CaptureInput{
		IncidentID: "INC-1",
		Symptoms:   []string{"Bearing overheating"},
		Equipment:  pumpEquipment(),
		RootCauses: []string{"Lubrication starvation"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)

	updated, err := m.RecordOutcome(ctx, p.ID, Outcome{Successful: false})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Frequency)
	assert.InDelta(t, 0.5, updated.SuccessRate, 1e-9)

	_, err = m.RecordOutcome(ctx, 99, Outcome{Successful: true})
	assert.ErrorIs(t, err, ErrPatternNotFound)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(filepath.Join(t.TempDir(), "faultline.db"))
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLiteStore(db.GetConnection())
	store.now = func() time.Time { return fixedNow.Add(time.Hour) }

	created, err := store.CreatePattern(ctx, bearingPattern())
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	leak := bearingPattern()
	leak.IncidentID = "INC-101"
	leak.Equipment.Group = "Static"
	leak.FailureCategory = CategorySealing
	leak.LastUsed = fixedNow.Add(-time.Hour)
	_, err = store.CreatePattern(ctx, leak)
	require.NoError(t, err)

	all, err := store.FindPatterns(ctx, Criteria{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, created.ID, all[0].ID)
	assert.Equal(t, []string{"vibration", "bearing", "noise"}, all[0].Symptoms)
	assert.Equal(t, pumpEquipment(), all[0].Equipment)
	assert.True(t, fixedNow.Equal(all[0].LastUsed))

	byGroup, err := store.FindPatterns(ctx, Criteria{EquipmentGroup: "static"})
	require.NoError(t, err)
	require.Len(t, byGroup, 1)
	assert.Equal(t, CategorySealing, byGroup[0].FailureCategory)

	updated, err := store.UpdatePatternSuccess(ctx, created.ID, Outcome{Successful: false})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Frequency)
	assert.InDelta(t, 0.5, updated.SuccessRate, 1e-9)

	reloaded, err := store.FindPatterns(ctx, Criteria{ID: created.ID})
	require.NoError(t, err)
	require.Len(t, reloaded, 1)
	assert.Equal(t, 2, reloaded[0].Frequency)
	assert.True(t, fixedNow.Add(time.Hour).Equal(reloaded[0].LastUsed))

	_, err = store.UpdatePatternSuccess(ctx, 12345, Outcome{Successful: true})
	assert.ErrorIs(t, err, ErrPatternNotFound)
}

func TestMatcherSkipsPatternsOfSameIncident(t *testing.T) {
	m := NewMatcher(NewMemoryStore(bearingPattern()), WithClock(func() time.Time { return fixedNow }))
	symptoms := []string{"High vibration at drive end bearing"}

	res, err := m.Boost(context.Background(), NewFeatures("INC-100", symptoms, pumpEquipment()))
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.Zero(t, res.Boost)

	res, err = m.Boost(context.Background(), NewFeatures("", symptoms, pumpEquipment()))
	require.NoError(t, err)
	assert.Len(t, res.Matches, 1)
}

func TestCreatePatternKeepsOnePatternPerIncident(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(filepath.Join(t.TempDir(), "faultline.db"))
	require.NoError(t, err)
	defer db.Close()

	stores := map[string]Store{
		"sqlite": NewSQLiteStore(db.GetConnection()),
		"memory": NewMemoryStore(),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			first, err := store.CreatePattern(ctx, bearingPattern())
			require.NoError(t, err)

			again := bearingPattern()
			again.RootCauses = []string{"Misalignment"}
			second, err := store.CreatePattern(ctx, again)
			require.NoError(t, err)
			assert.Equal(t, first.ID, second.ID)
			assert.Equal(t, []string{"Bearing wear"}, second.RootCauses)

			anonymous := bearingPattern()
			anonymous.IncidentID = ""
			for i := 0; i < 2; i++ {
				_, err = store.CreatePattern(ctx, anonymous)
				require.NoError(t, err)
			}

			all, err := store.FindPatterns(ctx, Criteria{})
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}
