package knowledge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/a-marczewski/faultline/internal/storage"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pumpLibrary() []FailureModeRecord {
	return []FailureModeRecord{
		{ID: 1, EquipmentGroupID: ID(1), EquipmentTypeID: ID(10), FailureMode: "Bearing wear", FaultSignaturePattern: "vibration, noise, temperature rise"},
		{ID: 2, EquipmentGroupID: ID(1), EquipmentTypeID: ID(11), FailureMode: "Impeller erosion", FaultSignaturePattern: "flow loss, cavitation"},
		{ID: 3, EquipmentGroupID: ID(2), FailureMode: "Winding insulation breakdown", FaultSignaturePattern: "trip, smell"},
		{ID: 4, FailureMode: "Foundation looseness", FaultSignaturePattern: "bearing vibration at 1x"},
	}
}

func ids(records []FailureModeRecord) []int64 {
	out := make([]int64, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestFilterByTaxonomy(t *testing.T) {
	tests := []struct {
		name string
		tax  Taxonomy
		want []int64
	}{
		{name: "wildcards pass everything", tax: Taxonomy{}, want: []int64{1, 2, 3, 4}},
		{name: "group only", tax: Taxonomy{GroupID: ID(1)}, want: []int64{1, 2, 4}},
		{name: "group and type", tax: Taxonomy{GroupID: ID(1), TypeID: ID(10)}, want: []int64{1, 4}},
		{name: "unknown group keeps broad records", tax: Taxonomy{GroupID: ID(99)}, want: []int64{4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(FilterByTaxonomy(pumpLibrary(), tt.tax))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FilterByTaxonomy mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFilterByTaxonomyIsPure(t *testing.T) {
	records := pumpLibrary()
	before := pumpLibrary()
	_ = FilterByTaxonomy(records, Taxonomy{GroupID: ID(2)})
	assert.Empty(t, cmp.Diff(before, records))
}

func TestTokenize(t *testing.T) {
	got := Tokenize("The pump has Vibration and vibration, bearing noise at 3x RPM")
	assert.Equal(t, []string{"pump", "vibration", "bearing", "noise", "rpm"}, got)
	assert.Empty(t, Tokenize("a an of to"))
	assert.Empty(t, Tokenize(""))
}

func TestKeywordOverlapMatch(t *testing.T) {
	var m Matcher = KeywordOverlap{}

	got := m.Match("vibration and bearing noise", pumpLibrary())
	assert.Equal(t, []int64{1, 4}, ids(got))

	// No usable tokens: everything passes through unchanged.
	got = m.Match("it is on", pumpLibrary())
	assert.Equal(t, []int64{1, 2, 3, 4}, ids(got))

	got = m.Match("compressor surge", pumpLibrary())
	assert.Empty(t, got)
}

func TestRequiredEvidence(t *testing.T) {
	r := FailureModeRecord{RequiredTrendEvidence: "vibration trend; temperature trend", RequiredAttachments: "bearing photo, ,oil analysis"}
	assert.Equal(t, []string{"vibration trend", "temperature trend", "bearing photo", "oil analysis"}, r.RequiredEvidence())
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "kb.sqlite3"))
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLiteStore(db.GetConnection())
	ctx := context.Background()

	n, err := store.Import(ctx, pumpLibrary())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	all, err := store.All(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(pumpLibrary(), all); diff != "" {
		t.Errorf("All mismatch (-want +got):\n%s", diff)
	}

	r, err := store.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "Winding insulation breakdown", r.FailureMode)
	assert.Nil(t, r.EquipmentTypeID)

	_, err = store.Get(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Import(ctx, []FailureModeRecord{{ID: 9}})
	assert.Error(t, err)
}

type countingStore struct {
	Store
	calls int
}

func (c *countingStore) All(ctx context.Context) ([]FailureModeRecord, error) {
	c.calls++
	return c.Store.All(ctx)
}

func TestCachedStoreLookup(t *testing.T) {
	backing := &countingStore{Store: NewMemoryStore(pumpLibrary()...)}
	cached, err := NewCachedStore(backing, 8, nil)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := cached.Lookup(ctx, Taxonomy{GroupID: ID(1)})
	require.NoError(t, err)
	second, err := cached.Lookup(ctx, Taxonomy{GroupID: ID(1)})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, backing.calls)

	_, err = cached.Lookup(ctx, Taxonomy{GroupID: ID(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, backing.calls)

	cached.Purge()
	_, err = cached.Lookup(ctx, Taxonomy{GroupID: ID(1)})
	require.NoError(t, err)
	assert.Equal(t, 3, backing.calls)
}

func TestCachedStoreDoesNotCacheErrors(t *testing.T) {
	mem := NewMemoryStore(pumpLibrary()...)
	mem.FailWith(errors.New("unreachable"))
	cached, err := NewCachedStore(mem, 8, nil)
	require.NoError(t, err)

	_, err = cached.Lookup(context.Background(), Taxonomy{})
	require.Error(t, err)

	mem.FailWith(nil)
	got, err := cached.Lookup(context.Background(), Taxonomy{})
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestLoadRecords(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "library.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
records:
  - failure_mode: Mechanical seal leak
    equipment_group_id: 1
    elimination_condition: "no leakage observed; seal faces intact"
    confidence_hint: High
`), 0644))

	records, err := LoadRecords(yamlPath)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Mechanical seal leak", records[0].FailureMode)
	require.NotNil(t, records[0].EquipmentGroupID)
	assert.Equal(t, int64(1), *records[0].EquipmentGroupID)

	jsonPath := filepath.Join(dir, "library.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"failureMode":"Shaft misalignment","confidenceHint":"70%"}]`), 0644))
	records, err = LoadRecords(jsonPath)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "70%", records[0].ConfidenceHint)

	_, err = LoadRecords(filepath.Join(dir, "library.csv"))
	assert.Error(t, err)
}
