package llm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNarrativeStrict(t *testing.T) {
	raw := "```json\n" + `{"summary":"Rotor unbalance is likely","probable_fault":"Rotor unbalance","confidence":72,"recommended_actions":["Perform field balancing"]}` + "\n```"

	n, err := DecodeNarrative(raw)
	require.NoError(t, err)

	want := Narrative{
		Summary:            "Rotor unbalance is likely",
		ProbableFault:      "Rotor unbalance",
		Confidence:         72,
		RecommendedActions: []string{"Perform field balancing"},
		Source:             SourceModel,
	}
	if diff := cmp.Diff(want, n); diff != "" {
		t.Errorf("DecodeNarrative mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeNarrativeRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", "   "},
		{"prose", "The pump is probably unbalanced."},
		{"unknown field", `{"summary":"x","mood":"calm"}`},
		{"missing summary", `{"probable_fault":"x"}`},
		{"confidence out of range", `{"summary":"x","confidence":140}`},
		{"trailing data", `{"summary":"x"} and more`},
		{"wrong type", `{"summary":["x"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeNarrative(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestResolveNarrativeLegacyPaths(t *testing.T) {
	n, err := ResolveNarrative(`Here you go: {"analysis": "Misalignment indicated by 2x component", "extra": 1}`)
	assert.Error(t, err)
	assert.Equal(t, SourceLegacy, n.Source)
	assert.Equal(t, "Misalignment indicated by 2x component", n.Summary)

	n, err = ResolveNarrative("Bearing outer race defect likely.")
	assert.Error(t, err)
	assert.Equal(t, SourceLegacy, n.Source)
	assert.Equal(t, "Bearing outer race defect likely.", n.Summary)

	n, err = ResolveNarrative("")
	assert.Error(t, err)
	assert.Equal(t, UnavailableNarrative(), n)

	n, err = ResolveNarrative(`{"summary":"ok"}`)
	assert.NoError(t, err)
	assert.Equal(t, SourceModel, n.Source)
}
