package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"bearing", 1},
		{"high vibration at bearing housing", 5},
		{"pump's seal", 2},
		{"velocity 6.2 mm/s", 7},
		{"Respond with JSON: {\"summary\": \"...\"}", 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Estimate(tt.text), tt.text)
	}
}
