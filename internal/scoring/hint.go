package scoring

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DefaultHintConfidence is used when a confidence hint cannot be parsed.
const DefaultHintConfidence = 60

var (
	percentPattern  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	fractionPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*/\s*(\d+(?:\.\d+)?)`)
)

// hintKeywords are checked in order; the first one contained in the hint wins.
var hintKeywords = []struct {
	word  string
	value int
}{
	{"critical", 95},
	{"high", 85},
	{"medium", 70},
	{"low", 55},
}

// ParseConfidenceHint converts free-text hints such as "72%", "8/10" or
// "High" to a 0-100 confidence. Patterns are tried as percentage, then
// fraction, then keyword. ok is false when nothing matched and the default
// was returned.
func ParseConfidenceHint(hint string) (value int, ok bool) {
	text := strings.ToLower(strings.TrimSpace(hint))

	if m := percentPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return clamp(int(math.Round(v))), true
		}
	}

	if m := fractionPattern.FindStringSubmatch(text); m != nil {
		num, err1 := strconv.ParseFloat(m[1], 64)
		den, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil && den > 0 {
			return clamp(int(math.Round(num / den * 100))), true
		}
	}

	for _, kw := range hintKeywords {
		if strings.Contains(text, kw.word) {
			return kw.value, true
		}
	}

	return DefaultHintConfidence, false
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
