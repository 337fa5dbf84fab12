package llm

import (
	"encoding/json"
	"strings"
)

// maxLegacySummary bounds free-text narratives.
const maxLegacySummary = 2000

// legacyNarrative reads model output that ignored the JSON schema. It is a
// compatibility path for providers that answer in prose or loosely shaped
// JSON, and is kept apart from DecodeNarrative on purpose: nothing here is
// validated beyond being non-empty.
//
// In order it tries: an embedded JSON object with a summary-like string
// field, then the raw text itself.
func legacyNarrative(raw string) (Narrative, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Narrative{}, false
	}

	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		var loose map[string]any
		if err := json.Unmarshal([]byte(text[start:end+1]), &loose); err == nil {
			for _, key := range []string{"summary", "analysis", "narrative", "explanation", "result"} {
				if s, ok := loose[key].(string); ok && strings.TrimSpace(s) != "" {
					n := Narrative{Summary: truncate(strings.TrimSpace(s)), Source: SourceLegacy}
					if fault, ok := loose["probable_fault"].(string); ok {
						n.ProbableFault = fault
					}
					return n, true
				}
			}
		}
	}

	return Narrative{Summary: truncate(text), Source: SourceLegacy}, true
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxLegacySummary {
		return s
	}
	return string(r[:maxLegacySummary])
}
