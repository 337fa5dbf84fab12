package knowledge

import (
	"strings"
	"unicode"
)

// Matcher narrows taxonomy-filtered records by the incident narrative.
type Matcher interface {
	Match(narrative string, records []FailureModeRecord) []FailureModeRecord
}

// KeywordOverlap is the literal keyword-overlap heuristic: a record is kept
// when any narrative token occurs as a substring of its description fields.
// It does no stemming or semantic matching.
type KeywordOverlap struct{}

var _ Matcher = KeywordOverlap{}

// Match keeps records sharing at least one token with narrative. When the
// narrative yields no tokens every record passes through.
func (KeywordOverlap) Match(narrative string, records []FailureModeRecord) []FailureModeRecord {
	tokens := Tokenize(narrative)
	if len(tokens) == 0 {
		out := make([]FailureModeRecord, len(records))
		copy(out, records)
		return out
	}

	out := make([]FailureModeRecord, 0, len(records))
	for _, r := range records {
		desc := strings.ToLower(r.Description())
		for _, tok := range tokens {
			if strings.Contains(desc, tok) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "but": {}, "for": {}, "was": {}, "are": {}, "been": {},
	"have": {}, "has": {}, "had": {}, "this": {}, "that": {}, "with": {}, "from": {},
	"were": {}, "into": {}, "onto": {}, "than": {}, "then": {}, "there": {},
	"their": {}, "they": {}, "when": {}, "where": {}, "which": {}, "while": {},
	"also": {}, "after": {}, "before": {}, "during": {}, "very": {}, "some": {},
	"not": {}, "all": {}, "any": {}, "can": {}, "our": {}, "its": {}, "out": {},
}

// Tokenize lower-cases narrative and splits it into words of at least three
// characters, dropping stopwords and duplicates. First-seen order is kept.
func Tokenize(narrative string) []string {
	words := strings.FieldsFunc(strings.ToLower(narrative), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(words))
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) < 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		tokens = append(tokens, w)
	}
	return tokens
}
