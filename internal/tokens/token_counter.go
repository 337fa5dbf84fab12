package tokens

import "unicode"

// Estimate approximates the token count of text for usage accounting. Each
// run of letters or digits counts as one token, as does each run of
// punctuation. It tracks real tokenizers closely enough for the short
// prompts sent for incident narratives.
func Estimate(text string) int {
	if text == "" {
		return 0
	}

	count := 0
	var inWord, inPunct bool
	for _, r := range text {
		isWord := unicode.IsLetter(r) || unicode.IsNumber(r) || r == '\''
		isPunct := !isWord && unicode.IsPunct(r)

		if isWord && !inWord {
			count++
		}
		if isPunct && !inPunct {
			count++
		}
		inWord, inPunct = isWord, isPunct
	}
	return count
}
