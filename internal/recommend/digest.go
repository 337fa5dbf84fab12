package recommend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
)

// EvidenceSummary is parsed evidence supplied by the ingestion collaborator.
type EvidenceSummary struct {
	FileName      string         `json:"fileName"`
	Summary       string         `json:"parsedSummary"`
	AdequacyScore int            `json:"adequacyScore"`
	Features      map[string]any `json:"extractedFeatures,omitempty"`
}

// Key finding patterns. Applied in this order on the lower-cased summary.
var (
	frequencyPattern = regexp.MustCompile(`(\d+\.?\d*)\s*hz`)
	magnitudePattern = regexp.MustCompile(`magnitude of (\d+\.?\d*)`)
	outlierPattern   = regexp.MustCompile(`(\d+\.?\d*)%\s*outliers`)
	rmsPattern       = regexp.MustCompile(`rms[^0-9]{0,12}(\d+\.?\d*)`)
)

// KeyFindings extracts the sorted finding tokens from one summary.
func KeyFindings(summary string) []string {
	s := strings.ToLower(summary)
	findings := []string{}

	if strings.Contains(s, "dominant frequencies") {
		if m := frequencyPattern.FindAllString(s, -1); len(m) > 0 {
			findings = append(findings, "dominant_frequencies:"+strings.Join(m, ","))
		}
	}
	if strings.Contains(s, "peak magnitude") {
		if m := magnitudePattern.FindStringSubmatch(s); m != nil {
			findings = append(findings, "peak_magnitude:"+m[1])
		}
	}
	if strings.Contains(s, "stable") || strings.Contains(s, "trend") {
		findings = append(findings, "trend:stable")
	}
	if strings.Contains(s, "outliers") {
		if m := outlierPattern.FindStringSubmatch(s); m != nil {
			findings = append(findings, "outlier_percentage:"+m[1])
		}
	}
	if strings.Contains(s, "vibration") {
		findings = append(findings, "vibration:present")
	}
	if m := rmsPattern.FindStringSubmatch(s); m != nil {
		findings = append(findings, "rms:"+m[1])
	}

	sort.Strings(findings)
	return findings
}

// TechnicalParameters flattens a feature map into dotted keys. Signal
// analysis blocks are reduced to their dominant frequency, peak magnitude and
// rms, keyed by signal name.
func TechnicalParameters(features map[string]any) map[string]any {
	params := map[string]any{}
	for key, value := range features {
		if key == "signalAnalysis" {
			if signals, ok := value.(map[string]any); ok {
				signalParameters(signals, params)
				continue
			}
		}
		flatten(key, value, params)
	}
	return params
}

func signalParameters(signals map[string]any, params map[string]any) {
	for name, raw := range signals {
		analysis, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if freqs, ok := analysis["fft_dominant_frequencies"].([]any); ok {
			if len(freqs) > 0 {
				if first, ok := freqs[0].(map[string]any); ok {
					params[name+"_dominant_freq"] = first["frequency"]
				}
			}
			params[name+"_peak_magnitude"] = analysis["fft_peak_magnitude"]
		}
		if rms, ok := analysis["rms"]; ok {
			params[name+"_rms"] = rms
		}
	}
}

func flatten(prefix string, value any, out map[string]any) {
	nested, ok := value.(map[string]any)
	if !ok {
		out[prefix] = value
		return
	}
	for k, v := range nested {
		flatten(prefix+"."+k, v, out)
	}
}

// CanonicalDigest serializes evidence independent of input order: files
// sorted by name, findings sorted, object keys sorted by encoding/json.
func CanonicalDigest(evidence []EvidenceSummary) (string, error) {
	type entry struct {
		name string
		data []byte
	}

	entries := make([]entry, 0, len(evidence))
	for _, e := range evidence {
		data, err := json.Marshal(map[string]any{
			"fileName":            e.FileName,
			"adequacyScore":       e.AdequacyScore,
			"keyFindings":         KeyFindings(e.Summary),
			"technicalParameters": TechnicalParameters(e.Features),
		})
		if err != nil {
			return "", fmt.Errorf("failed to serialize evidence %q: %w", e.FileName, err)
		}
		entries = append(entries, entry{name: e.FileName, data: data})
	}

	// Same-named files are ordered by their serialized form so every
	// permutation of the input produces the same digest.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].name != entries[j].name {
			return entries[i].name < entries[j].name
		}
		return bytes.Compare(entries[i].data, entries[j].data) < 0
	})

	parts := make([][]byte, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.data)
	}
	return "[" + string(bytes.Join(parts, []byte(","))) + "]", nil
}

// DeterminismHash is the 32-bit string hash h = h*31 + c over the UTF-16
// code units of digest, rendered as the hex of its absolute value.
func DeterminismHash(digest string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(digest)) {
		h = h*31 + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return "h32:" + strconv.FormatInt(v, 16)
}
