package recommend

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed signatures.yaml
var signaturesYAML []byte

// FaultSignature is a curated evidence pattern for one technical failure
// mechanism.
type FaultSignature struct {
	ID                  string   `yaml:"id" json:"id"`
	FailureType         string   `yaml:"failure_type" json:"failureType"`
	SpecificFault       string   `yaml:"specific_fault" json:"specificFault"`
	EvidencePatterns    []string `yaml:"evidence_patterns" json:"evidencePatterns"`
	RecommendedActions  []string `yaml:"recommended_actions" json:"recommendedActions"`
	ConfidenceThreshold int      `yaml:"confidence_threshold" json:"confidenceThreshold"`
	EquipmentTypes      []string `yaml:"equipment_types" json:"equipmentTypes"`
}

type signaturesFile struct {
	Signatures []FaultSignature `yaml:"signatures"`
}

// DefaultSignatures returns the built-in signature table, sorted by id.
func DefaultSignatures() []FaultSignature {
	sigs, err := parseSignatures(signaturesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded signatures.yaml is invalid: %v", err))
	}
	return sigs
}

// LoadSignatures reads a signature table from a YAML file.
func LoadSignatures(path string) ([]FaultSignature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signatures file: %w", err)
	}
	return parseSignatures(data)
}

func parseSignatures(data []byte) ([]FaultSignature, error) {
	var f signaturesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(f.Signatures))
	for i, s := range f.Signatures {
		if s.ID == "" {
			return nil, fmt.Errorf("signature %d has no id", i)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("duplicate signature id %q", s.ID)
		}
		if len(s.EvidencePatterns) == 0 {
			return nil, fmt.Errorf("signature %q has no evidence patterns", s.ID)
		}
		seen[s.ID] = struct{}{}
	}

	sort.Slice(f.Signatures, func(i, j int) bool {
		return f.Signatures[i].ID < f.Signatures[j].ID
	})
	return f.Signatures, nil
}

// AppliesTo reports whether the signature covers equipmentType. An empty
// type is unknown and matches every signature, as does a signature with no
// equipment types. Plural table entries match
// their singular form, so "pumps" applies to "Centrifugal Pump".
func (s FaultSignature) AppliesTo(equipmentType string) bool {
	typ := strings.ToLower(strings.TrimSpace(equipmentType))
	if typ == "" || len(s.EquipmentTypes) == 0 {
		return true
	}
	for _, applicable := range s.EquipmentTypes {
		a := strings.ToLower(strings.TrimSpace(applicable))
		if a == "" {
			continue
		}
		singular := strings.TrimSuffix(a, "s")
		if strings.Contains(typ, singular) || strings.Contains(a, typ) {
			return true
		}
	}
	return false
}
