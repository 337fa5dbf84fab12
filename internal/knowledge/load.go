package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadRecords reads failure mode records from a .json, .yaml or .yml file.
// The file holds either a list of records or an object with a "records" list.
func LoadRecords(path string) ([]FailureModeRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return decodeJSONRecords(data)
	case ".yaml", ".yml":
		return decodeYAMLRecords(data)
	default:
		return nil, fmt.Errorf("unsupported record file type %q", filepath.Ext(path))
	}
}

func decodeJSONRecords(data []byte) ([]FailureModeRecord, error) {
	var list []FailureModeRecord
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Records []FailureModeRecord `json:"records"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse records: %w", err)
	}
	return wrapped.Records, nil
}

func decodeYAMLRecords(data []byte) ([]FailureModeRecord, error) {
	var list []FailureModeRecord
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Records []FailureModeRecord `yaml:"records"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse records: %w", err)
	}
	return wrapped.Records, nil
}
