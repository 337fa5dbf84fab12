package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default("/site", "/site/.faultline")
	assert.Equal(t, "none", cfg.LLMProvider)
	assert.Equal(t, "/site/.faultline/store/faultline.sqlite3", cfg.DBPath)
	assert.Equal(t, "/site/.faultline/config.toml", cfg.ConfigPath)
	assert.InDelta(t, 0.6, cfg.EvidenceAdequacyThreshold, 1e-9)
	assert.InDelta(t, 0.85, cfg.FallbackThreshold, 1e-9)
	assert.InDelta(t, 0.15, cfg.HistoryMaxBoost, 1e-9)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[storage]
db_path = "db/custom.sqlite3"

[logging]
level = "debug"

[llm]
provider = "gemini"
model = "gemini-2.0-flash"
timeout_seconds = 45

[analysis]
evidence_adequacy_threshold = 0.75
fallback_threshold = 0.8
history_max_boost = 0.1

[knowledge]
cache_size = 32

[signatures]
file = "/etc/faultline/signatures.yaml"

[metrics]
enabled = true
`), 0644))

	cfg := Default(dir, dir)
	require.NoError(t, cfg.loadFile(path))

	assert.Equal(t, filepath.Join(dir, "db/custom.sqlite3"), cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "gemini", cfg.LLMProvider)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLMModel)
	assert.Equal(t, 45, cfg.LLMTimeoutSeconds)
	assert.InDelta(t, 0.75, cfg.EvidenceAdequacyThreshold, 1e-9)
	assert.InDelta(t, 0.8, cfg.FallbackThreshold, 1e-9)
	assert.InDelta(t, 0.1, cfg.HistoryMaxBoost, 1e-9)
	assert.Equal(t, 32, cfg.KnowledgeCacheSize)
	assert.Equal(t, "/etc/faultline/signatures.yaml", cfg.SignaturesFile)
	assert.True(t, cfg.MetricsEnabled)

	assert.NoError(t, cfg.loadFile(filepath.Join(dir, "missing.toml")))

	require.NoError(t, os.WriteFile(path, []byte("[llm\nprovider ="), 0644))
	assert.ErrorContains(t, cfg.loadFile(path), "failed to parse config file")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("FAULTLINE_LLM_PROVIDER", "cli:claude")
	t.Setenv("FAULTLINE_FALLBACK_THRESHOLD", "0.7")
	t.Setenv("FAULTLINE_KNOWLEDGE_CACHE_SIZE", "not-a-number")
	t.Setenv("FAULTLINE_METRICS_ENABLED", "1")

	cfg := Default("/site", "/site/.faultline")
	cfg.applyEnv()

	assert.Equal(t, "cli:claude", cfg.LLMProvider)
	assert.InDelta(t, 0.7, cfg.FallbackThreshold, 1e-9)
	assert.Equal(t, DefaultKnowledgeCacheSize, cfg.KnowledgeCacheSize)
	assert.True(t, cfg.MetricsEnabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty db path", func(c *Config) { c.DBPath = " " }, "database path is empty"},
		{"timeout", func(c *Config) { c.LLMTimeoutSeconds = 0 }, "LLM timeout must be positive"},
		{"adequacy", func(c *Config) { c.EvidenceAdequacyThreshold = 1.2 }, "evidence adequacy threshold"},
		{"fallback", func(c *Config) { c.FallbackThreshold = -0.1 }, "fallback threshold"},
		{"fallback inside hypothesis band", func(c *Config) { c.FallbackThreshold = 0.5 }, "fallback threshold must be above 0.5"},
		{"boost cap", func(c *Config) { c.HistoryMaxBoost = 0.2 }, "history max boost"},
		{"cache size", func(c *Config) { c.KnowledgeCacheSize = -1 }, "knowledge cache size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("/site", "/site/.faultline")
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:11434/v1", normalizeBaseURL(" http://localhost:11434/v1/ "))
	assert.Equal(t, "", normalizeBaseURL(""))
}

func TestEnsureDataDirs(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), DataDirName)
	require.NoError(t, EnsureDataDirs(dataDir))
	assert.DirExists(t, filepath.Join(dataDir, "logs"))
	assert.DirExists(t, filepath.Join(dataDir, "store"))
}
