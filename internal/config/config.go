package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultLLMProvider               = "none"
	DefaultLLMBaseURL                = "http://localhost:11434/v1"
	DefaultLLMTimeoutSeconds         = 20
	DefaultEvidenceAdequacyThreshold = 0.6
	DefaultFallbackThreshold         = 0.85
	DefaultHistoryMaxBoost           = 0.15
	DefaultKnowledgeCacheSize        = 256
)

// Config holds the application configuration
type Config struct {
	LLMProvider       string
	LLMBaseURL        string
	LLMAPIKey         string
	LLMModel          string
	LLMTimeoutSeconds int
	LogLevel          string
	LogFile           string
	DBPath            string
	ConfigPath        string
	DataDir           string
	SiteRoot          string
	// Fraction of evidence that must be available before stage 5 is trusted.
	EvidenceAdequacyThreshold float64
	// Stage 5 confidence (0..1) below which stage 6 runs.
	FallbackThreshold  float64
	HistoryMaxBoost    float64
	KnowledgeCacheSize int
	// Optional YAML file replacing the built-in fault signature table.
	SignaturesFile string
	MetricsEnabled bool
}

type fileConfig struct {
	Storage struct {
		DBPath string `toml:"db_path"`
	} `toml:"storage"`
	Logging struct {
		Level string `toml:"level"`
		File  string `toml:"file"`
	} `toml:"logging"`
	LLM struct {
		Provider       string `toml:"provider"`
		BaseURL        string `toml:"base_url"`
		APIKey         string `toml:"api_key"`
		Model          string `toml:"model"`
		TimeoutSeconds int    `toml:"timeout_seconds"`
	} `toml:"llm"`
	Analysis struct {
		EvidenceAdequacyThreshold float64 `toml:"evidence_adequacy_threshold"`
		FallbackThreshold         float64 `toml:"fallback_threshold"`
		HistoryMaxBoost           float64 `toml:"history_max_boost"`
	} `toml:"analysis"`
	Knowledge struct {
		CacheSize int `toml:"cache_size"`
	} `toml:"knowledge"`
	Signatures struct {
		File string `toml:"file"`
	} `toml:"signatures"`
	Metrics struct {
		Enabled bool `toml:"enabled"`
	} `toml:"metrics"`
}

// Default returns the built-in configuration rooted at dataDir.
func Default(siteRoot, dataDir string) *Config {
	return &Config{
		LLMProvider:               DefaultLLMProvider,
		LLMBaseURL:                DefaultLLMBaseURL,
		LLMTimeoutSeconds:         DefaultLLMTimeoutSeconds,
		LogLevel:                  "info",
		LogFile:                   filepath.Join(dataDir, "logs", "faultline.log"),
		DBPath:                    filepath.Join(dataDir, "store", "faultline.sqlite3"),
		ConfigPath:                filepath.Join(dataDir, "config.toml"),
		DataDir:                   dataDir,
		SiteRoot:                  siteRoot,
		EvidenceAdequacyThreshold: DefaultEvidenceAdequacyThreshold,
		FallbackThreshold:         DefaultFallbackThreshold,
		HistoryMaxBoost:           DefaultHistoryMaxBoost,
		KnowledgeCacheSize:        DefaultKnowledgeCacheSize,
	}
}

// LoadConfig loads configuration from file, environment variables, and defaults
func LoadConfig() (*Config, error) {
	siteRoot, err := FindSiteRoot()
	if err != nil {
		return nil, err
	}

	dataDir := GetDataDir(siteRoot)
	if err := EnsureDataDirs(dataDir); err != nil {
		return nil, err
	}

	cfg := Default(siteRoot, dataDir)
	if err := cfg.loadFile(cfg.ConfigPath); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.LLMBaseURL = normalizeBaseURL(cfg.LLMBaseURL)

	return cfg, nil
}

// loadFile merges a TOML file over the current values. A missing file is not an error.
func (c *Config) loadFile(path string) error {
	fileData, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var parsed fileConfig
	if err := toml.Unmarshal(fileData, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if parsed.Storage.DBPath != "" {
		c.DBPath = c.resolve(parsed.Storage.DBPath)
	}
	if parsed.Logging.Level != "" {
		c.LogLevel = parsed.Logging.Level
	}
	if parsed.Logging.File != "" {
		c.LogFile = c.resolve(parsed.Logging.File)
	}
	if parsed.LLM.Provider != "" {
		c.LLMProvider = parsed.LLM.Provider
	}
	if parsed.LLM.BaseURL != "" {
		c.LLMBaseURL = parsed.LLM.BaseURL
	}
	if parsed.LLM.APIKey != "" {
		c.LLMAPIKey = parsed.LLM.APIKey
	}
	if parsed.LLM.Model != "" {
		c.LLMModel = parsed.LLM.Model
	}
	if parsed.LLM.TimeoutSeconds > 0 {
		c.LLMTimeoutSeconds = parsed.LLM.TimeoutSeconds
	}
	if parsed.Analysis.EvidenceAdequacyThreshold > 0 {
		c.EvidenceAdequacyThreshold = parsed.Analysis.EvidenceAdequacyThreshold
	}
	if parsed.Analysis.FallbackThreshold > 0 {
		c.FallbackThreshold = parsed.Analysis.FallbackThreshold
	}
	if parsed.Analysis.HistoryMaxBoost > 0 {
		c.HistoryMaxBoost = parsed.Analysis.HistoryMaxBoost
	}
	if parsed.Knowledge.CacheSize > 0 {
		c.KnowledgeCacheSize = parsed.Knowledge.CacheSize
	}
	if parsed.Signatures.File != "" {
		c.SignaturesFile = c.resolve(parsed.Signatures.File)
	}
	c.MetricsEnabled = parsed.Metrics.Enabled

	return nil
}

// applyEnv applies FAULTLINE_* environment variable overrides
func (c *Config) applyEnv() {
	if provider := os.Getenv("FAULTLINE_LLM_PROVIDER"); provider != "" {
		c.LLMProvider = provider
	}
	if baseURL := os.Getenv("FAULTLINE_LLM_BASE_URL"); baseURL != "" {
		c.LLMBaseURL = baseURL
	}
	if apiKey := os.Getenv("FAULTLINE_LLM_API_KEY"); apiKey != "" {
		c.LLMAPIKey = apiKey
	}
	if model := os.Getenv("FAULTLINE_LLM_MODEL"); model != "" {
		c.LLMModel = model
	}
	if timeoutStr := os.Getenv("FAULTLINE_LLM_TIMEOUT_SECONDS"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil {
			c.LLMTimeoutSeconds = timeout
		}
	}
	if level := os.Getenv("FAULTLINE_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if logFile := os.Getenv("FAULTLINE_LOG_FILE"); logFile != "" {
		c.LogFile = logFile
	}
	if dbPath := os.Getenv("FAULTLINE_DB_PATH"); dbPath != "" {
		c.DBPath = dbPath
	}
	if threshold := os.Getenv("FAULTLINE_EVIDENCE_ADEQUACY_THRESHOLD"); threshold != "" {
		if v, err := strconv.ParseFloat(threshold, 64); err == nil {
			c.EvidenceAdequacyThreshold = v
		}
	}
	if threshold := os.Getenv("FAULTLINE_FALLBACK_THRESHOLD"); threshold != "" {
		if v, err := strconv.ParseFloat(threshold, 64); err == nil {
			c.FallbackThreshold = v
		}
	}
	if boost := os.Getenv("FAULTLINE_HISTORY_MAX_BOOST"); boost != "" {
		if v, err := strconv.ParseFloat(boost, 64); err == nil {
			c.HistoryMaxBoost = v
		}
	}
	if size := os.Getenv("FAULTLINE_KNOWLEDGE_CACHE_SIZE"); size != "" {
		if v, err := strconv.Atoi(size); err == nil {
			c.KnowledgeCacheSize = v
		}
	}
	if file := os.Getenv("FAULTLINE_SIGNATURES_FILE"); file != "" {
		c.SignaturesFile = file
	}
	if metrics := os.Getenv("FAULTLINE_METRICS_ENABLED"); metrics != "" {
		c.MetricsEnabled = metrics == "true" || metrics == "1"
	}
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.DataDir, path)
}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return baseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// Context key for storing config in context
type configContextKey struct{}

// WithConfig adds the config to the context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey{}, cfg)
}

// FromContext retrieves the config from the context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configContextKey{}).(*Config); ok {
		return cfg
	}
	return nil
}

// Validate verifies the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("database path is empty")
	}
	if c.LLMTimeoutSeconds <= 0 {
		return fmt.Errorf("LLM timeout must be positive")
	}
	if c.EvidenceAdequacyThreshold < 0 || c.EvidenceAdequacyThreshold > 1 {
		return fmt.Errorf("evidence adequacy threshold must be between 0 and 1")
	}
	if c.FallbackThreshold <= 0.5 || c.FallbackThreshold > 1 {
		return fmt.Errorf("fallback threshold must be above 0.5 and at most 1")
	}
	if c.HistoryMaxBoost < 0 || c.HistoryMaxBoost > 0.15 {
		return fmt.Errorf("history max boost must be between 0 and 0.15")
	}
	if c.KnowledgeCacheSize < 0 {
		return fmt.Errorf("knowledge cache size cannot be negative")
	}
	return nil
}
