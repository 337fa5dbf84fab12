package doctor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/a-marczewski/faultline/internal/config"
	"github.com/a-marczewski/faultline/internal/llm"
	"github.com/a-marczewski/faultline/internal/recommend"
	"github.com/a-marczewski/faultline/internal/storage"
)

// Diagnostics holds diagnostic information
type Diagnostics struct {
	Checks []CheckResult `json:"checks"`
	Issues []string      `json:"issues"`
	Status string        `json:"status"`
}

// CheckResult represents the result of a single check
type CheckResult struct {
	Name     string `json:"name"`
	Status   string `json:"status"` // "pass", "fail", "warn"
	Message  string `json:"message"`
	Severity string `json:"severity"` // "info", "warning", "error"
}

// Runner runs diagnostic checks
type Runner struct {
	config   *config.Config
	db       *storage.DB
	registry *llm.Registry
}

// NewRunner creates a new diagnostic runner
func NewRunner(cfg *config.Config, db *storage.DB, registry *llm.Registry) *Runner {
	return &Runner{
		config:   cfg,
		db:       db,
		registry: registry,
	}
}

// RunAll runs all diagnostic checks
func (d *Runner) RunAll(ctx context.Context) *Diagnostics {
	var results []CheckResult
	var issues []string

	results = append(results, d.checkConfiguration()...)
	results = append(results, d.checkDataDirectory()...)
	results = append(results, d.checkDatabase(ctx)...)
	results = append(results, d.checkSignatures()...)
	results = append(results, d.checkLLMProvider(ctx)...)

	for _, result := range results {
		if result.Status == "fail" {
			issues = append(issues, result.Message)
		}
	}

	status := "healthy"
	if len(issues) > 0 {
		status = "issues_found"
	}

	return &Diagnostics{
		Checks: results,
		Issues: issues,
		Status: status,
	}
}

func pass(name, msg string) CheckResult {
	return CheckResult{Name: name, Status: "pass", Message: msg, Severity: "info"}
}

func warn(name, msg string) CheckResult {
	return CheckResult{Name: name, Status: "warn", Message: msg, Severity: "warning"}
}

func fail(name, msg string) CheckResult {
	return CheckResult{Name: name, Status: "fail", Message: msg, Severity: "error"}
}

func (d *Runner) checkConfiguration() []CheckResult {
	if err := d.config.Validate(); err != nil {
		return []CheckResult{fail("configuration_validation", fmt.Sprintf("Configuration validation failed: %v", err))}
	}
	return []CheckResult{pass("configuration_validation", "Configuration is valid")}
}

// checkDataDirectory checks the .faultline directory and its subdirectories
func (d *Runner) checkDataDirectory() []CheckResult {
	dataDir := d.config.DataDir

	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		return []CheckResult{fail("data_directory_exists", fmt.Sprintf("Data directory does not exist: %s", dataDir))}
	} else if err != nil {
		return []CheckResult{fail("data_directory_access", fmt.Sprintf("Cannot access data directory: %v", err))}
	}

	var results []CheckResult
	if err := testDirectoryPermissions(dataDir); err != nil {
		results = append(results, fail("data_directory_permissions", fmt.Sprintf("Insufficient permissions for data directory: %v", err)))
	} else {
		results = append(results, pass("data_directory_permissions", "Sufficient permissions for data directory"))
	}

	for _, subdir := range []string{filepath.Join(dataDir, "logs"), filepath.Join(dataDir, "store")} {
		name := filepath.Base(subdir)
		if _, err := os.Stat(subdir); os.IsNotExist(err) {
			results = append(results, warn(name+"_exists", fmt.Sprintf("Subdirectory does not exist: %s", subdir)))
		} else if err != nil {
			results = append(results, fail(name+"_access", fmt.Sprintf("Cannot access subdirectory: %v", err)))
		} else {
			results = append(results, pass(name+"_access", fmt.Sprintf("Accessible subdirectory: %s", subdir)))
		}
	}
	return results
}

func testDirectoryPermissions(dir string) error {
	testFile := filepath.Join(dir, ".permission_test")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		return err
	}
	return os.Remove(testFile)
}

// checkDatabase checks connectivity, schema version, integrity and whether
// the evidence library holds any records
func (d *Runner) checkDatabase(ctx context.Context) []CheckResult {
	if d.db == nil {
		return []CheckResult{fail("database_connectivity", "Database is not open")}
	}
	conn := d.db.GetConnection()

	if err := conn.PingContext(ctx); err != nil {
		return []CheckResult{fail("database_connectivity", fmt.Sprintf("Cannot connect to database: %v", err))}
	}
	results := []CheckResult{pass("database_connectivity", "Database connection successful")}

	var version int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		results = append(results, fail("database_schema", fmt.Sprintf("Cannot read schema version: %v", err)))
	} else if version != storage.SchemaVersion {
		results = append(results, fail("database_schema", fmt.Sprintf("Schema version %d, expected %d", version, storage.SchemaVersion)))
	} else {
		results = append(results, pass("database_schema", fmt.Sprintf("Schema version %d", version)))
	}

	var integrity string
	if err := conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		results = append(results, fail("database_integrity", fmt.Sprintf("Database integrity check failed: %v", err)))
	} else if integrity != "ok" {
		results = append(results, fail("database_integrity", fmt.Sprintf("Database integrity check reported: %s", integrity)))
	} else {
		results = append(results, pass("database_integrity", "Database integrity check passed"))
	}

	var records int
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM failure_modes").Scan(&records); err != nil {
		results = append(results, fail("evidence_library", fmt.Sprintf("Cannot count evidence library records: %v", err)))
	} else if records == 0 {
		results = append(results, warn("evidence_library", "Evidence library is empty; run 'faultline import' to load records"))
	} else {
		results = append(results, pass("evidence_library", fmt.Sprintf("Evidence library holds %d records", records)))
	}

	return results
}

func (d *Runner) checkSignatures() []CheckResult {
	if d.config.SignaturesFile == "" {
		return []CheckResult{pass("fault_signatures", fmt.Sprintf("Using %d built-in fault signatures", len(recommend.DefaultSignatures())))}
	}
	sigs, err := recommend.LoadSignatures(d.config.SignaturesFile)
	if err != nil {
		return []CheckResult{fail("fault_signatures", fmt.Sprintf("Cannot load fault signatures: %v", err))}
	}
	return []CheckResult{pass("fault_signatures", fmt.Sprintf("Loaded %d fault signatures from %s", len(sigs), d.config.SignaturesFile))}
}

// checkLLMProvider resolves the configured provider without calling it
func (d *Runner) checkLLMProvider(ctx context.Context) []CheckResult {
	if d.registry == nil {
		return nil
	}
	_, err := d.registry.Resolve(ctx, d.config.LLMProvider, llm.Settings{
		BaseURL: d.config.LLMBaseURL,
		APIKey:  d.config.LLMAPIKey,
		Model:   d.config.LLMModel,
	})
	if err != nil {
		return []CheckResult{fail("llm_provider", fmt.Sprintf("Cannot initialize LLM provider %q: %v", d.config.LLMProvider, err))}
	}
	if d.config.LLMProvider == "" || d.config.LLMProvider == "none" {
		return []CheckResult{warn("llm_provider", "No LLM provider configured; narratives are disabled")}
	}
	return []CheckResult{pass("llm_provider", fmt.Sprintf("LLM provider %q initialized", d.config.LLMProvider))}
}

// PrintReport writes a formatted diagnostic report
func (d *Diagnostics) PrintReport(w io.Writer) {
	fmt.Fprintf(w, "=== faultline Diagnostic Report ===\n")
	fmt.Fprintf(w, "Status: %s\n\n", d.Status)

	if len(d.Issues) > 0 {
		fmt.Fprintf(w, "Issues Found:\n")
		for i, issue := range d.Issues {
			fmt.Fprintf(w, "  %d. %s\n", i+1, issue)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Detailed Checks:\n")
	for _, check := range d.Checks {
		statusSymbol := "✓"
		if check.Status == "fail" {
			statusSymbol = "✗"
		} else if check.Status == "warn" {
			statusSymbol = "!"
		}
		fmt.Fprintf(w, "  %s %s: %s\n", statusSymbol, check.Name, check.Message)
	}

	fmt.Fprintln(w, "\nRecommendations:")
	if len(d.Issues) == 0 {
		fmt.Fprintln(w, "  ✓ System is operating normally")
	} else {
		fmt.Fprintln(w, "  • Check the .faultline directory permissions")
		fmt.Fprintln(w, "  • Verify database file is not corrupted")
		fmt.Fprintln(w, "  • Review configuration settings")
	}
}
