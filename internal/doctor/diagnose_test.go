package doctor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/a-marczewski/faultline/internal/config"
	"github.com/a-marczewski/faultline/internal/llm"
	"github.com/a-marczewski/faultline/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*config.Config, *storage.DB) {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, config.DataDirName)
	require.NoError(t, config.EnsureDataDirs(dataDir))

	cfg := config.Default(root, dataDir)
	db, err := storage.NewDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return cfg, db
}

func byName(d *Diagnostics) map[string]CheckResult {
	out := make(map[string]CheckResult, len(d.Checks))
	for _, c := range d.Checks {
		out[c.Name] = c
	}
	return out
}

func TestRunAll_FreshInstall(t *testing.T) {
	cfg, db := setup(t)

	d := NewRunner(cfg, db, llm.NewRegistry()).RunAll(context.Background())
	assert.Equal(t, "healthy", d.Status)
	assert.Empty(t, d.Issues)

	checks := byName(d)
	assert.Equal(t, "pass", checks["database_schema"].Status)
	assert.Equal(t, "pass", checks["database_integrity"].Status)
	assert.Equal(t, "warn", checks["evidence_library"].Status)
	assert.Equal(t, "warn", checks["llm_provider"].Status)
	assert.Equal(t, "pass", checks["fault_signatures"].Status)
}

func TestRunAll_ReportsFailures(t *testing.T) {
	cfg, db := setup(t)
	cfg.LLMProvider = "telegraph"
	cfg.SignaturesFile = filepath.Join(t.TempDir(), "missing.yaml")
	cfg.FallbackThreshold = 1.5

	d := NewRunner(cfg, db, llm.NewRegistry()).RunAll(context.Background())
	assert.Equal(t, "issues_found", d.Status)
	assert.Len(t, d.Issues, 3)

	checks := byName(d)
	assert.Equal(t, "fail", checks["configuration_validation"].Status)
	assert.Equal(t, "fail", checks["fault_signatures"].Status)
	assert.Equal(t, "fail", checks["llm_provider"].Status)

	var buf bytes.Buffer
	d.PrintReport(&buf)
	assert.Contains(t, buf.String(), "Status: issues_found")
	assert.Contains(t, buf.String(), "✗ llm_provider")
}

func TestRunAll_MissingDataDirectory(t *testing.T) {
	cfg, db := setup(t)
	require.NoError(t, os.RemoveAll(filepath.Join(cfg.DataDir, "logs")))

	checks := byName(NewRunner(cfg, db, nil).RunAll(context.Background()))
	assert.Equal(t, "warn", checks["logs_exists"].Status)
	assert.Equal(t, "pass", checks["store_access"].Status)
	assert.NotContains(t, checks, "llm_provider")
}
