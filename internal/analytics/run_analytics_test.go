package analytics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/a-marczewski/faultline/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRunMetrics(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "faultline.db"))
	require.NoError(t, err)
	defer db.Close()
	conn := db.GetConnection()

	day1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	insert := func(run, incident string, stage int, status string, ms int64, at time.Time) {
		_, err := conn.Exec(`INSERT INTO run_metrics (run_id, incident_id, stage, status, duration_ms, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			run, incident, stage, status, ms, at)
		require.NoError(t, err)
	}
	insert("r1", "INC-1", 1, "completed", 2, day1)
	insert("r1", "INC-1", 2, "completed", 10, day1)
	insert("r2", "INC-1", 1, "completed", 4, day2)
	insert("r2", "INC-1", 2, "degraded", 30, day2)
	insert("r3", "INC-2", 1, "completed", 3, day2)
	insert("r3", "INC-2", 2, "failed", 5, day2)

	_, err = conn.Exec(`INSERT INTO failure_modes (failure_mode) VALUES ('Bearing failure')`)
	require.NoError(t, err)

	m, err := NewRunAnalytics(conn).GetRunMetrics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, m.TotalRuns)
	assert.Equal(t, 2, m.Incidents)
	assert.Equal(t, 1, m.FailedRuns)

	require.Len(t, m.Stages, 2)
	assert.Equal(t, StageMetrics{Stage: 1, Total: 3, Completed: 3, AvgDurationMs: 3}, m.Stages[0])
	assert.Equal(t, 2, m.Stages[1].Stage)
	assert.Equal(t, 1, m.Stages[1].Degraded)
	assert.Equal(t, 1, m.Stages[1].Failed)
	assert.InDelta(t, 15, m.Stages[1].AvgDurationMs, 1e-9)

	assert.Equal(t, []DailyRunPoint{{Date: "2026-03-01", Runs: 1}, {Date: "2026-03-02", Runs: 2}}, m.DailyRuns)
	assert.Equal(t, LibrarySummary{FailureModes: 1}, m.Library)
}

func TestGetRunMetrics_Empty(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "faultline.db"))
	require.NoError(t, err)
	defer db.Close()

	m, err := NewRunAnalytics(db.GetConnection()).GetRunMetrics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, m.TotalRuns)
	assert.Empty(t, m.Stages)
	assert.Empty(t, m.DailyRuns)
}
