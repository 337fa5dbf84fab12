package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// RunAnalytics summarizes recorded pipeline runs and the stores they feed
type RunAnalytics struct {
	DB *sql.DB
}

// NewRunAnalytics creates a new RunAnalytics instance
func NewRunAnalytics(db *sql.DB) *RunAnalytics {
	return &RunAnalytics{
		DB: db,
	}
}

// RunMetrics represents pipeline run metrics
type RunMetrics struct {
	TotalRuns  int             `json:"total_runs"`
	Incidents  int             `json:"incidents"`
	FailedRuns int             `json:"failed_runs"`
	Stages     []StageMetrics  `json:"stages"`
	DailyRuns  []DailyRunPoint `json:"daily_runs"`
	Library    LibrarySummary  `json:"library"`
}

// StageMetrics represents outcome counts and timing for one stage
type StageMetrics struct {
	Stage         int     `json:"stage"`
	Total         int     `json:"total"`
	Completed     int     `json:"completed"`
	Degraded      int     `json:"degraded"`
	Skipped       int     `json:"skipped"`
	Failed        int     `json:"failed"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

// DailyRunPoint is the number of runs started on one day
type DailyRunPoint struct {
	Date string `json:"date"`
	Runs int    `json:"runs"`
}

// LibrarySummary counts the rows of the stores the pipeline reads and writes
type LibrarySummary struct {
	FailureModes       int `json:"failure_modes"`
	HistoricalPatterns int `json:"historical_patterns"`
	PendingProposals   int `json:"pending_proposals"`
	PendingEscalations int `json:"pending_escalations"`
}

// GetRunMetrics calculates and returns run metrics
func (ra *RunAnalytics) GetRunMetrics(ctx context.Context) (*RunMetrics, error) {
	metrics := &RunMetrics{}

	err := ra.DB.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT run_id), COUNT(DISTINCT incident_id)
		FROM run_metrics`).Scan(&metrics.TotalRuns, &metrics.Incidents)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	err = ra.DB.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT run_id) FROM run_metrics WHERE status = 'failed'`).Scan(&metrics.FailedRuns)
	if err != nil {
		return nil, fmt.Errorf("failed to count failed runs: %w", err)
	}

	if metrics.Stages, err = ra.getStageMetrics(ctx); err != nil {
		return nil, fmt.Errorf("failed to get stage metrics: %w", err)
	}
	if metrics.DailyRuns, err = ra.getDailyRuns(ctx); err != nil {
		return nil, fmt.Errorf("failed to get daily runs: %w", err)
	}
	if metrics.Library, err = ra.getLibrarySummary(ctx); err != nil {
		return nil, fmt.Errorf("failed to get library summary: %w", err)
	}

	return metrics, nil
}

func (ra *RunAnalytics) getStageMetrics(ctx context.Context) ([]StageMetrics, error) {
	rows, err := ra.DB.QueryContext(ctx, `
		SELECT
			stage,
			COUNT(*) as total,
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'degraded' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
			AVG(duration_ms)
		FROM run_metrics
		GROUP BY stage
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stages := []StageMetrics{}
	for rows.Next() {
		var s StageMetrics
		if err := rows.Scan(&s.Stage, &s.Total, &s.Completed, &s.Degraded, &s.Skipped, &s.Failed, &s.AvgDurationMs); err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(stages, func(i, j int) bool { return stages[i].Stage < stages[j].Stage })
	return stages, nil
}

// getDailyRuns counts runs per day for the 30 most recent days with runs
func (ra *RunAnalytics) getDailyRuns(ctx context.Context) ([]DailyRunPoint, error) {
	rows, err := ra.DB.QueryContext(ctx, `
		SELECT day, COUNT(*) FROM (
			SELECT run_id, substr(MIN(created_at), 1, 10) as day
			FROM run_metrics
			GROUP BY run_id
		)
		GROUP BY day
		ORDER BY day DESC
		LIMIT 30
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []DailyRunPoint{}
	for rows.Next() {
		var p DailyRunPoint
		if err := rows.Scan(&p.Date, &p.Runs); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Oldest first for display
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points, nil
}

func (ra *RunAnalytics) getLibrarySummary(ctx context.Context) (LibrarySummary, error) {
	var s LibrarySummary
	err := ra.DB.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM failure_modes),
			(SELECT COUNT(*) FROM historical_patterns),
			(SELECT COUNT(*) FROM library_proposals WHERE status = 'pending'),
			(SELECT COUNT(*) FROM escalations WHERE status = 'pending_sme_review')
	`).Scan(&s.FailureModes, &s.HistoricalPatterns, &s.PendingProposals, &s.PendingEscalations)
	return s, err
}
