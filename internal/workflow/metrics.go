package workflow

import (
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const metricsBufferSize = 100

// StageMetric is the timing of one stage of one run.
type StageMetric struct {
	RunID      string
	IncidentID string
	Stage      int
	Status     string
	DurationMs int64
	CreatedAt  time.Time
}

// MetricsWriter writes stage metrics to the run_metrics table in the
// background.
type MetricsWriter struct {
	db        *sql.DB
	logger    *zap.Logger
	metrics   chan StageMetric
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewMetricsWriter starts a writer. A nil db returns a nil writer, which
// accepts and drops every metric.
func NewMetricsWriter(db *sql.DB, logger *zap.Logger) *MetricsWriter {
	if db == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mw := &MetricsWriter{
		db:      db,
		logger:  logger,
		metrics: make(chan StageMetric, metricsBufferSize),
		done:    make(chan struct{}),
	}

	mw.wg.Add(1)
	go mw.writeLoop()

	return mw
}

// Write queues a metric without blocking. Metrics are dropped when the
// buffer is full or the writer is closed.
func (mw *MetricsWriter) Write(metric StageMetric) {
	if mw == nil || mw.closed.Load() {
		return
	}

	select {
	case mw.metrics <- metric:
	default:
		mw.logger.Debug("Metrics buffer full, dropping stage metric",
			zap.String("run_id", metric.RunID),
			zap.Int("stage", metric.Stage),
		)
	}
}

// Close stops the writer after flushing queued metrics.
func (mw *MetricsWriter) Close() {
	if mw == nil {
		return
	}

	mw.closeOnce.Do(func() {
		mw.closed.Store(true)
		close(mw.done)
	})
	mw.wg.Wait()
}

func (mw *MetricsWriter) writeLoop() {
	defer mw.wg.Done()

	for {
		select {
		case metric := <-mw.metrics:
			mw.writeMetric(metric)
		case <-mw.done:
			for {
				select {
				case metric := <-mw.metrics:
					mw.writeMetric(metric)
				default:
					return
				}
			}
		}
	}
}

func (mw *MetricsWriter) writeMetric(metric StageMetric) {
	_, err := mw.db.Exec(`
		INSERT INTO run_metrics (run_id, incident_id, stage, status, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, metric.RunID, metric.IncidentID, metric.Stage, metric.Status, metric.DurationMs, metric.CreatedAt.UTC())
	if err != nil {
		mw.logger.Error("Failed to write stage metric",
			zap.Error(err),
			zap.String("run_id", metric.RunID),
			zap.Int("stage", metric.Stage),
		)
	}
}
