package workflow

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrRunInProgress is returned when an incident already has an active run.
	ErrRunInProgress = errors.New("analysis already running for incident")
	// ErrInvalidRequest is returned for requests the pipeline cannot start.
	ErrInvalidRequest = errors.New("invalid analysis request")
)

// StageError aborts a run and names the stage that failed.
type StageError struct {
	Stage int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s) failed: %v", e.Stage, StageName(e.Stage), e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageName returns the display name of a pipeline stage.
func StageName(stage int) string {
	switch stage {
	case 1:
		return "symptom intake"
	case 2:
		return "knowledge lookup"
	case 3:
		return "hypothesis generation"
	case 4:
		return "evidence validation"
	case 5:
		return "scoring"
	case 6:
		return "low-confidence fallback"
	case 7:
		return "final output"
	case 8:
		return "library update proposals"
	case 9:
		return "historical capture"
	default:
		return "unknown"
	}
}

// Stage outcomes recorded in the accumulator.
const (
	StageCompleted = "completed"
	StageDegraded  = "degraded"
	StageSkipped   = "skipped"
	StageFailed    = "failed"
)

// StageRecord is one accumulator entry.
type StageRecord struct {
	Stage    int           `json:"stage"`
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
	Output   any           `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Run is the per-incident stage accumulator.
type Run struct {
	ID         string              `json:"runId"`
	IncidentID string              `json:"incidentId"`
	StartedAt  time.Time           `json:"startedAt"`
	FinishedAt time.Time           `json:"finishedAt,omitempty"`
	Stages     map[int]StageRecord `json:"stages"`
}

// StageNumbers returns the recorded stages in order.
func (r Run) StageNumbers() []int {
	out := make([]int, 0, len(r.Stages))
	for n := range r.Stages {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// RunStore holds run accumulators keyed by incident id. Runs for different
// incidents may proceed concurrently; a second concurrent run of the same
// incident is rejected.
type RunStore struct {
	mu     sync.Mutex
	active map[string]*Run
	last   map[string]Run
	now    func() time.Time
}

// NewRunStore creates an empty store. A nil clock uses time.Now.
func NewRunStore(now func() time.Time) *RunStore {
	if now == nil {
		now = time.Now
	}
	return &RunStore{
		active: make(map[string]*Run),
		last:   make(map[string]Run),
		now:    now,
	}
}

// Begin opens a run for incidentID.
func (s *RunStore) Begin(incidentID, runID string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[incidentID]; busy {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, incidentID)
	}
	r := &Run{
		ID:         runID,
		IncidentID: incidentID,
		StartedAt:  s.now(),
		Stages:     make(map[int]StageRecord),
	}
	s.active[incidentID] = r
	return r, nil
}

// Record appends a stage record to an active run.
func (s *RunStore) Record(incidentID string, rec StageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.active[incidentID]; ok {
		rec.Name = StageName(rec.Stage)
		r.Stages[rec.Stage] = rec
	}
}

// Finish closes the active run and keeps it as the incident's last run.
func (s *RunStore) Finish(incidentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.active[incidentID]
	if !ok {
		return
	}
	r.FinishedAt = s.now()
	s.last[incidentID] = cloneRun(*r)
	delete(s.active, incidentID)
}

// Last returns a copy of the most recent finished run for incidentID.
func (s *RunStore) Last(incidentID string) (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.last[incidentID]
	if !ok {
		return Run{}, false
	}
	return cloneRun(r), true
}

func cloneRun(r Run) Run {
	stages := make(map[int]StageRecord, len(r.Stages))
	for k, v := range r.Stages {
		stages[k] = v
	}
	r.Stages = stages
	return r
}
