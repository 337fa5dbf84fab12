package llm

import (
	"context"
	"sync"
	"time"

	"github.com/a-marczewski/faultline/internal/tokens"
)

// Stats summarizes completion calls made through an instrumented Completer.
type Stats struct {
	Calls        int           `json:"calls"`
	Failures     int           `json:"failures"`
	TotalLatency time.Duration `json:"totalLatency"`
	AvgLatency   time.Duration `json:"avgLatency"`
	PromptTokens int           `json:"promptTokens"`
	OutputTokens int           `json:"outputTokens"`
	LastError    string        `json:"lastError,omitempty"`
	LastUpdated  time.Time     `json:"lastUpdated"`
}

// StatsTracker tracks completion statistics in memory
type StatsTracker struct {
	mu           sync.RWMutex
	calls        int
	failures     int
	totalLatency time.Duration
	promptTokens int
	outputTokens int
	lastError    string
	lastUpdated  time.Time
}

// NewStatsTracker creates a new stats tracker
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{
		lastUpdated: time.Now(),
	}
}

// Record records one completed call with its estimated token usage.
func (s *StatsTracker) Record(latency time.Duration, promptTokens, outputTokens int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.totalLatency += latency
	s.promptTokens += promptTokens
	s.outputTokens += outputTokens
	if err != nil {
		s.failures++
		s.lastError = err.Error()
	}
	s.lastUpdated = time.Now()
}

// GetStats returns the current statistics
func (s *StatsTracker) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var avg time.Duration
	if s.calls > 0 {
		avg = s.totalLatency / time.Duration(s.calls)
	}

	return Stats{
		Calls:        s.calls,
		Failures:     s.failures,
		TotalLatency: s.totalLatency,
		AvgLatency:   avg,
		PromptTokens: s.promptTokens,
		OutputTokens: s.outputTokens,
		LastError:    s.lastError,
		LastUpdated:  s.lastUpdated,
	}
}

// Reset clears all statistics
func (s *StatsTracker) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = 0
	s.failures = 0
	s.totalLatency = 0
	s.promptTokens = 0
	s.outputTokens = 0
	s.lastError = ""
	s.lastUpdated = time.Now()
}

type instrumented struct {
	next  Completer
	stats *StatsTracker
}

// Instrument wraps c so every call is recorded in stats.
func Instrument(c Completer, stats *StatsTracker) Completer {
	if stats == nil {
		return c
	}
	return &instrumented{next: c, stats: stats}
}

func (i *instrumented) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := i.next.Complete(ctx, prompt)
	i.stats.Record(time.Since(start), tokens.Estimate(prompt), tokens.Estimate(out), err)
	return out, err
}
