package workflow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/a-marczewski/faultline/internal/config"
	"github.com/a-marczewski/faultline/internal/fallback"
	"github.com/a-marczewski/faultline/internal/history"
	"github.com/a-marczewski/faultline/internal/knowledge"
	"github.com/a-marczewski/faultline/internal/logging"
	"github.com/a-marczewski/faultline/internal/proposal"
	"github.com/a-marczewski/faultline/internal/recommend"
	"github.com/a-marczewski/faultline/internal/scoring"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Thresholds left unset fall back to the configuration defaults.
const (
	DefaultEvidenceAdequacy  = config.DefaultEvidenceAdequacyThreshold
	DefaultFallbackThreshold = config.DefaultFallbackThreshold
)

var (
	// ErrAllSourcesFailed is returned, wrapped in a stage 5 StageError, when
	// the knowledge store, AI capability and history store all fail in one run.
	ErrAllSourcesFailed = errors.New("knowledge, AI and history sources all failed")
	// ErrNarrativeUnavailable stands in for the AI failure, which the
	// recommendation engine absorbs.
	ErrNarrativeUnavailable = errors.New("AI narrative unavailable")
)

// KnowledgeSource returns the evidence library records for a taxonomy.
type KnowledgeSource interface {
	Lookup(ctx context.Context, tax knowledge.Taxonomy) ([]knowledge.FailureModeRecord, error)
}

// Recommender runs the deterministic recommendation engine.
type Recommender interface {
	Recommend(ctx context.Context, evidence []recommend.EvidenceSummary, equipmentType string) (recommend.Report, error)
}

// HistorySource boosts confidence from past investigations and captures new ones.
type HistorySource interface {
	Boost(ctx context.Context, f history.Features) (history.BoostResult, error)
	Capture(ctx context.Context, in history.CaptureInput) (history.HistoricalPattern, error)
}

// ProposalSink stores library update proposals for review.
type ProposalSink interface {
	Create(ctx context.Context, p proposal.Proposal) (proposal.Proposal, error)
}

// EscalationSink stores SME escalation tickets.
type EscalationSink interface {
	Save(ctx context.Context, t fallback.Ticket) error
}

// Dependencies are the collaborators of an Orchestrator. Knowledge,
// Recommender and History may be nil; a nil source contributes no data.
// Proposals, Escalations and Metrics are optional sinks.
type Dependencies struct {
	Knowledge   KnowledgeSource
	Matcher     knowledge.Matcher
	Scorer      *scoring.Scorer
	Recommender Recommender
	History     HistorySource
	Proposals   ProposalSink
	Escalations EscalationSink
	Metrics     *MetricsWriter
	Runs        *RunStore
	Logger      *zap.Logger
	Now         func() time.Time
	NewID       func() string
}

// Thresholds are the configurable gates of the pipeline, as fractions.
// Fallback is the lower edge of the fallback machine's NORMAL band; runs at
// or above it skip stage 6 and may propose and capture.
type Thresholds struct {
	EvidenceAdequacy float64
	Fallback         float64
}

// Orchestrator runs the nine-stage analysis pipeline.
type Orchestrator struct {
	deps       Dependencies
	thresholds Thresholds
	normal     int
	logger     *zap.Logger
}

// New creates an orchestrator, filling unset dependencies and thresholds
// with defaults.
func New(deps Dependencies, thresholds Thresholds) *Orchestrator {
	if deps.Matcher == nil {
		deps.Matcher = knowledge.KeywordOverlap{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Scorer == nil {
		deps.Scorer = scoring.NewScorer(deps.Logger)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Runs == nil {
		deps.Runs = NewRunStore(deps.Now)
	}
	if thresholds.EvidenceAdequacy <= 0 {
		thresholds.EvidenceAdequacy = DefaultEvidenceAdequacy
	}
	normal := int(math.Round(thresholds.Fallback * 100))
	if normal <= fallback.HypothesisThreshold || normal > 100 {
		thresholds.Fallback = DefaultFallbackThreshold
		normal = fallback.NormalThreshold
	}
	return &Orchestrator{deps: deps, thresholds: thresholds, normal: normal, logger: deps.Logger}
}

// confident reports whether confidence lands in the NORMAL band.
func (o *Orchestrator) confident(confidence int) bool {
	return confidence >= o.normal
}

// loggerFor prefers a logger carried by ctx over the orchestrator's own.
func (o *Orchestrator) loggerFor(ctx context.Context) *zap.Logger {
	if l, ok := logging.LoggerFromContext(ctx); ok {
		return l
	}
	return o.logger
}

// Runs returns the run accumulator store.
func (o *Orchestrator) Runs() *RunStore {
	return o.deps.Runs
}

// run carries the intermediate values of one pipeline execution.
type run struct {
	id         string
	req        AnalyzeRequest
	tax        knowledge.Taxonomy
	narrative  string
	records    []knowledge.FailureModeRecord
	matched    []knowledge.FailureModeRecord
	knowledgeE error
	result     AnalysisResult
	log        *zap.Logger
}

// Analyze runs every stage for req. On a stage failure it returns the
// partial result, tagged with the failed stage, and a *StageError.
func (o *Orchestrator) Analyze(ctx context.Context, req AnalyzeRequest) (AnalysisResult, error) {
	if strings.TrimSpace(req.IncidentID) == "" {
		return AnalysisResult{WorkflowStage: 1}, &StageError{Stage: 1, Err: errors.Join(ErrInvalidRequest, errors.New("incident id is required"))}
	}

	r := &run{
		id:        o.deps.NewID(),
		req:       req,
		tax:       req.Taxonomy(),
		narrative: strings.Join(req.Symptoms, " "),
	}
	r.log = o.loggerFor(ctx).With(
		zap.String("run_id", r.id),
		zap.String("incident_id", req.IncidentID),
	)
	if _, err := o.deps.Runs.Begin(req.IncidentID, r.id); err != nil {
		return AnalysisResult{}, err
	}
	defer o.deps.Runs.Finish(req.IncidentID)

	r.result = AnalysisResult{
		RunID:              r.id,
		IncidentID:         req.IncidentID,
		Candidates:         []scoring.CandidateFailureMode{},
		Eliminated:         []scoring.CandidateFailureMode{},
		RecommendedActions: []RecommendedAction{},
		EvidenceGaps:       []EvidenceGap{},
		Recommendations:    []recommend.Recommendation{},
		Proposals:          []proposal.Proposal{},
	}

	r.log.Info("Analysis started",
		zap.Int("symptoms", len(req.Symptoms)),
		zap.Int("evidence", len(req.Evidence)),
	)

	stages := []func(context.Context, *run) (string, any, error){
		o.intake,
		o.lookup,
		o.hypotheses,
		o.validateEvidence,
		o.score,
		o.escalate,
		o.finalOutput,
		o.propose,
		o.capture,
	}
	for i, fn := range stages {
		n := i + 1
		r.result.WorkflowStage = n
		if err := o.stage(ctx, r, n, fn); err != nil {
			return r.result, err
		}
	}

	r.log.Info("Analysis completed",
		zap.Int("overall_confidence", r.result.OverallConfidence),
		zap.Bool("fallback_applied", r.result.FallbackApplied),
	)
	return r.result, nil
}

func (o *Orchestrator) stage(ctx context.Context, r *run, n int, fn func(context.Context, *run) (string, any, error)) error {
	start := time.Now()
	status, out, err := fn(ctx, r)
	elapsed := time.Since(start)

	rec := StageRecord{Stage: n, Status: status, Duration: elapsed, Output: out}
	if err != nil {
		rec.Status = StageFailed
		rec.Error = err.Error()
	}
	o.deps.Runs.Record(r.req.IncidentID, rec)
	o.deps.Metrics.Write(StageMetric{
		RunID:      r.id,
		IncidentID: r.req.IncidentID,
		Stage:      n,
		Status:     rec.Status,
		DurationMs: elapsed.Milliseconds(),
		CreatedAt:  o.deps.Now(),
	})

	if err != nil {
		r.log.Error("Analysis stage failed",
			zap.Int("stage", n),
			zap.String("stage_name", StageName(n)),
			zap.Error(err),
		)
		var se *StageError
		if errors.As(err, &se) {
			return se
		}
		return &StageError{Stage: n, Err: err}
	}
	return nil
}

// Stage 1.
func (o *Orchestrator) intake(ctx context.Context, r *run) (string, any, error) {
	for i, h := range r.req.Hypotheses {
		if strings.TrimSpace(h.FailureMode) == "" {
			return StageFailed, nil, fmt.Errorf("%w: hypothesis %d has no failure mode", ErrInvalidRequest, i+1)
		}
	}
	tokens := knowledge.Tokenize(r.narrative)
	return StageCompleted, map[string]any{
		"tokens":     tokens,
		"hypotheses": len(r.req.Hypotheses),
	}, nil
}

// Stage 2. An unreachable store is data absence, not a failure.
func (o *Orchestrator) lookup(ctx context.Context, r *run) (string, any, error) {
	if o.deps.Knowledge == nil {
		return StageSkipped, nil, nil
	}
	records, err := o.deps.Knowledge.Lookup(ctx, r.tax)
	if err != nil {
		r.log.Warn("Knowledge store unavailable, continuing without library data",
			zap.Error(err),
		)
		r.knowledgeE = err
		r.degrade("knowledge")
		return StageDegraded, map[string]any{"records": 0}, nil
	}
	r.records = records
	return StageCompleted, map[string]any{"records": len(records)}, nil
}

// Stage 3. Records named by an investigator hypothesis join the keyword
// matches.
func (o *Orchestrator) hypotheses(ctx context.Context, r *run) (string, any, error) {
	r.matched = o.deps.Matcher.Match(r.narrative, r.records)

	named := make(map[string]struct{}, len(r.req.Hypotheses))
	for _, h := range r.req.Hypotheses {
		named[strings.ToLower(strings.TrimSpace(h.FailureMode))] = struct{}{}
	}
	seen := make(map[int64]struct{}, len(r.matched))
	for _, rec := range r.matched {
		seen[rec.ID] = struct{}{}
	}
	added := 0
	for _, rec := range r.records {
		if _, ok := seen[rec.ID]; ok {
			continue
		}
		if _, ok := named[strings.ToLower(strings.TrimSpace(rec.FailureMode))]; ok {
			r.matched = append(r.matched, rec)
			seen[rec.ID] = struct{}{}
			added++
		}
	}
	return StageCompleted, map[string]any{
		"hypotheses":              len(r.matched),
		"investigator_hypotheses": len(r.req.Hypotheses),
		"records_from_hypotheses": added,
	}, nil
}

// Stage 4.
func (o *Orchestrator) validateEvidence(ctx context.Context, r *run) (string, any, error) {
	v, err := ValidateEvidence(r.req.EvidenceItems, r.req.Evidence, o.thresholds.EvidenceAdequacy)
	if err != nil {
		return StageFailed, nil, err
	}
	r.result.EvidenceValidation = v
	if !v.CanProceed {
		r.log.Info("Evidence below adequacy threshold",
			zap.Float64("ratio", v.Ratio),
			zap.Float64("threshold", o.thresholds.EvidenceAdequacy),
			zap.Int("critical_gaps", len(v.CriticalGaps)),
		)
	}
	return StageCompleted, v, nil
}

// Stage 5. The recommendation engine and the history matcher run
// concurrently after scoring.
func (o *Orchestrator) score(ctx context.Context, r *run) (string, any, error) {
	scored := o.deps.Scorer.Score(r.matched, r.tax, r.req.Symptoms)
	r.result.Candidates = scored.Candidates
	r.result.Eliminated = scored.Eliminated

	var (
		report   recommend.Report
		boost    history.BoostResult
		histErr  error
		reported bool
	)
	g, gctx := errgroup.WithContext(ctx)
	if o.deps.Recommender != nil {
		g.Go(func() error {
			var err error
			report, err = o.deps.Recommender.Recommend(gctx, r.req.Evidence, r.req.EquipmentType)
			reported = err == nil
			return err
		})
	}
	if o.deps.History != nil {
		g.Go(func() error {
			features := history.NewFeatures(r.req.IncidentID, r.req.Symptoms, r.equipment())
			boost, histErr = o.deps.History.Boost(gctx, features)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return StageFailed, nil, err
	}

	aiFailed := reported && report.NarrativeDegraded
	if r.knowledgeE != nil && aiFailed && histErr != nil {
		return StageFailed, nil, errors.Join(ErrAllSourcesFailed, r.knowledgeE, ErrNarrativeUnavailable, histErr)
	}

	status := StageCompleted
	if aiFailed {
		r.degrade("ai")
		status = StageDegraded
	}
	if histErr != nil {
		r.log.Warn("Historical patterns unavailable, continuing without boost",
			zap.Error(histErr),
		)
		r.degrade("history")
		status = StageDegraded
		boost = history.BoostResult{}
	}
	if r.knowledgeE != nil {
		status = StageDegraded
	}

	if reported {
		r.result.Recommendations = report.Recommendations
		r.result.EngineConfidence = report.OverallConfidence
		r.result.DeterminismDigest = report.DeterminismDigest
		r.result.Narrative = report.Narrative
	}

	applied := math.Min(math.Max(boost.Boost, 0), history.DefaultMaxBoost)
	insights := boost.Insights
	if insights == nil {
		insights = []string{}
	}
	r.result.HistoricalSupport = HistoricalSupport{
		SimilarPatterns: len(boost.Matches),
		ConfidenceBoost: applied,
		Insights:        insights,
	}
	r.result.OverallConfidence = overallConfidence(r.result.Candidates, r.result.Recommendations, applied)

	return status, map[string]any{
		"candidates":         len(r.result.Candidates),
		"eliminated":         len(r.result.Eliminated),
		"overall_confidence": r.result.OverallConfidence,
		"engine_confidence":  r.result.EngineConfidence,
		"history_boost":      applied,
	}, nil
}

// Stage 6, entered only below the fallback threshold. Investigator
// hypotheses are submitted once the machine asks for them.
func (o *Orchestrator) escalate(ctx context.Context, r *run) (string, any, error) {
	if o.confident(r.result.OverallConfidence) {
		return StageSkipped, nil, nil
	}

	m := fallback.NewMachine(
		fallback.WithNormalThreshold(o.normal),
		fallback.WithClock(o.deps.Now),
		fallback.WithIDGenerator(o.deps.NewID),
		fallback.WithLogger(r.log),
	)
	a, err := m.Evaluate(fallback.Incident{
		ID:             r.req.IncidentID,
		EquipmentGroup: r.req.EquipmentGroup,
		EquipmentType:  r.req.EquipmentType,
	}, r.result.OverallConfidence)
	if err != nil {
		return StageFailed, nil, err
	}
	if a.Ticket != nil && o.deps.Escalations != nil {
		if err := o.deps.Escalations.Save(ctx, *a.Ticket); err != nil {
			return StageFailed, nil, err
		}
	}

	if a.State == fallback.StateHypothesisRequired || a.State == fallback.StateSMEEscalation {
		for _, h := range r.req.Hypotheses {
			steps, err := m.SubmitHypothesis(h)
			if err != nil {
				return StageFailed, nil, err
			}
			a.Hypotheses = append(a.Hypotheses, fallback.HypothesisReview{Hypothesis: h, NextSteps: steps})
		}
	}

	r.result.Fallback = &a
	return StageCompleted, map[string]any{
		"state":      a.State,
		"escalated":  a.Ticket != nil,
		"hypotheses": len(a.Hypotheses),
	}, nil
}

// Stage 7.
func (o *Orchestrator) finalOutput(ctx context.Context, r *run) (string, any, error) {
	r.result.RecommendedActions = recommendedActions(r.result.Candidates)
	r.result.EvidenceGaps = evidenceGaps(r.result.EvidenceValidation, r.result.Candidates, r.req.Evidence)
	return StageCompleted, map[string]any{
		"actions": len(r.result.RecommendedActions),
		"gaps":    len(r.result.EvidenceGaps),
	}, nil
}

// Stage 8. Proposals are pending review and never edit the library here.
func (o *Orchestrator) propose(ctx context.Context, r *run) (string, any, error) {
	if o.deps.Proposals == nil {
		return StageSkipped, nil, nil
	}

	in := proposal.Input{
		IncidentID:       r.req.IncidentID,
		Symptoms:         r.req.Symptoms,
		EquipmentGroup:   r.req.EquipmentGroup,
		EquipmentType:    r.req.EquipmentType,
		EquipmentSubtype: r.req.EquipmentSubtype,
		Taxonomy:         r.tax,
		Confidence:       float64(r.result.OverallConfidence) / 100,
		MinConfidence:    float64(o.normal) / 100,
	}
	if top, ok := r.top(); ok {
		in.Top = &proposal.Candidate{
			RecordID:        top.ID,
			Label:           top.Label,
			RootCause:       top.RootCause,
			ExistingPattern: r.recordPattern(top.ID),
		}
	}

	detected := proposal.Detect(in, o.deps.Now(), o.deps.NewID)
	if len(detected) == 0 {
		return StageSkipped, nil, nil
	}
	for _, p := range detected {
		stored, err := o.deps.Proposals.Create(ctx, p)
		if err != nil {
			return StageFailed, nil, err
		}
		r.result.Proposals = append(r.result.Proposals, stored)
	}
	return StageCompleted, map[string]any{"proposals": len(r.result.Proposals)}, nil
}

// Stage 9. Only confident runs with a leading candidate become patterns.
func (o *Orchestrator) capture(ctx context.Context, r *run) (string, any, error) {
	top, ok := r.top()
	if o.deps.History == nil || !ok || !o.confident(r.result.OverallConfidence) {
		return StageSkipped, nil, nil
	}

	cause := top.RootCause
	if cause == "" {
		cause = top.Label
	}
	files := make([]string, 0, len(r.req.Evidence))
	for _, e := range r.req.Evidence {
		files = append(files, e.FileName)
	}
	sort.Strings(files)

	p, err := o.deps.History.Capture(ctx, history.CaptureInput{
		IncidentID:   r.req.IncidentID,
		Symptoms:     r.req.Symptoms,
		Equipment:    r.equipment(),
		RootCauses:   []string{cause},
		EvidenceUsed: files,
		Confidence:   float64(r.result.OverallConfidence) / 100,
		Resolution:   top.Label,
	})
	if err != nil {
		return StageFailed, nil, err
	}
	r.result.CapturedPatternID = p.ID
	return StageCompleted, map[string]any{"pattern_id": p.ID}, nil
}

func (r *run) degrade(source string) {
	r.result.FallbackApplied = true
	for _, d := range r.result.Degraded {
		if d == source {
			return
		}
	}
	r.result.Degraded = append(r.result.Degraded, source)
}

func (r *run) equipment() history.EquipmentContext {
	return history.EquipmentContext{
		Group:   r.req.EquipmentGroup,
		Type:    r.req.EquipmentType,
		Subtype: r.req.EquipmentSubtype,
	}
}

func (r *run) top() (scoring.CandidateFailureMode, bool) {
	if len(r.result.Candidates) == 0 {
		return scoring.CandidateFailureMode{}, false
	}
	return r.result.Candidates[0], true
}

func (r *run) recordPattern(id int64) string {
	for _, rec := range r.matched {
		if rec.ID == id {
			return rec.FaultSignaturePattern
		}
	}
	return ""
}

// overallConfidence ranks the candidate confidences together with the
// engine's overall confidence, when it matched any signature, and takes their
// rank-weighted mean. The history boost is added in percentage points and the
// result clamped to [0, 100]. No contributors gives 0.
func overallConfidence(candidates []scoring.CandidateFailureMode, recs []recommend.Recommendation, boost float64) int {
	contributors := make([]int, 0, len(candidates)+1)
	for _, c := range candidates {
		contributors = append(contributors, c.Confidence)
	}
	if len(recs) > 0 {
		contributors = append(contributors, recommend.OverallConfidence(recs))
	}
	if len(contributors) == 0 {
		return 0
	}
	sort.Sort(sort.Reverse(sort.IntSlice(contributors)))
	v := scoring.RankWeightedMean(contributors) + int(math.Round(boost*100))
	return max(0, min(100, v))
}
