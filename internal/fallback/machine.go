package fallback

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is a position in the low-confidence state machine.
type State string

const (
	StateNormal             State = "NORMAL"
	StateHypothesisRequired State = "HYPOTHESIS_REQUIRED"
	StateSMEEscalation      State = "SME_ESCALATION"
	StateResolved           State = "RESOLVED"
)

// Confidence bands, in percent.
const (
	NormalThreshold     = 85
	HypothesisThreshold = 50
	CriticalThreshold   = 30
)

var (
	// ErrResolved is returned when a resolved run is driven again.
	ErrResolved = errors.New("fallback run already resolved")
	// ErrNoHypothesisRequested is returned when hypotheses are submitted
	// before the run asked for them.
	ErrNoHypothesisRequested = errors.New("run has not requested hypotheses")
)

func (s State) rank() int {
	switch s {
	case StateHypothesisRequired:
		return 1
	case StateSMEEscalation:
		return 2
	case StateResolved:
		return 3
	default:
		return 0
	}
}

// StateFor maps an aggregate confidence percentage to its target state
// using the default bands.
func StateFor(confidence int) State {
	return stateFor(confidence, NormalThreshold)
}

func stateFor(confidence, normal int) State {
	switch {
	case confidence >= normal:
		return StateNormal
	case confidence >= HypothesisThreshold:
		return StateHypothesisRequired
	default:
		return StateSMEEscalation
	}
}

// Incident is the equipment context the handler needs.
type Incident struct {
	ID             string `json:"incidentId"`
	EquipmentGroup string `json:"equipmentGroup,omitempty"`
	EquipmentType  string `json:"equipmentType,omitempty"`
}

// Assessment is the outcome of evaluating one confidence value.
type Assessment struct {
	State              State              `json:"state"`
	Confidence         int                `json:"confidence"`
	Reason             string             `json:"reason"`
	RequiredActions    []string           `json:"requiredActions"`
	EscalationRequired bool               `json:"escalationRequired"`
	Expertise          []string           `json:"smeExpertise"`
	Prompts            []GuidedStep       `json:"prompts,omitempty"`
	Hypotheses         []HypothesisReview `json:"hypotheses,omitempty"`
	Ticket             *Ticket            `json:"ticket,omitempty"`
}

// Machine drives one analysis run through the fallback states. Transitions
// only move forward. A new Machine starts at NORMAL.
type Machine struct {
	state  State
	normal int
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock sets the clock used for ticket timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithIDGenerator sets the ticket id source.
func WithIDGenerator(newID func() string) Option {
	return func(m *Machine) { m.newID = newID }
}

// WithNormalThreshold moves the lower edge of the NORMAL band to pct.
// Values not above HypothesisThreshold or above 100 are ignored.
func WithNormalThreshold(pct int) Option {
	return func(m *Machine) {
		if pct > HypothesisThreshold && pct <= 100 {
			m.normal = pct
		}
	}
}

// WithLogger sets the machine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMachine creates a machine in the NORMAL state.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		state:  StateNormal,
		normal: NormalThreshold,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StateFor maps confidence to its target state using the machine's bands.
func (m *Machine) StateFor(confidence int) State {
	return stateFor(confidence, m.normal)
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Evaluate advances the machine for confidence (0-100). A lower band than
// the current state never moves the machine back. Entering SME_ESCALATION
// creates exactly one ticket.
func (m *Machine) Evaluate(incident Incident, confidence int) (Assessment, error) {
	if m.state == StateResolved {
		return Assessment{}, ErrResolved
	}
	confidence = max(0, min(100, confidence))

	prev := m.state
	target := m.StateFor(confidence)
	if target.rank() > m.state.rank() {
		m.state = target
	}

	a := Assessment{
		State:              m.state,
		Confidence:         confidence,
		Reason:             LowConfidenceReason(confidence),
		RequiredActions:    RequiredActions(confidence),
		EscalationRequired: m.state == StateSMEEscalation,
		Expertise:          RequiredExpertise(incident),
	}
	if m.state == StateHypothesisRequired || m.state == StateSMEEscalation {
		a.Prompts = GuidedReasoningSteps()
	}
	if m.state == StateSMEEscalation && prev != StateSMEEscalation {
		t := m.newTicket(incident, a)
		a.Ticket = &t
		m.logger.Warn("SME escalation created",
			zap.String("ticket_id", t.ID),
			zap.String("incident_id", incident.ID),
			zap.String("urgency", string(t.Urgency)),
			zap.Int("confidence", confidence),
		)
	}

	if prev != m.state {
		m.logger.Info("Fallback state changed",
			zap.String("incident_id", incident.ID),
			zap.String("from", string(prev)),
			zap.String("to", string(m.state)),
		)
	}
	return a, nil
}

// SubmitHypothesis accepts a human hypothesis and returns the next steps to
// validate it. Only runs that requested hypotheses accept one.
func (m *Machine) SubmitHypothesis(h Hypothesis) ([]string, error) {
	switch m.state {
	case StateHypothesisRequired, StateSMEEscalation:
	case StateResolved:
		return nil, ErrResolved
	default:
		return nil, ErrNoHypothesisRequested
	}
	if h.FailureMode == "" {
		return nil, fmt.Errorf("hypothesis has no failure mode")
	}
	return []string{
		"Collect evidence to support: " + h.FailureMode,
		"Validate reasoning: " + h.Reasoning,
		"Cross-reference with Evidence Library patterns",
		"Document hypothesis validation results",
	}, nil
}

// Resolve moves the machine to its terminal state.
func (m *Machine) Resolve() error {
	if m.state == StateResolved {
		return ErrResolved
	}
	m.state = StateResolved
	return nil
}

func (m *Machine) newTicket(incident Incident, a Assessment) Ticket {
	return Ticket{
		ID:              m.newID(),
		IncidentID:      incident.ID,
		Urgency:         UrgencyFor(a.Confidence),
		Reason:          a.Reason,
		Confidence:      a.Confidence,
		Expertise:       a.Expertise,
		RequiredActions: a.RequiredActions,
		Status:          TicketPending,
		CreatedAt:       m.now().UTC(),
	}
}

// LowConfidenceReason explains a confidence band.
func LowConfidenceReason(confidence int) string {
	switch {
	case confidence < CriticalThreshold:
		return "Insufficient incident description - requires detailed symptom analysis"
	case confidence < HypothesisThreshold:
		return "Missing critical evidence - requires SME expertise and additional data"
	case confidence < 70:
		return "Ambiguous failure patterns - requires human hypothesis validation"
	default:
		return "Limited Evidence Library patterns - requires expert confirmation"
	}
}

// RequiredActions lists the actions for a confidence value. Lower bands
// include every action of the bands above them.
func RequiredActions(confidence int) []string {
	var actions []string
	if confidence < CriticalThreshold {
		actions = append(actions,
			"Gather detailed incident description with specific symptoms",
			"Collect additional operational context and timeline",
			"Interview operators and maintenance personnel",
		)
	}
	if confidence < HypothesisThreshold {
		actions = append(actions,
			"Escalate to Subject Matter Expert (SME)",
			"Request critical evidence collection",
			"Perform detailed equipment inspection",
		)
	}
	if confidence < 70 {
		actions = append(actions,
			"Input human investigator hypotheses",
			"Validate AI suggestions with engineering expertise",
			"Cross-reference with historical failure patterns",
		)
	}
	return append(actions,
		"Document evidence gaps and limitations",
		"Consider interim corrective actions",
	)
}

// RequiredExpertise derives SME roles from the equipment names.
func RequiredExpertise(incident Incident) []string {
	var expertise []string
	if incident.EquipmentGroup != "" {
		expertise = append(expertise, incident.EquipmentGroup+" Equipment Specialist")
	}
	if incident.EquipmentType != "" {
		expertise = append(expertise, incident.EquipmentType+" Design Engineer")
	}
	return append(expertise, "Reliability Engineer", "Maintenance Specialist", "Process Safety Engineer")
}
