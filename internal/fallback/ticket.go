package fallback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Urgency of an escalation ticket.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
)

// TicketPending is the status of a ticket awaiting SME review.
const TicketPending = "pending_sme_review"

// Ticket is an SME escalation request.
type Ticket struct {
	ID              string    `json:"id"`
	IncidentID      string    `json:"incidentId"`
	Urgency         Urgency   `json:"urgency"`
	Reason          string    `json:"reason"`
	Confidence      int       `json:"confidence"`
	Expertise       []string  `json:"requiredExpertise"`
	RequiredActions []string  `json:"requiredActions"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
}

// UrgencyFor returns critical below 30 and high otherwise.
func UrgencyFor(confidence int) Urgency {
	if confidence < CriticalThreshold {
		return UrgencyCritical
	}
	return UrgencyHigh
}

// TicketStore persists escalation tickets in the escalations table.
type TicketStore struct {
	db *sql.DB
}

// NewTicketStore creates a store over an already migrated database.
func NewTicketStore(db *sql.DB) *TicketStore {
	return &TicketStore{db: db}
}

// Save inserts t. Saving the same ticket id twice is a no-op.
func (s *TicketStore) Save(ctx context.Context, t Ticket) error {
	expertise, err := json.Marshal(t.Expertise)
	if err != nil {
		return err
	}
	actions, err := json.Marshal(t.RequiredActions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO escalations (
			id, incident_id, urgency, reason, confidence, expertise, required_actions, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.IncidentID, string(t.Urgency), t.Reason, t.Confidence, string(expertise), string(actions), t.Status, t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save escalation %s: %w", t.ID, err)
	}
	return nil
}

// List returns tickets with status, newest first. An empty status lists all.
func (s *TicketStore) List(ctx context.Context, status string) ([]Ticket, error) {
	query := `SELECT id, incident_id, urgency, reason, confidence, expertise, required_actions, status, created_at FROM escalations`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query escalations: %w", err)
	}
	defer rows.Close()

	tickets := []Ticket{}
	for rows.Next() {
		var t Ticket
		var urgency, expertise, actions string
		var confidence float64
		if err := rows.Scan(&t.ID, &t.IncidentID, &urgency, &t.Reason, &confidence, &expertise, &actions, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Urgency = Urgency(urgency)
		t.Confidence = int(confidence)
		if err := json.Unmarshal([]byte(expertise), &t.Expertise); err != nil {
			return nil, fmt.Errorf("escalation %s has malformed expertise: %w", t.ID, err)
		}
		if err := json.Unmarshal([]byte(actions), &t.RequiredActions); err != nil {
			return nil, fmt.Errorf("escalation %s has malformed actions: %w", t.ID, err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}
