package proposal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/a-marczewski/faultline/internal/knowledge"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned for an unknown proposal id.
	ErrNotFound = errors.New("proposal not found")
	// ErrAlreadyReviewed is returned when a decided proposal is reviewed again.
	ErrAlreadyReviewed = errors.New("proposal already reviewed")
)

// Decision is an admin review outcome.
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

// Library is the knowledge-base write path approved proposals are applied to.
type Library interface {
	Get(ctx context.Context, id int64) (knowledge.FailureModeRecord, error)
	Import(ctx context.Context, records []knowledge.FailureModeRecord) (int, error)
}

// envelope is the stored proposed_changes column. The same proposal for the
// same incident serializes identically, which keeps Create idempotent.
type envelope struct {
	Changes Changes `json:"changes"`
	Impact  Impact  `json:"impact"`
}

// SQLiteStore keeps proposals in the library_proposals table.
type SQLiteStore struct {
	db      *sql.DB
	library Library
	now     func() time.Time
	logger  *zap.Logger
}

// NewSQLiteStore creates a store. library may be nil, in which case approval
// only records the decision.
func NewSQLiteStore(db *sql.DB, library Library, logger *zap.Logger) *SQLiteStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteStore{db: db, library: library, now: time.Now, logger: logger}
}

// Create stores p as pending. A proposal identical to an existing one for
// the same incident returns the stored proposal instead.
func (s *SQLiteStore) Create(ctx context.Context, p Proposal) (Proposal, error) {
	changes, err := json.Marshal(envelope{Changes: p.Changes, Impact: p.Impact})
	if err != nil {
		return Proposal{}, err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO library_proposals (
			id, incident_id, proposal_type, proposed_changes, rationale, confidence, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.IncidentID, string(p.Type), string(changes), p.Rationale, p.Confidence, string(StatusPending), p.CreatedAt)
	if err != nil {
		return Proposal{}, fmt.Errorf("failed to store proposal: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM library_proposals
		WHERE incident_id = ? AND proposal_type = ? AND proposed_changes = ?`,
		p.IncidentID, string(p.Type), string(changes))
	return scanProposal(row)
}

// Get returns one proposal.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Proposal, error) {
	p, err := scanProposal(s.db.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM library_proposals WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Proposal{}, ErrNotFound
	}
	return p, err
}

// List returns proposals with status, oldest first. An empty status lists all.
func (s *SQLiteStore) List(ctx context.Context, status Status) ([]Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM library_proposals`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query proposals: %w", err)
	}
	defer rows.Close()

	out := []Proposal{}
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Review records an admin decision. Approved proposals are applied to the
// library before the decision is stored.
func (s *SQLiteStore) Review(ctx context.Context, id string, decision Decision, reviewer string) (Proposal, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return Proposal{}, err
	}
	if p.Status != StatusPending {
		return Proposal{}, ErrAlreadyReviewed
	}

	var status Status
	switch decision {
	case Approve:
		status = StatusApproved
		if err := s.apply(ctx, p); err != nil {
			return Proposal{}, fmt.Errorf("failed to apply proposal %s: %w", id, err)
		}
	case Reject:
		status = StatusRejected
	default:
		return Proposal{}, fmt.Errorf("unknown review decision %q", decision)
	}

	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE library_proposals SET status = ?, reviewed_by = ?, reviewed_at = ? WHERE id = ? AND status = ?
	`, string(status), reviewer, now, id, string(StatusPending))
	if err != nil {
		return Proposal{}, fmt.Errorf("failed to record review of %s: %w", id, err)
	}

	p.Status = status
	p.ReviewedBy = reviewer
	p.ReviewedAt = &now
	s.logger.Info("Library proposal reviewed",
		zap.String("proposal_id", id),
		zap.String("type", string(p.Type)),
		zap.String("decision", string(decision)),
		zap.String("reviewer", reviewer),
	)
	return p, nil
}

func (s *SQLiteStore) apply(ctx context.Context, p Proposal) error {
	if s.library == nil {
		return nil
	}
	switch p.Type {
	case TypeNewFaultSignature:
		_, err := s.library.Import(ctx, []knowledge.FailureModeRecord{{
			EquipmentGroupID:      p.Changes.Taxonomy.GroupID,
			EquipmentTypeID:       p.Changes.Taxonomy.TypeID,
			EquipmentSubtypeID:    p.Changes.Taxonomy.SubtypeID,
			FailureMode:           p.Changes.FailureMode,
			FaultSignaturePattern: p.Changes.FaultSignaturePattern,
			PrimaryRootCause:      p.Changes.PrimaryRootCause,
			ConfidenceHint:        p.Changes.ConfidenceLevel,
		}})
		return err
	case TypePatternEnhancement:
		record, err := s.library.Get(ctx, p.Changes.RecordID)
		if err != nil {
			return err
		}
		record.FaultSignaturePattern = p.Changes.FaultSignaturePattern
		_, err = s.library.Import(ctx, []knowledge.FailureModeRecord{record})
		return err
	default:
		return fmt.Errorf("unknown proposal type %q", p.Type)
	}
}

const proposalColumns = `id, incident_id, proposal_type, proposed_changes, rationale, confidence,
	status, reviewed_by, reviewed_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(row rowScanner) (Proposal, error) {
	var p Proposal
	var typ, changes, status string
	var reviewedBy sql.NullString
	var reviewedAt sql.NullTime
	err := row.Scan(&p.ID, &p.IncidentID, &typ, &changes, &p.Rationale, &p.Confidence,
		&status, &reviewedBy, &reviewedAt, &p.CreatedAt)
	if err != nil {
		return Proposal{}, err
	}
	var env envelope
	if err := json.Unmarshal([]byte(changes), &env); err != nil {
		return Proposal{}, fmt.Errorf("proposal %s has malformed changes: %w", p.ID, err)
	}
	p.Type = Type(typ)
	p.Status = Status(status)
	p.Changes = env.Changes
	p.Impact = env.Impact
	p.ReviewedBy = reviewedBy.String
	if reviewedAt.Valid {
		t := reviewedAt.Time
		p.ReviewedAt = &t
	}
	return p, nil
}
