package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

const recordColumns = `id, equipment_group_id, equipment_type_id, equipment_subtype_id, risk_ranking_id,
	failure_code, failure_mode, fault_signature_pattern, elimination_condition, elimination_rationale,
	confidence_hint, required_trend_evidence, required_attachments, investigator_questions,
	primary_root_cause, contributing_factor`

// SQLiteStore reads the evidence library from the failure_modes table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store over an already migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// All returns every record ordered by id.
func (s *SQLiteStore) All(ctx context.Context) ([]FailureModeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM failure_modes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query failure modes: %w", err)
	}
	defer rows.Close()

	var records []FailureModeRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Get returns one record by id.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (FailureModeRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM failure_modes WHERE id = ?`, id)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return FailureModeRecord{}, ErrNotFound
	}
	return r, err
}

// Import inserts records in a single transaction and returns how many were
// written. Records with a non-zero id replace the existing row.
func (s *SQLiteStore) Import(ctx context.Context, records []FailureModeRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO failure_modes (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i, r := range records {
		if r.FailureMode == "" {
			return 0, fmt.Errorf("record %d has no failure mode", i)
		}
		var id any
		if r.ID != 0 {
			id = r.ID
		}
		_, err := stmt.ExecContext(ctx, id,
			nullInt(r.EquipmentGroupID), nullInt(r.EquipmentTypeID), nullInt(r.EquipmentSubtypeID), nullInt(r.RiskRankingID),
			r.FailureCode, r.FailureMode, r.FaultSignaturePattern, r.EliminationCondition, r.EliminationRationale,
			r.ConfidenceHint, r.RequiredTrendEvidence, r.RequiredAttachments, r.InvestigatorQuestions,
			r.PrimaryRootCause, r.ContributingFactor,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to import record %q: %w", r.FailureMode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(records), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (FailureModeRecord, error) {
	var r FailureModeRecord
	var group, typ, subtype, risk sql.NullInt64
	err := row.Scan(&r.ID, &group, &typ, &subtype, &risk,
		&r.FailureCode, &r.FailureMode, &r.FaultSignaturePattern, &r.EliminationCondition, &r.EliminationRationale,
		&r.ConfidenceHint, &r.RequiredTrendEvidence, &r.RequiredAttachments, &r.InvestigatorQuestions,
		&r.PrimaryRootCause, &r.ContributingFactor,
	)
	if err != nil {
		return FailureModeRecord{}, err
	}
	r.EquipmentGroupID = fromNull(group)
	r.EquipmentTypeID = fromNull(typ)
	r.EquipmentSubtypeID = fromNull(subtype)
	r.RiskRankingID = fromNull(risk)
	return r, nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func fromNull(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return ID(v.Int64)
}

// MemoryStore is an in-memory Store, used by tests and embedded callers.
type MemoryStore struct {
	mu      sync.RWMutex
	records []FailureModeRecord
	err     error
}

// NewMemoryStore creates a store holding a copy of records.
func NewMemoryStore(records ...FailureModeRecord) *MemoryStore {
	s := &MemoryStore{}
	s.Set(records...)
	return s
}

// Set replaces the stored records.
func (s *MemoryStore) Set(records ...FailureModeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append([]FailureModeRecord(nil), records...)
}

// FailWith makes All return err until cleared with nil.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// All returns a copy of the stored records.
func (s *MemoryStore) All(ctx context.Context) ([]FailureModeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]FailureModeRecord(nil), s.records...), nil
}
