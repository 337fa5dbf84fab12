package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const patternColumns = `id, incident_id, symptoms, equipment_group, equipment_type, equipment_subtype,
	root_causes, evidence_used, outcome_confidence, resolution, failure_category,
	frequency, success_rate, last_used, created_at`

// SQLiteStore persists patterns in the historical_patterns table. List
// columns hold JSON arrays.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a store over an already migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// FindPatterns returns patterns matching c, most recently used first.
func (s *SQLiteStore) FindPatterns(ctx context.Context, c Criteria) ([]HistoricalPattern, error) {
	var where []string
	var args []any
	if c.ID != 0 {
		where = append(where, "id = ?")
		args = append(args, c.ID)
	}
	if c.EquipmentGroup != "" {
		where = append(where, "LOWER(equipment_group) = LOWER(?)")
		args = append(args, c.EquipmentGroup)
	}
	if c.FailureCategory != "" {
		where = append(where, "failure_category = ?")
		args = append(args, c.FailureCategory)
	}

	query := `SELECT ` + patternColumns + ` FROM historical_patterns`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY last_used DESC, id ASC`
	if c.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, c.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query historical patterns: %w", err)
	}
	defer rows.Close()

	patterns := []HistoricalPattern{}
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// CreatePattern inserts p and returns it with its assigned id. A pattern
// already captured for the same incident is returned unchanged instead.
func (s *SQLiteStore) CreatePattern(ctx context.Context, p HistoricalPattern) (HistoricalPattern, error) {
	symptoms, err := json.Marshal(nonNil(p.Symptoms))
	if err != nil {
		return HistoricalPattern{}, err
	}
	causes, err := json.Marshal(nonNil(p.RootCauses))
	if err != nil {
		return HistoricalPattern{}, err
	}
	evidence, err := json.Marshal(nonNil(p.EvidenceUsed))
	if err != nil {
		return HistoricalPattern{}, err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	if p.LastUsed.IsZero() {
		p.LastUsed = p.CreatedAt
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO historical_patterns (
			incident_id, symptoms, equipment_group, equipment_type, equipment_subtype,
			root_causes, evidence_used, outcome_confidence, resolution, failure_category,
			frequency, success_rate, last_used, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.IncidentID, string(symptoms), p.Equipment.Group, p.Equipment.Type, p.Equipment.Subtype,
		string(causes), string(evidence), p.OutcomeConfidence, p.Resolution, p.FailureCategory,
		p.Frequency, p.SuccessRate, p.LastUsed.UTC(), p.CreatedAt.UTC(),
	)
	if err != nil {
		return HistoricalPattern{}, fmt.Errorf("failed to store historical pattern: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return HistoricalPattern{}, err
	} else if n == 0 {
		return s.patternForIncident(ctx, p.IncidentID)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return HistoricalPattern{}, err
	}
	return p, nil
}

func (s *SQLiteStore) patternForIncident(ctx context.Context, incidentID string) (HistoricalPattern, error) {
	p, err := scanPattern(s.db.QueryRowContext(ctx,
		`SELECT `+patternColumns+` FROM historical_patterns WHERE incident_id = ?`, incidentID))
	if err == sql.ErrNoRows {
		return HistoricalPattern{}, ErrPatternNotFound
	}
	if err != nil {
		return HistoricalPattern{}, fmt.Errorf("failed to load pattern for incident %s: %w", incidentID, err)
	}
	return p, nil
}

// UpdatePatternSuccess folds outcome into the pattern's frequency and
// success rate inside a transaction.
func (s *SQLiteStore) UpdatePatternSuccess(ctx context.Context, id int64, outcome Outcome) (HistoricalPattern, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return HistoricalPattern{}, err
	}
	defer tx.Rollback()

	p, err := scanPattern(tx.QueryRowContext(ctx, `SELECT `+patternColumns+` FROM historical_patterns WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return HistoricalPattern{}, ErrPatternNotFound
	}
	if err != nil {
		return HistoricalPattern{}, err
	}

	p = ApplyOutcome(p, outcome, s.now().UTC())
	_, err = tx.ExecContext(ctx, `
		UPDATE historical_patterns SET frequency = ?, success_rate = ?, last_used = ? WHERE id = ?
	`, p.Frequency, p.SuccessRate, p.LastUsed, p.ID)
	if err != nil {
		return HistoricalPattern{}, fmt.Errorf("failed to update pattern %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return HistoricalPattern{}, err
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (HistoricalPattern, error) {
	var p HistoricalPattern
	var symptoms, causes, evidence string
	err := row.Scan(&p.ID, &p.IncidentID, &symptoms, &p.Equipment.Group, &p.Equipment.Type, &p.Equipment.Subtype,
		&causes, &evidence, &p.OutcomeConfidence, &p.Resolution, &p.FailureCategory,
		&p.Frequency, &p.SuccessRate, &p.LastUsed, &p.CreatedAt,
	)
	if err != nil {
		return HistoricalPattern{}, err
	}
	for _, col := range []struct {
		raw string
		dst *[]string
	}{{symptoms, &p.Symptoms}, {causes, &p.RootCauses}, {evidence, &p.EvidenceUsed}} {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return HistoricalPattern{}, fmt.Errorf("pattern %d has malformed list column: %w", p.ID, err)
		}
		*col.dst = nonNil(*col.dst)
	}
	return p, nil
}

// MemoryStore is an in-memory Store for tests and embedded callers.
type MemoryStore struct {
	mu       sync.Mutex
	patterns []HistoricalPattern
	nextID   int64
	now      func() time.Time
	err      error
}

// NewMemoryStore creates a store seeded with patterns. Seeded patterns with a
// zero id get one assigned.
func NewMemoryStore(patterns ...HistoricalPattern) *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for _, p := range patterns {
		s.insert(p)
	}
	return s
}

// SetClock replaces the clock used for LastUsed stamps.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailWith makes every call return err until cleared with nil.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *MemoryStore) insert(p HistoricalPattern) HistoricalPattern {
	if p.ID == 0 {
		s.nextID++
		p.ID = s.nextID
	} else if p.ID > s.nextID {
		s.nextID = p.ID
	}
	s.patterns = append(s.patterns, p)
	return p
}

// FindPatterns returns copies of matching patterns, most recently used first.
func (s *MemoryStore) FindPatterns(ctx context.Context, c Criteria) ([]HistoricalPattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	out := []HistoricalPattern{}
	for _, p := range s.patterns {
		if c.ID != 0 && p.ID != c.ID {
			continue
		}
		if c.EquipmentGroup != "" && !strings.EqualFold(p.Equipment.Group, c.EquipmentGroup) {
			continue
		}
		if c.FailureCategory != "" && p.FailureCategory != c.FailureCategory {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastUsed.Equal(out[j].LastUsed) {
			return out[i].LastUsed.After(out[j].LastUsed)
		}
		return out[i].ID < out[j].ID
	})
	if c.Limit > 0 && len(out) > c.Limit {
		out = out[:c.Limit]
	}
	return out, nil
}

// CreatePattern stores p and returns it with its assigned id. Like
// SQLiteStore, a second pattern for the same incident is not stored.
func (s *MemoryStore) CreatePattern(ctx context.Context, p HistoricalPattern) (HistoricalPattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return HistoricalPattern{}, s.err
	}
	if p.IncidentID != "" {
		for _, existing := range s.patterns {
			if existing.IncidentID == p.IncidentID {
				return existing, nil
			}
		}
	}
	p.ID = 0
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	if p.LastUsed.IsZero() {
		p.LastUsed = p.CreatedAt
	}
	return s.insert(p), nil
}

// UpdatePatternSuccess folds outcome into the pattern's success metrics.
func (s *MemoryStore) UpdatePatternSuccess(ctx context.Context, id int64, outcome Outcome) (HistoricalPattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return HistoricalPattern{}, s.err
	}
	for i, p := range s.patterns {
		if p.ID == id {
			s.patterns[i] = ApplyOutcome(p, outcome, s.now())
			return s.patterns[i], nil
		}
	}
	return HistoricalPattern{}, ErrPatternNotFound
}
