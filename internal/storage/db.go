package storage

import (
	"database/sql"
	"fmt"

	"github.com/a-marczewski/faultline/internal/config"

	_ "github.com/mattn/go-sqlite3"
)

const (
	SchemaVersion = 4
)

// DB represents the database connection
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection
func NewDB(cfg *config.Config) (*DB, error) {
	return Open(cfg.DBPath)
}

// Open opens (and migrates) the sqlite database at path
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	database := &DB{conn: db}

	if err := database.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return database, nil
}

// migrate applies database migrations
func (db *DB) migrate() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var version int
	if err := tx.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return err
	}

	for version < SchemaVersion {
		version++
		switch version {
		case 1:
			err = db.applySchemaV1(tx)
		case 2:
			err = db.applySchemaV2(tx)
		case 3:
			err = db.applySchemaV3(tx)
		case 4:
			err = db.applySchemaV4(tx)
		default:
			return fmt.Errorf("unknown schema version: %d", version)
		}
		if err != nil {
			return fmt.Errorf("failed to apply schema v%d: %w", version, err)
		}
	}

	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return err
	}

	return tx.Commit()
}

// applySchemaV1 creates the evidence library and historical pattern tables
func (db *DB) applySchemaV1(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS failure_modes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			equipment_group_id INTEGER,
			equipment_type_id INTEGER,
			equipment_subtype_id INTEGER,
			risk_ranking_id INTEGER,
			failure_code TEXT NOT NULL DEFAULT '',
			failure_mode TEXT NOT NULL,
			fault_signature_pattern TEXT NOT NULL DEFAULT '',
			elimination_condition TEXT NOT NULL DEFAULT '',
			elimination_rationale TEXT NOT NULL DEFAULT '',
			confidence_hint TEXT NOT NULL DEFAULT '',
			required_trend_evidence TEXT NOT NULL DEFAULT '',
			required_attachments TEXT NOT NULL DEFAULT '',
			investigator_questions TEXT NOT NULL DEFAULT '',
			primary_root_cause TEXT NOT NULL DEFAULT '',
			contributing_factor TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE INDEX IF NOT EXISTS failure_modes_taxonomy
		ON failure_modes (equipment_group_id, equipment_type_id, equipment_subtype_id)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS historical_patterns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			incident_id TEXT NOT NULL DEFAULT '',
			symptoms TEXT NOT NULL DEFAULT '[]',
			equipment_group TEXT NOT NULL DEFAULT '',
			equipment_type TEXT NOT NULL DEFAULT '',
			equipment_subtype TEXT NOT NULL DEFAULT '',
			root_causes TEXT NOT NULL DEFAULT '[]',
			evidence_used TEXT NOT NULL DEFAULT '[]',
			outcome_confidence REAL NOT NULL DEFAULT 0,
			resolution TEXT NOT NULL DEFAULT '',
			failure_category TEXT NOT NULL DEFAULT 'general',
			frequency INTEGER NOT NULL DEFAULT 1,
			success_rate REAL NOT NULL DEFAULT 1.0,
			last_used DATETIME NOT NULL,
			created_at DATETIME NOT NULL
		)
	`)
	return err
}

// applySchemaV2 adds library update proposals and SME escalation tickets.
// Both are proposals awaiting a human; nothing here edits the evidence library.
func (db *DB) applySchemaV2(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS library_proposals (
			id TEXT PRIMARY KEY,
			incident_id TEXT NOT NULL,
			proposal_type TEXT NOT NULL CHECK(proposal_type IN ('new_fault_signature', 'pattern_enhancement')),
			proposed_changes TEXT NOT NULL,
			rationale TEXT NOT NULL,
			confidence REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'approved', 'rejected')),
			reviewed_by TEXT,
			reviewed_at DATETIME,
			created_at DATETIME NOT NULL,
			UNIQUE(incident_id, proposal_type, proposed_changes)
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS escalations (
			id TEXT PRIMARY KEY,
			incident_id TEXT NOT NULL,
			urgency TEXT NOT NULL CHECK(urgency IN ('critical', 'high')),
			reason TEXT NOT NULL,
			confidence REAL NOT NULL,
			expertise TEXT NOT NULL DEFAULT '[]',
			required_actions TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'pending_sme_review',
			created_at DATETIME NOT NULL
		)
	`)
	return err
}

// applySchemaV3 adds per-stage run metrics.
func (db *DB) applySchemaV3(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS run_metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			incident_id TEXT NOT NULL,
			stage INTEGER NOT NULL,
			status TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)
	`)
	return err
}

// applySchemaV4 keeps one historical pattern per incident. Older duplicates
// are collapsed onto the first captured row.
func (db *DB) applySchemaV4(tx *sql.Tx) error {
	_, err := tx.Exec(`
		DELETE FROM historical_patterns
		WHERE incident_id != ''
		AND id NOT IN (
			SELECT MIN(id) FROM historical_patterns WHERE incident_id != '' GROUP BY incident_id
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS historical_patterns_incident
		ON historical_patterns (incident_id) WHERE incident_id != ''
	`)
	return err
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// GetConnection returns the underlying database connection
func (db *DB) GetConnection() *sql.DB {
	return db.conn
}
