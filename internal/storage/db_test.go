package storage

import (
	"os"
	"testing"

	"github.com/a-marczewski/faultline/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDBAppliesAllMigrations(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "faultline_db_*.sqlite3")
	require.NoError(t, err)
	tmpFile.Close()
	defer os.Remove(tmpFile.Name())

	cfg := &config.Config{DBPath: tmpFile.Name()}
	db, err := NewDB(cfg)
	require.NoError(t, err)
	defer db.Close()

	var version int
	require.NoError(t, db.GetConnection().QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, SchemaVersion, version)

	for _, table := range []string{"failure_modes", "historical_patterns", "library_proposals", "escalations", "run_metrics"} {
		var name string
		err := db.GetConnection().QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := t.TempDir() + "/faultline.sqlite3"

	db, err := Open(path)
	require.NoError(t, err)
	_, err = db.GetConnection().Exec(`INSERT INTO failure_modes (failure_mode) VALUES ('Bearing wear')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.GetConnection().QueryRow("SELECT COUNT(*) FROM failure_modes").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSchemaV4CollapsesDuplicateIncidentPatterns(t *testing.T) {
	path := t.TempDir() + "/faultline.sqlite3"

	db, err := Open(path)
	require.NoError(t, err)
	conn := db.GetConnection()
	_, err = conn.Exec(`DROP INDEX historical_patterns_incident`)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = conn.Exec(`INSERT INTO historical_patterns (incident_id, last_used, created_at)
			VALUES ('INC-42', '2026-03-01 00:00:00', '2026-03-01 00:00:00')`)
		require.NoError(t, err)
	}
	_, err = conn.Exec(`INSERT INTO historical_patterns (incident_id, last_used, created_at)
		VALUES ('INC-7', '2026-03-01 00:00:00', '2026-03-01 00:00:00')`)
	require.NoError(t, err)
	_, err = conn.Exec(`PRAGMA user_version = 3`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	conn = db.GetConnection()

	var ids []int64
	rows, err := conn.Query(`SELECT id FROM historical_patterns ORDER BY id`)
	require.NoError(t, err)
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Close())
	assert.Equal(t, []int64{1, 4}, ids)

	_, err = conn.Exec(`INSERT INTO historical_patterns (incident_id, last_used, created_at)
		VALUES ('INC-42', '2026-03-02 00:00:00', '2026-03-02 00:00:00')`)
	assert.Error(t, err)
}
