package metrics

import (
	"database/sql"

	"codeberg.org/mutker/thermotrend/internal/errors"
)

const (
	SchemaVersion = 1

	tableSchemaVersions = "schema_versions"
	tableTrendHistory   = "trend_history"

	// SQL statements derived from schema
	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS trend_history (
	       timestamp        INTEGER PRIMARY KEY,
	       temp_current     REAL NOT NULL,
	       temp_fitted      REAL NOT NULL,
	       units            TEXT NOT NULL CHECK (units IN ('F', 'C')),
	       strategy         TEXT NOT NULL,
	       points           INTEGER NOT NULL CHECK (typeof(points) = 'integer'),
	       slope_per_hour   REAL NOT NULL,
	       channel          TEXT NOT NULL,
	       intensity        REAL NOT NULL CHECK (intensity BETWEEN 0 AND 1),
	       monitor          INTEGER NOT NULL CHECK (monitor IN (0, 1))
	   );`

	insertTrendSQL = `
    INSERT OR REPLACE INTO trend_history (
        timestamp,
        temp_current, temp_fitted, units,
        strategy, points, slope_per_hour,
        channel, intensity, monitor
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	recordVersionSQL = `
    INSERT INTO schema_versions (version, applied_at)
    VALUES (?, datetime('now'))`

	selectRecentSQL = `
    SELECT timestamp,
        temp_current, temp_fitted, units,
        strategy, points, slope_per_hour,
        channel, intensity, monitor
    FROM trend_history
    ORDER BY timestamp DESC
    LIMIT ?`
)

// GetSchemaVersion returns the current schema version
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, tableSchemaVersions)
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}

// GetInsertTrendSQL returns the SQL to insert a trend snapshot
func GetInsertTrendSQL() string {
	return insertTrendSQL
}
