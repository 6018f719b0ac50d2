package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/thermotrend/internal/errors"
	"codeberg.org/mutker/thermotrend/internal/logger"
)

type migrationFailure struct {
	Phase string
	From  int
	Error string
}

// migrateSchema brings db to SchemaVersion. Trend history is not migrated
// row by row: a database written by another version is copied into
// backupDir and recreated empty.
func migrateSchema(db *sql.DB, backupDir string, log logger.Logger) error {
	errFactory := errors.New()

	version, err := GetSchemaVersion(db)
	if err != nil {
		return errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if version == SchemaVersion {
		log.Debug().Int("version", version).Msg("Trend history schema is current")
		return nil
	}

	if version != 0 {
		path, err := copyDatabase(db, backupDir, version, time.Now())
		if err != nil {
			return errFactory.WithData(ErrSchemaMigrationFailed, migrationFailure{
				Phase: "backup",
				From:  version,
				Error: err.Error(),
			})
		}
		log.Warn().
			Int("from", version).
			Int("to", SchemaVersion).
			Str("backup", path).
			Msg("Trend history schema changed, previous database backed up")
	}

	if err := recreateSchema(db); err != nil {
		return errFactory.WithData(ErrSchemaMigrationFailed, migrationFailure{
			Phase: "recreate",
			From:  version,
			Error: err.Error(),
		})
	}
	log.Info().Int("version", SchemaVersion).Msg("Trend history schema created")

	return nil
}

func backupPath(dir string, version int, at time.Time) string {
	name := fmt.Sprintf("trend_history_v%d_%s.db", version, at.UTC().Format("20060102T150405Z"))
	return filepath.Join(dir, name)
}

// copyDatabase writes a consistent copy of db with VACUUM INTO, which must
// run outside a transaction.
func copyDatabase(db *sql.DB, dir string, version int, at time.Time) (string, error) {
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", err
	}

	path := backupPath(dir, version, at)
	quoted := "'" + strings.ReplaceAll(path, "'", "''") + "'"
	if _, err := db.Exec("VACUUM INTO " + quoted); err != nil {
		return "", err
	}

	return path, nil
}

// recreateSchema drops the known tables and creates the current schema in
// one transaction.
func recreateSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{tableTrendHistory, tableSchemaVersions} {
		if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(createTablesSQL); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	if _, err := tx.Exec(recordVersionSQL, SchemaVersion); err != nil {
		return fmt.Errorf("record version: %w", err)
	}

	return tx.Commit()
}
