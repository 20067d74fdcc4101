package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/hostpulse/internal/errors"
	"codeberg.org/mutker/hostpulse/internal/logger"
)

// ValidateAndUpdateSchema makes sure db holds the current schema. An
// archive written by another schema version is copied to backupDir and
// then recreated empty.
func ValidateAndUpdateSchema(db *sql.DB, backupDir string, log logger.Logger) error {
	errFactory := errors.New()

	version, err := GetSchemaVersion(db)
	if err != nil {
		return errFactory.Wrap(ErrSchemaValidationFailed, err)
	}

	switch version {
	case SchemaVersion:
		log.Debug().Int("version", version).Msg("Tick archive schema is current")
		return nil
	case 0:
		// fresh database
	default:
		path, err := backupDatabase(db, backupDir, version, log)
		if err != nil {
			return errFactory.WithData(ErrSchemaMigrationFailed, struct {
				Phase string
				Path  string
				Error string
			}{
				Phase: "backup",
				Path:  path,
				Error: err.Error(),
			})
		}
	}

	if err := dropTables(db, log); err != nil {
		return err
	}

	return InitSchema(db, log)
}

func backupDatabase(db *sql.DB, backupDir string, version int, log logger.Logger) (string, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(backupDir, defaultDirPerm); err != nil {
		return "", errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}

	path := filepath.Join(backupDir,
		fmt.Sprintf("ticks_v%d_%s.db", version, time.Now().UTC().Format("20060102T150405Z")))

	// VACUUM INTO must run outside a transaction
	if _, err := db.Exec("VACUUM INTO ?", path); err != nil {
		return path, errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}

	log.Info().Str("path", path).Int("version", version).Msg("Tick archive backup created")

	return path, nil
}

func dropTables(db *sql.DB, log logger.Logger) error {
	return withTx(db, log, func(tx *sql.Tx) error {
		for _, table := range archiveTables {
			if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
				return errors.New().WithData(ErrSchemaMigrationFailed, struct {
					Phase string
					Table string
					Error string
				}{
					Phase: "drop_table",
					Table: table,
					Error: err.Error(),
				})
			}
		}
		return nil
	})
}
