package metrics

import (
	"database/sql"

	"codeberg.org/mutker/hostpulse/internal/errors"
	"codeberg.org/mutker/hostpulse/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS ticks (
	       timestamp       INTEGER PRIMARY KEY,
	       cpu_percent     REAL,
	       ram_percent     REAL,
	       swap_percent    REAL,
	       disk_percent    REAL,
	       net_down_bytes  INTEGER NOT NULL CHECK (net_down_bytes >= 0),
	       net_up_bytes    INTEGER NOT NULL CHECK (net_up_bytes >= 0),
	       battery_percent REAL,
	       cpu_hits        INTEGER NOT NULL CHECK (typeof(cpu_hits) = 'integer'),
	       ram_hits        INTEGER NOT NULL CHECK (typeof(ram_hits) = 'integer')
	   );`

	recordVersionSQL = `
    INSERT INTO schema_versions (version, applied_at)
    VALUES (?, datetime('now'))`

	// Two ticks within one second keep the later row.
	insertTickSQL = `
    INSERT OR REPLACE INTO ticks (
        timestamp,
        cpu_percent, ram_percent, swap_percent, disk_percent,
        net_down_bytes, net_up_bytes,
        battery_percent,
        cpu_hits, ram_hits
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

var archiveTables = []string{"ticks", "schema_versions"}

// GetInsertTickSQL returns the statement used to archive one TickRow.
func GetInsertTickSQL() string {
	return insertTickSQL
}

// InitSchema creates the tables and records SchemaVersion.
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating tick archive schema...")

	err := withTx(db, log, func(tx *sql.Tx) error {
		if _, err := tx.Exec(createTablesSQL); err != nil {
			return errFactory.WithData(ErrSchemaInitFailed, struct {
				Phase string
				Error string
			}{
				Phase: "create_tables",
				Error: err.Error(),
			})
		}

		if _, err := tx.Exec(recordVersionSQL, SchemaVersion); err != nil {
			return errFactory.WithData(ErrSchemaInitFailed, struct {
				Phase string
				Error string
			}{
				Phase: "record_version",
				Error: err.Error(),
			})
		}

		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Int("version", SchemaVersion).Msg("Tick archive schema initialized")

	return nil
}

// GetSchemaVersion returns the recorded schema version, or 0 for an
// empty database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil || !exists {
		return 0, err
	}

	var version int
	err = db.QueryRow(`SELECT version FROM schema_versions ORDER BY version DESC LIMIT 1`).Scan(&version)
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

func TableExists(db *sql.DB, table string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )`, table).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: table,
			Error: err.Error(),
		})
	}

	return exists, nil
}

// withTx runs fn in a transaction, committing when fn succeeds and rolling
// back otherwise.
func withTx(db *sql.DB, log logger.Logger, fn func(*sql.Tx) error) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Debug().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	return nil
}
