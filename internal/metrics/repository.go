package metrics

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/hostpulse/internal/errors"
	"codeberg.org/mutker/hostpulse/internal/logger"
	"github.com/cenkalti/backoff/v5"
	_ "github.com/mattn/go-sqlite3"
)

const (
	flushInitialBackoff = 50 * time.Millisecond
	flushMaxBackoff     = 500 * time.Millisecond
)

// repository buffers rows and writes them in one transaction per batch,
// either when the batch is full or when the batch timeout elapses.
type repository struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config

	mu     sync.Mutex
	buffer []*TickRow
	closed bool

	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}
	// one writer; sqlite serialises anyway
	db.SetMaxOpenConns(1)

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("Tick archive initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]*TickRow, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.BatchSize > 1 && cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(cfg.BatchTimeout)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *repository) Record(row *TickRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New().WithMessage(ErrMetricsCollection, "tick archive is closed")
	}

	r.buffer = append(r.buffer, row)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

func (r *repository) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.shutdownChan)
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}
	<-r.flushDoneChan

	// the flusher is gone; write whatever is left
	r.mu.Lock()
	err := r.flush()
	r.mu.Unlock()
	if err != nil {
		r.logger.Warn().Err(err).Msg("Final tick archive flush failed")
	}

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		r.db.Close()
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("Tick archive closed gracefully")

	return nil
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Periodic tick archive flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

// flush writes the buffer, retrying transient failures with exponential
// backoff. A batch that still fails is dropped so the buffer stays
// bounded. Callers hold r.mu.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = flushInitialBackoff
	b.MaxInterval = flushMaxBackoff

	tries := r.cfg.FlushTries
	if tries == 0 {
		tries = defaultFlushTries
	}

	_, err := backoff.Retry(context.Background(), func() (struct{}, error) {
		return struct{}{}, r.write(r.buffer)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))

	count := len(r.buffer)
	r.buffer = r.buffer[:0]

	if err != nil {
		r.logger.Error().Err(err).Int("records", count).Msg("Dropping tick archive batch")
		return errors.New().Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", count).Msg("Flushed ticks to archive")

	return nil
}

func (r *repository) write(rows []*TickRow) error {
	return withTx(r.db, r.logger, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(GetInsertTickSQL())
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, row := range rows {
			if _, err := stmt.Exec(
				row.Timestamp.Unix(),
				nullable(row.CPU),
				nullable(row.RAM),
				nullable(row.Swap),
				nullable(row.DiskPercent),
				int64(row.NetDownBytes),
				int64(row.NetUpBytes),
				nullable(row.BatteryPercent),
				int64(row.CPUHits),
				int64(row.RAMHits),
			); err != nil {
				return err
			}
		}

		return nil
	})
}
