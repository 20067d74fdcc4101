package metrics

import (
	"path/filepath"
	"time"

	"codeberg.org/mutker/hostpulse/internal/errors"
)

const (
	defaultDirPerm      = 0o755
	defaultBatchSize    = 12
	defaultBatchTimeout = time.Minute
	defaultFlushTries   = 3
	backupDirName       = "backups"
)

type Config struct {
	DBPath       string
	Enabled      bool
	BatchSize    int
	BatchTimeout time.Duration
	// FlushTries bounds the attempts for one batch write.
	FlushTries uint
}

func DefaultConfig(reportsDir string) Config {
	return Config{
		DBPath:       filepath.Join(reportsDir, "metrics.db"),
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		FlushTries:   defaultFlushTries,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if !c.Enabled {
		return nil
	}
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 0 || c.BatchTimeout < 0 {
		return errFactory.WithData(ErrInvalidConfig, "batch size and timeout must not be negative")
	}

	return nil
}

func (c Config) backupDir() string {
	return filepath.Join(filepath.Dir(c.DBPath), backupDirName)
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
