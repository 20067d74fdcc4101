// Package cleanup prunes old files from the downloads directory and keeps
// a plain text report of every run.
package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/hostpulse/internal/logger"
	"github.com/google/uuid"
)

const (
	ReportFile = "cleanup_report.txt"

	ErrPathNotFound = "path_not_found"
	ErrUnreadable   = "unreadable"

	day      = 24 * time.Hour
	filePerm = 0o644
	dirPerm  = 0o755
)

// Result lists entry names, not paths. Err is empty on a normal run.
type Result struct {
	RunID   string   `json:"run_id"`
	Deleted []string `json:"deleted"`
	Skipped []string `json:"skipped"`
	Err     string   `json:"error,omitempty"`
}

type Cleaner struct {
	dir        string
	reportPath string
	log        logger.Logger
	now        func() time.Time

	// serialises runs and report appends
	mu sync.Mutex
}

type Option func(*Cleaner)

func WithClock(now func() time.Time) Option {
	return func(c *Cleaner) { c.now = now }
}

func New(dir, reportsDir string, log logger.Logger, opts ...Option) *Cleaner {
	c := &Cleaner{
		dir:        dir,
		reportPath: filepath.Join(reportsDir, ReportFile),
		log:        log.With("cleanup"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Cleaner) ReportPath() string { return c.reportPath }

// Run deletes regular files whose modification time is more than days
// days old. Everything else is skipped. Failures are logged and reported
// in the result, never returned. A cancelled ctx skips the remaining
// entries.
func (c *Cleaner) Run(ctx context.Context, days int) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := Result{
		RunID:   uuid.NewString(),
		Deleted: []string{},
		Skipped: []string{},
	}
	log := c.log

	log.Info().Str("run_id", res.RunID).Int("days", days).Str("dir", c.dir).
		Msg("Starting downloads cleanup")

	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		log.Warn().Str("dir", c.dir).Msg("Downloads path not found")
		res.Err = ErrPathNotFound
		return res
	}
	if err != nil {
		log.Warn().Err(err).Str("dir", c.dir).Msg("Downloads path unreadable")
		res.Err = ErrUnreadable
		return res
	}

	now := c.now()
	maxAge := time.Duration(days) * day

	for _, entry := range entries {
		name := entry.Name()

		if ctx.Err() != nil || !entry.Type().IsRegular() {
			res.Skipped = append(res.Skipped, name)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("Failed to stat file")
			res.Skipped = append(res.Skipped, name)
			continue
		}

		if now.Sub(info.ModTime()) <= maxAge {
			res.Skipped = append(res.Skipped, name)
			continue
		}

		if err := os.Remove(filepath.Join(c.dir, name)); err != nil {
			log.Warn().Err(err).Str("file", name).Msg("Failed to delete file")
			res.Skipped = append(res.Skipped, name)
			continue
		}
		res.Deleted = append(res.Deleted, name)
	}

	if err := c.appendReport(now, days, res); err != nil {
		log.Warn().Err(err).Str("path", c.reportPath).Msg("Failed to append cleanup report")
	}

	log.Info().Str("run_id", res.RunID).Int("deleted", len(res.Deleted)).
		Int("skipped", len(res.Skipped)).Msg("Downloads cleanup finished")

	return res
}

func (c *Cleaner) appendReport(now time.Time, days int, res Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Cleanup run at %s (days=%d, run=%s) ===\n",
		now.Format("2006-01-02 15:04:05"), days, res.RunID)
	if len(res.Deleted) == 0 {
		b.WriteString("No files deleted.\n")
	} else {
		fmt.Fprintf(&b, "Deleted %d files:\n", len(res.Deleted))
		for _, name := range res.Deleted {
			fmt.Fprintf(&b, " - %s\n", name)
		}
	}

	if err := os.MkdirAll(filepath.Dir(c.reportPath), dirPerm); err != nil {
		return err
	}

	f, err := os.OpenFile(c.reportPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return err
	}

	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
