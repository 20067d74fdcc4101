package store

import (
	"path/filepath"
	"sort"
	"sync"
	"time"

	"codeberg.org/mutker/hostpulse/internal/errors"
)

const (
	HealthLogFile = "battery_health_log.json"
	DateLayout    = "2006-01-02"
)

// HealthEntry is one day of battery capacity figures.
type HealthEntry struct {
	Date       string   `json:"date"`
	DesignMWh  *int64   `json:"design_mwh"`
	FullMWh    *int64   `json:"full_mwh"`
	WearPct    *float64 `json:"wear_pct"`
	CycleCount *int     `json:"cycle_count"`
	VoltageMV  *int     `json:"voltage_mv"`
}

// HealthLog is the battery health history, kept as one JSON array sorted
// by date with at most one entry per date.
type HealthLog struct {
	mu   sync.Mutex
	path string
}

func NewHealthLog(reportsDir string) *HealthLog {
	return &HealthLog{path: filepath.Join(reportsDir, HealthLogFile)}
}

func (h *HealthLog) Path() string { return h.path }

// Load returns the stored entries. A missing file is an empty log; a
// corrupt file is also returned as empty, together with the decode error.
func (h *HealthLog) Load() ([]HealthEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.load()
}

func (h *HealthLog) load() ([]HealthEntry, error) {
	var entries []HealthEntry
	if _, err := readJSON(h.path, &entries); err != nil {
		return []HealthEntry{}, err
	}
	if entries == nil {
		entries = []HealthEntry{}
	}

	return entries, nil
}

// Upsert replaces the entry for e.Date, or adds it, and rewrites the log.
// A corrupt log is replaced. Any other read failure is returned and the
// file is left alone.
func (h *HealthLog) Upsert(e HealthEntry) error {
	if _, err := time.Parse(DateLayout, e.Date); err != nil {
		return errors.New().WithData(ErrInvalidDate, e.Date)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	entries, err := h.load()
	if err != nil && !errors.HasCode(err, ErrCorrupt) {
		return err
	}

	replaced := false
	for i := range entries {
		if entries[i].Date == e.Date {
			entries[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Date < entries[j].Date })

	return writeJSON(h.path, entries)
}
