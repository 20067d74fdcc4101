package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/hostpulse/internal/errors"
)

// DailySample is one tick as persisted for the daily summary.
type DailySample struct {
	// TS is seconds since the Unix epoch.
	TS            float64  `json:"ts"`
	CPU           *float64 `json:"cpu"`
	RAM           *float64 `json:"ram"`
	NetBytesDelta uint64   `json:"net_bytes_delta"`
	TopApp        *string  `json:"top_app"`
	BatteryEvent  *string  `json:"battery_event"`
}

func (s DailySample) Time() time.Time {
	sec := int64(s.TS)
	nsec := int64((s.TS - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

type sampleFile struct {
	Samples []DailySample `json:"samples"`
}

// SampleStore keeps one file of samples per calendar date in dir.
type SampleStore struct {
	mu  sync.Mutex
	dir string

	// samples of the most recently appended date, so appends do not
	// re-read the file every tick
	day   string
	cache []DailySample
}

func NewSampleStore(dir string) *SampleStore {
	return &SampleStore{dir: dir}
}

func SampleFileName(day time.Time) string {
	return fmt.Sprintf("daily_samples_%s.json", day.Format(DateLayout))
}

func (s *SampleStore) Path(day time.Time) string {
	return filepath.Join(s.dir, SampleFileName(day))
}

// Append adds sample to the file of day. The file always holds the full
// sample list of that date.
func (s *SampleStore) Append(day time.Time, sample DailySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := day.Format(DateLayout)
	if key != s.day {
		// corrupt or missing files start over empty
		loaded, err := s.load(day)
		if err != nil && !errors.HasCode(err, ErrCorrupt) {
			return err
		}
		s.day = key
		s.cache = loaded
	}

	next := append(s.cache, sample)
	if err := writeJSON(s.Path(day), sampleFile{Samples: next}); err != nil {
		return err
	}
	s.cache = next

	return nil
}

// Load returns the samples of day. Missing or corrupt files yield an
// empty list; the error is informational.
func (s *SampleStore) Load(day time.Time) ([]DailySample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if day.Format(DateLayout) == s.day {
		out := make([]DailySample, len(s.cache))
		copy(out, s.cache)
		return out, nil
	}

	return s.load(day)
}

func (s *SampleStore) load(day time.Time) ([]DailySample, error) {
	var f sampleFile
	if _, err := readJSON(s.Path(day), &f); err != nil {
		return []DailySample{}, err
	}
	if f.Samples == nil {
		return []DailySample{}, nil
	}

	return f.Samples, nil
}
