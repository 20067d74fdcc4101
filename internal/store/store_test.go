package store_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/hostpulse/internal/errors"
	"codeberg.org/mutker/hostpulse/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

var day = time.Date(2024, 6, 3, 14, 30, 0, 0, time.Local)

func TestHealthLogUpsertReplacesSameDate(t *testing.T) {
	log := store.NewHealthLog(t.TempDir())

	require.NoError(t, log.Upsert(store.HealthEntry{Date: "2024-06-03", DesignMWh: ptr(int64(50000)), FullMWh: ptr(int64(46000))}))
	require.NoError(t, log.Upsert(store.HealthEntry{Date: "2024-06-01", DesignMWh: ptr(int64(50000)), FullMWh: ptr(int64(47000))}))
	require.NoError(t, log.Upsert(store.HealthEntry{Date: "2024-06-03", DesignMWh: ptr(int64(50000)), FullMWh: ptr(int64(45500))}))

	entries, err := log.Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2024-06-01", entries[0].Date)
	assert.Equal(t, "2024-06-03", entries[1].Date)
	assert.Equal(t, int64(45500), *entries[1].FullMWh)
}

func TestHealthLogFileFormat(t *testing.T) {
	dir := t.TempDir()
	log := store.NewHealthLog(dir)

	require.NoError(t, log.Upsert(store.HealthEntry{
		Date:      "2024-06-03",
		DesignMWh: ptr(int64(50000)),
		FullMWh:   ptr(int64(45000)),
		WearPct:   ptr(10.0),
	}))

	data, err := os.ReadFile(filepath.Join(dir, store.HealthLogFile))
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, "2024-06-03", raw[0]["date"])
	assert.InDelta(t, 50000.0, raw[0]["design_mwh"], 1e-9)
	assert.Contains(t, raw[0], "cycle_count")
	assert.Nil(t, raw[0]["cycle_count"])
}

func TestHealthLogRejectsBadDate(t *testing.T) {
	log := store.NewHealthLog(t.TempDir())

	err := log.Upsert(store.HealthEntry{Date: "03/06/2024"})
	assert.True(t, errors.HasCode(err, store.ErrInvalidDate))
}

func TestHealthLogMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	log := store.NewHealthLog(dir)

	entries, err := log.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, os.WriteFile(log.Path(), []byte("{not json"), 0o644))
	entries, err = log.Load()
	assert.True(t, errors.HasCode(err, store.ErrCorrupt))
	assert.Empty(t, entries)

	// a corrupt log is replaced on the next write
	require.NoError(t, log.Upsert(store.HealthEntry{Date: "2024-06-03"}))
	entries, err = log.Load()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestHealthLogUpsertKeepsUnreadableLog(t *testing.T) {
	log := store.NewHealthLog(t.TempDir())

	// a directory in place of the log fails the read without being corrupt
	require.NoError(t, os.MkdirAll(filepath.Join(log.Path(), "keep"), 0o755))

	err := log.Upsert(store.HealthEntry{Date: "2024-06-03"})
	assert.True(t, errors.HasCode(err, store.ErrReadFailed))
	assert.DirExists(t, filepath.Join(log.Path(), "keep"))
}

func TestSampleStoreAppendAndLoad(t *testing.T) {
	dir := t.TempDir()
	s := store.NewSampleStore(dir)

	require.NoError(t, s.Append(day, store.DailySample{TS: 1717425000.5, CPU: ptr(12.0), TopApp: ptr("firefox")}))
	require.NoError(t, s.Append(day, store.DailySample{TS: 1717425005, CPU: ptr(15.0), NetBytesDelta: 2048}))

	samples, err := s.Load(day)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "firefox", *samples[0].TopApp)
	assert.Nil(t, samples[1].TopApp)
	assert.Equal(t, uint64(2048), samples[1].NetBytesDelta)

	// a fresh store reads what the first wrote
	fresh, err := store.NewSampleStore(dir).Load(day)
	require.NoError(t, err)
	assert.Equal(t, samples, fresh)

	data, err := os.ReadFile(filepath.Join(dir, "daily_samples_2024-06-03.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"samples"`)
	assert.Contains(t, string(data), `"battery_event": null`)
}

func TestSampleStoreStartsNewFilePerDate(t *testing.T) {
	dir := t.TempDir()
	s := store.NewSampleStore(dir)
	next := day.AddDate(0, 0, 1)

	require.NoError(t, s.Append(day, store.DailySample{TS: 1}))
	require.NoError(t, s.Append(next, store.DailySample{TS: 2}))

	today, err := s.Load(day)
	require.NoError(t, err)
	tomorrow, err := s.Load(next)
	require.NoError(t, err)
	assert.Len(t, today, 1)
	assert.Len(t, tomorrow, 1)
	assert.FileExists(t, s.Path(next))
}

func TestSampleStoreCorruptOrMissingIsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := store.NewSampleStore(dir)

	samples, err := s.Load(day)
	require.NoError(t, err)
	assert.NotNil(t, samples)
	assert.Empty(t, samples)

	require.NoError(t, os.WriteFile(s.Path(day), []byte("[[["), 0o644))
	samples, err = s.Load(day)
	assert.Error(t, err)
	assert.Empty(t, samples)

	require.NoError(t, s.Append(day, store.DailySample{TS: 3}))
	samples, err = s.Load(day)
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestSampleStoreAppendKeepsUnreadableFile(t *testing.T) {
	s := store.NewSampleStore(t.TempDir())
	require.NoError(t, os.MkdirAll(filepath.Join(s.Path(day), "keep"), 0o755))

	err := s.Append(day, store.DailySample{TS: 1})
	assert.True(t, errors.HasCode(err, store.ErrReadFailed))
	assert.DirExists(t, filepath.Join(s.Path(day), "keep"))

	// the day is retried once the file is readable again
	require.NoError(t, os.RemoveAll(s.Path(day)))
	require.NoError(t, s.Append(day, store.DailySample{TS: 2}))
	samples, err := s.Load(day)
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestDailySampleTime(t *testing.T) {
	s := store.DailySample{TS: 1717425000.25}
	assert.Equal(t, int64(1717425000), s.Time().Unix())
	assert.InDelta(t, 250*time.Millisecond, time.Duration(s.Time().Nanosecond()), float64(time.Microsecond))
}
