package history_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/hostpulse/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(i int) time.Time { return epoch.Add(time.Duration(i) * 5 * time.Second) }

func TestTrackerEvictsOldestAtCapacity(t *testing.T) {
	tr := history.NewTracker(3)

	for i := 0; i < 4; i++ {
		tr.Push(at(i), float64(i))
	}

	points := tr.Points()
	require.Len(t, points, 3)
	assert.Equal(t, 3, tr.Len())
	assert.Equal(t, []float64{1, 2, 3}, values(points))
	assert.Equal(t, at(1), points[0].Time)
}

func TestTrackerNeverExceedsCapacity(t *testing.T) {
	tr := history.NewTracker(5)

	for i := 0; i < 100; i++ {
		tr.Push(at(i), float64(i%7))
		assert.LessOrEqual(t, tr.Len(), 5)
	}
	assert.Equal(t, 5, tr.Cap())
}

func TestTrackerPeakIsMaxEverPushed(t *testing.T) {
	tr := history.NewTracker(2)
	readings := []float64{10, 40, 20, 40, 5, 1, 0}

	var prev float64
	for i, v := range readings {
		tr.Push(at(i), v)
		peak, ok := tr.Peak()
		require.True(t, ok)
		assert.GreaterOrEqual(t, peak.Value, prev)
		prev = peak.Value
	}

	peak, _ := tr.Peak()
	assert.InDelta(t, 40.0, peak.Value, 1e-9)
	// equal value later does not move the peak time
	assert.Equal(t, at(1), peak.Time)
	// the peak reading itself was evicted long ago
	assert.Equal(t, []float64{1, 0}, values(tr.Points()))
}

func TestTrackerEmpty(t *testing.T) {
	tr := history.NewTracker(0)

	_, ok := tr.Peak()
	assert.False(t, ok)
	_, ok = tr.Last()
	assert.False(t, ok)
	assert.Nil(t, tr.Points())
	assert.Equal(t, history.DefaultCapacity, tr.Cap())
	assert.Nil(t, tr.Series().Peak)
}

func TestTrackerNegativeFirstValueBecomesPeak(t *testing.T) {
	tr := history.NewTracker(3)
	tr.Push(at(0), -3)

	peak, ok := tr.Peak()
	require.True(t, ok)
	assert.InDelta(t, -3.0, peak.Value, 1e-9)
}

func TestSeriesIsACopy(t *testing.T) {
	tr := history.NewTracker(3)
	tr.Push(at(0), 1)
	s := tr.Series()

	tr.Push(at(1), 9)

	assert.Len(t, s.Points, 1)
	require.NotNil(t, s.Peak)
	assert.InDelta(t, 1.0, s.Peak.Value, 1e-9)
}

func TestRingLast(t *testing.T) {
	r := history.NewRing[int](2)
	assert.False(t, r.Push(1))
	assert.False(t, r.Push(2))
	assert.True(t, r.Push(3))

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, 3, last)
	assert.Equal(t, []int{2, 3}, r.All())
}

func values(points []history.Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}
