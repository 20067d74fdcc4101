// Package history keeps the bounded time series the monitors chart from,
// together with the session peak of each series.
package history

import "time"

// DefaultCapacity is the number of points kept when none is configured.
const DefaultCapacity = 60

// Point is one timestamped reading.
type Point struct {
	Time  time.Time `json:"ts"`
	Value float64   `json:"value"`
}

// Tracker is a bounded series plus the highest value ever pushed. The peak
// is never evicted and never reset; it lives as long as the tracker.
//
// A Tracker has a single writer. Readers get copies through Points or a
// Series.
type Tracker struct {
	ring    *Ring[Point]
	peak    Point
	hasPeak bool
}

func NewTracker(capacity int) *Tracker {
	return &Tracker{ring: NewRing[Point](capacity)}
}

// Push appends a reading. The peak moves only on a strictly greater value.
func (t *Tracker) Push(ts time.Time, value float64) {
	t.ring.Push(Point{Time: ts, Value: value})

	if !t.hasPeak || value > t.peak.Value {
		t.peak = Point{Time: ts, Value: value}
		t.hasPeak = true
	}
}

func (t *Tracker) Points() []Point { return t.ring.All() }
func (t *Tracker) Len() int        { return t.ring.Len() }
func (t *Tracker) Cap() int        { return t.ring.Cap() }

// Peak returns the highest reading so far.
func (t *Tracker) Peak() (Point, bool) {
	return t.peak, t.hasPeak
}

func (t *Tracker) Last() (Point, bool) {
	return t.ring.Last()
}

// Series is an immutable copy of a tracker's state.
type Series struct {
	Points []Point `json:"points"`
	Peak   *Point  `json:"peak,omitempty"`
}

// Series copies the current state for publication.
func (t *Tracker) Series() Series {
	s := Series{Points: t.Points()}
	if t.hasPeak {
		p := t.peak
		s.Peak = &p
	}

	return s
}
