// Package wear projects battery health from the daily capacity log.
//
// Wear is the share of design capacity the battery has lost:
//
//	wear% = 100 * (1 - full / design)
//
// Predict fits an ordinary least squares line through wear% over days
// since the first logged day and extrapolates it.
package wear

import (
	"fmt"
	"math"
	"time"

	"codeberg.org/mutker/hostpulse/internal/logger"
	"codeberg.org/mutker/hostpulse/internal/store"
)

const (
	DefaultMinPoints = 3
	DefaultMonths    = 6.0
	daysPerMonth     = 30.4375
	hoursPerDay      = 24
)

// Prediction numeric fields are nil when there was not enough data or the
// fit failed; Notes then says why.
type Prediction struct {
	WeeklyDegradationPct *float64            `json:"weekly_degradation_percent"`
	ProjectedHealthPct   *float64            `json:"projected_health_percent"`
	HealthScore          *int                `json:"health_score"`
	SlopePerDay          *float64            `json:"trend_slope_wear_per_day"`
	Notes                string              `json:"notes"`
	Entries              []store.HealthEntry `json:"entries"`
}

type Predictor struct {
	log       *store.HealthLog
	minPoints int
	now       func() time.Time
	logger    logger.Logger
}

type Option func(*Predictor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Predictor) { p.now = now }
}

func WithLogger(l logger.Logger) Option {
	return func(p *Predictor) { p.logger = l.With("wear") }
}

func NewPredictor(log *store.HealthLog, minPoints int, opts ...Option) *Predictor {
	if minPoints <= 0 {
		minPoints = DefaultMinPoints
	}

	p := &Predictor{
		log:       log,
		minPoints: minPoints,
		now:       time.Now,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// AppendDailyEntry records the capacities of date (YYYY-MM-DD), replacing
// any entry already logged for it. Wear is computed only when both
// capacities are positive. A failed write is logged and returned; the
// entry is returned either way.
func (p *Predictor) AppendDailyEntry(date string, design, full int64, cycles, voltage *int) (store.HealthEntry, error) {
	entry := store.HealthEntry{
		Date:       date,
		DesignMWh:  &design,
		FullMWh:    &full,
		CycleCount: cycles,
		VoltageMV:  voltage,
	}
	if design > 0 && full > 0 {
		w := round((1-float64(full)/float64(design))*100, 3)
		entry.WearPct = &w
	}

	if err := p.log.Upsert(entry); err != nil {
		p.logger.Warn().Err(err).Str("date", date).Msg("Failed to persist battery health entry")
		return entry, err
	}

	return entry, nil
}

// Predict projects health monthsAhead months from now. Zero projects to
// now; a negative or NaN horizon means DefaultMonths.
func (p *Predictor) Predict(monthsAhead float64) Prediction {
	if monthsAhead < 0 || math.IsNaN(monthsAhead) {
		monthsAhead = DefaultMonths
	}

	entries, err := p.log.Load()
	if err != nil {
		p.logger.Warn().Err(err).Msg("Battery health log unreadable, treating as empty")
	}

	result := Prediction{Entries: entries}

	var usable []store.HealthEntry
	for _, e := range entries {
		if e.WearPct != nil && e.DesignMWh != nil && *e.DesignMWh > 0 {
			usable = append(usable, e)
		}
	}
	if len(usable) < p.minPoints {
		result.Notes = fmt.Sprintf("Need at least %d daily capacity samples (found %d).", p.minPoints, len(usable))
		return result
	}

	first, err := time.Parse(store.DateLayout, usable[0].Date)
	if err != nil {
		result.Notes = "Insufficient usable log entries after parsing."
		return result
	}

	xs := make([]float64, 0, len(usable))
	ys := make([]float64, 0, len(usable))
	for _, e := range usable {
		d, err := time.Parse(store.DateLayout, e.Date)
		if err != nil {
			continue
		}
		xs = append(xs, math.Floor(d.Sub(first).Hours()/hoursPerDay))
		ys = append(ys, *e.WearPct)
	}
	if len(xs) < p.minPoints {
		result.Notes = "Insufficient usable log entries after parsing."
		return result
	}

	slope, intercept, ok := fitLine(xs, ys)
	if !ok {
		result.Notes = "Failed to compute degradation slope."
		return result
	}

	now := p.now()
	firstLocal := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, now.Location())
	elapsed := math.Floor(now.Sub(firstLocal).Hours() / hoursPerDay)

	weekly := slope * 7
	projectedWear := slope*(elapsed+monthsAhead*daysPerMonth) + intercept
	health := clamp((1-projectedWear/100)*100, 0, 100)
	score := int(math.Round(health))

	result.WeeklyDegradationPct = ptr(round(weekly, 6))
	result.ProjectedHealthPct = ptr(round(health, 2))
	result.HealthScore = &score
	result.SlopePerDay = ptr(round(slope, 8))
	result.Notes = fmt.Sprintf(
		"Computed slope: %.6f %% wear per day.\n"+
			"Weekly wear increase (approx): %.4f%%.\n"+
			"Wear %% = 100 * (1 - FullChargeCapacity / DesignCapacity).",
		slope, weekly)

	return result
}

// fitLine returns the least squares line through the points. ok is false
// when all x are equal.
func fitLine(xs, ys []float64) (slope, intercept float64, ok bool) {
	n := float64(len(xs))

	var sx, sy, sxy, sxx float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
		sxy += xs[i] * ys[i]
		sxx += xs[i] * xs[i]
	}

	denom := n*sxx - sx*sx
	if denom == 0 {
		return 0, 0, false
	}

	slope = (n*sxy - sx*sy) / denom
	intercept = (sy - slope*sx) / n

	return slope, intercept, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

func ptr[T any](v T) *T { return &v }
