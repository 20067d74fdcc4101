package monitor

import (
	"context"
	"time"

	"codeberg.org/mutker/hostpulse/internal/history"
	"codeberg.org/mutker/hostpulse/internal/host"
	"codeberg.org/mutker/hostpulse/internal/logger"
)

// Battery merges the live charge status with the capacity figures of a
// CapacityReporter. Reports are cached and refreshed at most once per
// refresh interval.
type Battery struct {
	src      host.Source
	reporter host.CapacityReporter
	refresh  time.Duration
	log      logger.Logger
	history  *history.Tracker

	report     host.CapacityReport
	reportedAt time.Time
}

// NewBattery creates a battery monitor. reporter may be nil, in which case
// capacity fields stay empty.
func NewBattery(src host.Source, reporter host.CapacityReporter, historyLen int, refresh time.Duration, log logger.Logger) *Battery {
	return &Battery{
		src:      src,
		reporter: reporter,
		refresh:  refresh,
		log:      log.With("battery_monitor"),
		history:  history.NewTracker(historyLen),
	}
}

func (m *Battery) Sample(ctx context.Context, now time.Time) BatterySample {
	s := BatterySample{Time: now}

	status, err := m.src.Battery(ctx)
	if err != nil {
		m.log.Debug().Err(err).Msg("Battery status unavailable")
	} else if status.Present {
		s.Present = true
		s.Percent = status.Percent
		s.Plugged = status.Plugged
		s.SecsLeft = status.SecsLeft
		if status.Percent != nil {
			m.history.Push(now, *status.Percent)
		}
	}

	m.refreshReport(ctx, now)
	s.DesignMWh = m.report.DesignMWh
	s.FullMWh = m.report.FullMWh
	s.CycleCount = m.report.CycleCount
	s.VoltageMV = m.report.VoltageMV
	s.History = m.history.Series()

	return s
}

func (m *Battery) refreshReport(ctx context.Context, now time.Time) {
	if m.reporter == nil {
		return
	}
	if !m.reportedAt.IsZero() && now.Sub(m.reportedAt) < m.refresh {
		return
	}
	m.reportedAt = now

	report, err := m.reporter.Report(ctx)
	if err != nil {
		m.log.Debug().Err(err).Msg("Battery capacity report failed")
		return
	}

	// Keep previously known fields when a refresh omits them.
	if report.DesignMWh != nil {
		m.report.DesignMWh = report.DesignMWh
	}
	if report.FullMWh != nil {
		m.report.FullMWh = report.FullMWh
	}
	if report.CycleCount != nil {
		m.report.CycleCount = report.CycleCount
	}
	if report.VoltageMV != nil {
		m.report.VoltageMV = report.VoltageMV
	}
}
