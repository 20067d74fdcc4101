package monitor

import (
	"context"
	"time"

	"codeberg.org/mutker/hostpulse/internal/history"
	"codeberg.org/mutker/hostpulse/internal/host"
	"codeberg.org/mutker/hostpulse/internal/logger"
)

// Network turns cumulative adapter counters into per-tick deltas. The first
// successful reading only establishes the baseline.
type Network struct {
	src  host.Source
	log  logger.Logger
	down *history.Tracker
	up   *history.Tracker

	baseline bool
	lastRecv uint64
	lastSent uint64
	adapters map[string]host.AdapterCounters
}

func NewNetwork(src host.Source, historyLen int, log logger.Logger) *Network {
	return &Network{
		src:      src,
		log:      log.With("network_monitor"),
		down:     history.NewTracker(historyLen),
		up:       history.NewTracker(historyLen),
		adapters: make(map[string]host.AdapterCounters),
	}
}

func (m *Network) Sample(ctx context.Context, now time.Time) NetworkSample {
	s := NetworkSample{Time: now}

	counters, err := m.src.NetCounters(ctx)
	if err != nil {
		m.log.Debug().Err(err).Msg("Network counters unavailable")
		s.HistoryDown = m.down.Series()
		s.HistoryUp = m.up.Series()
		return s
	}

	var recv, sent uint64
	seen := make(map[string]host.AdapterCounters, len(counters))
	for _, c := range counters {
		recv += c.BytesRecv
		sent += c.BytesSent

		a := Adapter{Name: c.Name, Up: c.Up, MTU: c.MTU}
		if prev, ok := m.adapters[c.Name]; ok {
			a.SentDelta = counterDelta(prev.BytesSent, c.BytesSent)
			a.RecvDelta = counterDelta(prev.BytesRecv, c.BytesRecv)
		}
		s.Adapters = append(s.Adapters, a)
		seen[c.Name] = c
	}
	m.adapters = seen

	if m.baseline {
		downBytes := counterDelta(m.lastRecv, recv)
		upBytes := counterDelta(m.lastSent, sent)
		downKB := float64(downBytes) / 1024
		upKB := float64(upBytes) / 1024

		m.down.Push(now, downKB)
		m.up.Push(now, upKB)

		s.DownKB = ptr(round(downKB, 2))
		s.UpKB = ptr(round(upKB, 2))
		s.DownBytes = downBytes
		s.UpBytes = upBytes
		s.BytesDelta = downBytes + upBytes
	}

	m.baseline = true
	m.lastRecv = recv
	m.lastSent = sent

	s.HistoryDown = m.down.Series()
	s.HistoryUp = m.up.Series()

	return s
}

// counterDelta treats a counter that went backwards (interface reset) as
// zero traffic.
func counterDelta(prev, cur uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}
