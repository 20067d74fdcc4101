package monitor

import (
	"context"
	"sort"
	"time"

	"codeberg.org/mutker/hostpulse/internal/history"
	"codeberg.org/mutker/hostpulse/internal/host"
	"codeberg.org/mutker/hostpulse/internal/logger"
)

// System samples CPU, RAM and swap usage and the busiest processes.
type System struct {
	src  host.Source
	log  logger.Logger
	cpu  *history.Tracker
	ram  *history.Tracker
	topN int
}

func NewSystem(src host.Source, historyLen, topN int, log logger.Logger) *System {
	return &System{
		src:  src,
		log:  log.With("system_monitor"),
		cpu:  history.NewTracker(historyLen),
		ram:  history.NewTracker(historyLen),
		topN: topN,
	}
}

func (m *System) Sample(ctx context.Context, now time.Time) SystemSample {
	s := SystemSample{Time: now}

	if cpu, err := m.src.CPUPercent(ctx); err != nil {
		m.log.Debug().Err(err).Msg("CPU reading unavailable")
	} else {
		s.CPU = ptr(cpu)
		m.cpu.Push(now, cpu)
	}

	if usage, err := m.src.Memory(ctx); err != nil {
		m.log.Debug().Err(err).Msg("Memory reading unavailable")
	} else {
		s.RAM = ptr(usage.RAMPercent)
		s.Swap = ptr(usage.SwapPercent)
		m.ram.Push(now, usage.RAMPercent)
	}

	if procs, err := m.src.Processes(ctx); err != nil {
		m.log.Debug().Err(err).Msg("Process list unavailable")
	} else {
		s.TopCPU = top(procs, m.topN, func(p host.ProcessUsage) float64 { return p.CPUPercent })
		s.TopMem = top(procs, m.topN, func(p host.ProcessUsage) float64 { return p.MemPercent })
	}

	s.CPUHistory = m.cpu.Series()
	s.RAMHistory = m.ram.Series()

	return s
}

func top(procs []host.ProcessUsage, n int, key func(host.ProcessUsage) float64) []ProcessReading {
	sorted := make([]host.ProcessUsage, len(procs))
	copy(sorted, procs)
	sort.SliceStable(sorted, func(i, j int) bool { return key(sorted[i]) > key(sorted[j]) })

	if n < len(sorted) {
		sorted = sorted[:n]
	}

	out := make([]ProcessReading, len(sorted))
	for i, p := range sorted {
		out[i] = ProcessReading{
			PID:          p.PID,
			Name:         p.Name,
			CPUPercent:   p.CPUPercent,
			MemPercent:   p.MemPercent,
			IOReadBytes:  p.IOReadBytes,
			IOWriteBytes: p.IOWriteBytes,
			NetSentBytes: p.NetSentBytes,
			NetRecvBytes: p.NetRecvBytes,
		}
	}

	return out
}
