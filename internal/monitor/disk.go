package monitor

import (
	"context"
	"time"

	"codeberg.org/mutker/hostpulse/internal/history"
	"codeberg.org/mutker/hostpulse/internal/host"
	"codeberg.org/mutker/hostpulse/internal/logger"
)

// Disk reports per-partition usage and the aggregate across all partitions.
// The history holds the aggregate used percent.
type Disk struct {
	src     host.Source
	log     logger.Logger
	history *history.Tracker
}

func NewDisk(src host.Source, historyLen int, log logger.Logger) *Disk {
	return &Disk{
		src:     src,
		log:     log.With("disk_monitor"),
		history: history.NewTracker(historyLen),
	}
}

func (m *Disk) Sample(ctx context.Context, now time.Time) DiskSample {
	s := DiskSample{Time: now}

	parts, err := m.src.Partitions(ctx)
	if err != nil {
		m.log.Debug().Err(err).Msg("Partition list unavailable")
		s.History = m.history.Series()
		return s
	}

	var total, used uint64
	for _, p := range parts {
		if p.Fstype == "" {
			continue
		}

		s.Drives = append(s.Drives, Drive{
			Device:  p.Device,
			Mount:   p.Mountpoint,
			TotalGB: round(float64(p.Total)/bytesPerGB, 2),
			UsedGB:  round(float64(p.Used)/bytesPerGB, 2),
			FreeGB:  round(float64(p.Free)/bytesPerGB, 2),
			Percent: p.Percent,
		})
		total += p.Total
		used += p.Used
	}

	percent := 0.0
	if total > 0 {
		percent = float64(used) / float64(total) * 100
	}

	s.Total = &DiskTotal{
		TotalGB: round(float64(total)/bytesPerGB, 2),
		UsedGB:  round(float64(used)/bytesPerGB, 2),
		FreeGB:  round(float64(total-used)/bytesPerGB, 2),
		Percent: round(percent, 2),
	}

	m.history.Push(now, percent)
	s.History = m.history.Series()

	return s
}
