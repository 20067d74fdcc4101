package host

import (
	"context"
	"slices"
	"sync"
	"time"

	"codeberg.org/mutker/hostpulse/internal/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

type procCounters struct {
	cpuSeconds float64
	readBytes  uint64
	writeBytes uint64
	at         time.Time
}

// Gopsutil is the Source backed by gopsutil. gopsutil has no battery
// support, so Battery delegates to a PowerSupply.
type Gopsutil struct {
	battery *PowerSupply

	mu   sync.Mutex
	prev map[int32]procCounters
	now  func() time.Time
}

func NewGopsutil(battery *PowerSupply) *Gopsutil {
	// The first percent call only primes gopsutil's internal counters.
	_, _ = cpu.Percent(0, false)

	return &Gopsutil{
		battery: battery,
		prev:    make(map[int32]procCounters),
		now:     time.Now,
	}
}

func (g *Gopsutil) CPUPercent(ctx context.Context) (float64, error) {
	errFactory := errors.New()

	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, errFactory.Wrap(ErrCPUReadFailed, err)
	}
	if len(pct) == 0 {
		return 0, errFactory.New(ErrCPUReadFailed)
	}

	return pct[0], nil
}

func (g *Gopsutil) Memory(ctx context.Context) (MemoryUsage, error) {
	errFactory := errors.New()

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryUsage{}, errFactory.Wrap(ErrMemoryReadFailed, err)
	}

	usage := MemoryUsage{RAMPercent: vm.UsedPercent}
	if sw, err := mem.SwapMemoryWithContext(ctx); err == nil {
		usage.SwapPercent = sw.UsedPercent
	}

	return usage, nil
}

func (g *Gopsutil) Partitions(ctx context.Context) ([]PartitionUsage, error) {
	errFactory := errors.New()

	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, errFactory.Wrap(ErrPartitionReadFailed, err)
	}

	out := make([]PartitionUsage, 0, len(parts))
	for _, p := range parts {
		// Drives without a filesystem (empty optical drives) have nothing to report.
		if p.Fstype == "" {
			continue
		}
		u, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			continue
		}
		out = append(out, PartitionUsage{
			Device:     p.Device,
			Mountpoint: p.Mountpoint,
			Fstype:     p.Fstype,
			Total:      u.Total,
			Used:       u.Used,
			Free:       u.Free,
			Percent:    u.UsedPercent,
		})
	}

	return out, nil
}

func (g *Gopsutil) NetCounters(ctx context.Context) ([]AdapterCounters, error) {
	errFactory := errors.New()

	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, errFactory.Wrap(ErrNetReadFailed, err)
	}

	ifaces := make(map[string]net.InterfaceStat)
	if list, err := net.InterfacesWithContext(ctx); err == nil {
		for _, iface := range list {
			ifaces[iface.Name] = iface
		}
	}

	out := make([]AdapterCounters, 0, len(counters))
	for _, c := range counters {
		a := AdapterCounters{
			Name:      c.Name,
			BytesSent: c.BytesSent,
			BytesRecv: c.BytesRecv,
		}
		if iface, ok := ifaces[c.Name]; ok {
			a.MTU = iface.MTU
			a.Up = slices.Contains(iface.Flags, "up")
		}
		out = append(out, a)
	}

	return out, nil
}

// Processes lists every readable process. CPU percent and IO bytes are
// computed against the previous call, so a process seen for the first time
// reports zero for both.
func (g *Gopsutil) Processes(ctx context.Context) ([]ProcessUsage, error) {
	errFactory := errors.New()

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errFactory.Wrap(ErrProcessReadFailed, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	seen := make(map[int32]procCounters, len(procs))
	out := make([]ProcessUsage, 0, len(procs))

	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		usage := ProcessUsage{PID: p.Pid, Name: name}

		cur := procCounters{at: now}
		if times, err := p.TimesWithContext(ctx); err == nil {
			cur.cpuSeconds = times.User + times.System
		}
		if io, err := p.IOCountersWithContext(ctx); err == nil {
			cur.readBytes = io.ReadBytes
			cur.writeBytes = io.WriteBytes
		}
		if memPct, err := p.MemoryPercentWithContext(ctx); err == nil {
			usage.MemPercent = float64(memPct)
		}

		if prev, ok := g.prev[p.Pid]; ok {
			if wall := now.Sub(prev.at).Seconds(); wall > 0 && cur.cpuSeconds >= prev.cpuSeconds {
				usage.CPUPercent = (cur.cpuSeconds - prev.cpuSeconds) / wall * 100
			}
			usage.IOReadBytes = counterDelta(cur.readBytes, prev.readBytes)
			usage.IOWriteBytes = counterDelta(cur.writeBytes, prev.writeBytes)
		}

		seen[p.Pid] = cur
		out = append(out, usage)
	}

	g.prev = seen

	return out, nil
}

func (g *Gopsutil) Battery(ctx context.Context) (BatteryStatus, error) {
	if g.battery == nil {
		return BatteryStatus{}, errors.New().New(ErrBatteryUnavailable)
	}

	return g.battery.Status(ctx)
}

func counterDelta(cur, prev uint64) uint64 {
	if cur < prev {
		return 0
	}

	return cur - prev
}
