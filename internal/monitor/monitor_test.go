package monitor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"codeberg.org/mutker/hostpulse/internal/host"
	"codeberg.org/mutker/hostpulse/internal/logger"
	"codeberg.org/mutker/hostpulse/internal/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnavailable = errors.New("unavailable")

type fakeSource struct {
	cpu      float64
	cpuErr   error
	mem      host.MemoryUsage
	memErr   error
	parts    []host.PartitionUsage
	partsErr error
	nets     []host.AdapterCounters
	netsErr  error
	procs    []host.ProcessUsage
	procsErr error
	battery  host.BatteryStatus
	batErr   error
}

func (f *fakeSource) CPUPercent(context.Context) (float64, error) { return f.cpu, f.cpuErr }
func (f *fakeSource) Memory(context.Context) (host.MemoryUsage, error) {
	return f.mem, f.memErr
}

func (f *fakeSource) Partitions(context.Context) ([]host.PartitionUsage, error) {
	return f.parts, f.partsErr
}

func (f *fakeSource) NetCounters(context.Context) ([]host.AdapterCounters, error) {
	return f.nets, f.netsErr
}

func (f *fakeSource) Processes(context.Context) ([]host.ProcessUsage, error) {
	return f.procs, f.procsErr
}

func (f *fakeSource) Battery(context.Context) (host.BatteryStatus, error) {
	return f.battery, f.batErr
}

type fakeReporter struct {
	calls  int
	report host.CapacityReport
	err    error
}

func (f *fakeReporter) Report(context.Context) (host.CapacityReport, error) {
	f.calls++
	return f.report, f.err
}

var epoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func TestSystemSample(t *testing.T) {
	src := &fakeSource{
		cpu: 42.5,
		mem: host.MemoryUsage{RAMPercent: 61, SwapPercent: 3},
		procs: []host.ProcessUsage{
			{PID: 1, Name: "init", CPUPercent: 0.1, MemPercent: 0.2},
			{PID: 20, Name: "firefox", CPUPercent: 30, MemPercent: 12},
			{PID: 30, Name: "code", CPUPercent: 10, MemPercent: 25},
		},
	}
	m := monitor.NewSystem(src, 10, 2, logger.Nop())

	s := m.Sample(context.Background(), epoch)

	require.NotNil(t, s.CPU)
	assert.InDelta(t, 42.5, *s.CPU, 1e-9)
	require.NotNil(t, s.RAM)
	assert.InDelta(t, 61.0, *s.RAM, 1e-9)
	require.Len(t, s.TopCPU, 2)
	assert.Equal(t, "firefox", s.TopCPU[0].Name)
	assert.Equal(t, "code", s.TopCPU[1].Name)
	require.Len(t, s.TopMem, 2)
	assert.Equal(t, "code", s.TopMem[0].Name)
	assert.Len(t, s.CPUHistory.Points, 1)
	require.NotNil(t, s.RAMHistory.Peak)
	assert.InDelta(t, 61.0, s.RAMHistory.Peak.Value, 1e-9)
}

func TestSystemSampleDegradesOnErrors(t *testing.T) {
	src := &fakeSource{cpuErr: errUnavailable, memErr: errUnavailable, procsErr: errUnavailable}
	m := monitor.NewSystem(src, 10, 5, logger.Nop())

	s := m.Sample(context.Background(), epoch)

	assert.Nil(t, s.CPU)
	assert.Nil(t, s.RAM)
	assert.Nil(t, s.Swap)
	assert.Empty(t, s.TopCPU)
	assert.Empty(t, s.CPUHistory.Points)
}

func TestDiskSampleAggregatesPartitions(t *testing.T) {
	const gb = 1 << 30
	src := &fakeSource{parts: []host.PartitionUsage{
		{Device: "/dev/sda1", Mountpoint: "/", Fstype: "ext4", Total: 100 * gb, Used: 40 * gb, Free: 60 * gb, Percent: 40},
		{Device: "/dev/sr0", Mountpoint: "/media/cd", Fstype: ""},
		{Device: "/dev/sdb1", Mountpoint: "/data", Fstype: "xfs", Total: 300 * gb, Used: 60 * gb, Free: 240 * gb, Percent: 20},
	}}
	m := monitor.NewDisk(src, 10, logger.Nop())

	s := m.Sample(context.Background(), epoch)

	require.Len(t, s.Drives, 2)
	assert.Equal(t, "/data", s.Drives[1].Mount)
	assert.InDelta(t, 100.0, s.Drives[0].TotalGB, 1e-9)
	require.NotNil(t, s.Total)
	assert.InDelta(t, 400.0, s.Total.TotalGB, 1e-9)
	assert.InDelta(t, 100.0, s.Total.UsedGB, 1e-9)
	assert.InDelta(t, 300.0, s.Total.FreeGB, 1e-9)
	assert.InDelta(t, 25.0, s.Total.Percent, 1e-9)
	require.Len(t, s.History.Points, 1)
	assert.InDelta(t, 25.0, s.History.Points[0].Value, 1e-9)
}

func TestDiskSampleWithoutPartitions(t *testing.T) {
	m := monitor.NewDisk(&fakeSource{partsErr: errUnavailable}, 10, logger.Nop())

	s := m.Sample(context.Background(), epoch)

	assert.Nil(t, s.Total)
	assert.Empty(t, s.Drives)
}

func TestNetworkFirstSampleIsBaseline(t *testing.T) {
	src := &fakeSource{nets: []host.AdapterCounters{
		{Name: "eth0", BytesRecv: 10_000, BytesSent: 2_000, Up: true, MTU: 1500},
		{Name: "lo", BytesRecv: 500, BytesSent: 500, Up: true, MTU: 65536},
	}}
	m := monitor.NewNetwork(src, 10, logger.Nop())

	first := m.Sample(context.Background(), epoch)
	assert.Nil(t, first.DownKB)
	assert.Nil(t, first.UpKB)
	assert.Empty(t, first.HistoryDown.Points)
	require.Len(t, first.Adapters, 2)

	src.nets = []host.AdapterCounters{
		{Name: "eth0", BytesRecv: 10_000 + 4096, BytesSent: 2_000 + 1024, Up: true, MTU: 1500},
		{Name: "lo", BytesRecv: 500, BytesSent: 500, Up: true, MTU: 65536},
	}
	second := m.Sample(context.Background(), epoch.Add(5*time.Second))

	require.NotNil(t, second.DownKB)
	assert.InDelta(t, 4.0, *second.DownKB, 1e-9)
	assert.InDelta(t, 1.0, *second.UpKB, 1e-9)
	assert.Equal(t, uint64(5120), second.BytesDelta)
	assert.Equal(t, uint64(4096), second.Adapters[0].RecvDelta)
	require.NotNil(t, second.HistoryDown.Peak)
	assert.InDelta(t, 4.0, second.HistoryDown.Peak.Value, 1e-9)
}

func TestNetworkCounterResetCountsAsZero(t *testing.T) {
	src := &fakeSource{nets: []host.AdapterCounters{{Name: "wlan0", BytesRecv: 9000, BytesSent: 9000}}}
	m := monitor.NewNetwork(src, 10, logger.Nop())
	m.Sample(context.Background(), epoch)

	src.nets = []host.AdapterCounters{{Name: "wlan0", BytesRecv: 100, BytesSent: 100}}
	s := m.Sample(context.Background(), epoch.Add(5*time.Second))

	require.NotNil(t, s.DownKB)
	assert.Zero(t, *s.DownKB)
	assert.Zero(t, s.BytesDelta)
}

func TestBatteryMergesCachedReport(t *testing.T) {
	src := &fakeSource{battery: host.BatteryStatus{
		Present: true,
		Percent: ptr(81.0),
		Plugged: ptr(false),
	}}
	reporter := &fakeReporter{report: host.CapacityReport{
		DesignMWh: ptr(int64(50000)),
		FullMWh:   ptr(int64(45000)),
	}}
	m := monitor.NewBattery(src, reporter, 600, time.Hour, logger.Nop())

	s := m.Sample(context.Background(), epoch)
	require.True(t, s.Present)
	require.NotNil(t, s.DesignMWh)
	assert.Equal(t, int64(50000), *s.DesignMWh)
	assert.Equal(t, int64(45000), *s.FullMWh)
	assert.Nil(t, s.CycleCount)

	reporter.err = errUnavailable
	s = m.Sample(context.Background(), epoch.Add(time.Minute))
	assert.Equal(t, 1, reporter.calls)
	assert.Equal(t, int64(45000), *s.FullMWh)
	assert.Len(t, s.History.Points, 2)

	m.Sample(context.Background(), epoch.Add(2*time.Hour))
	assert.Equal(t, 2, reporter.calls)
}

func TestBatteryAbsent(t *testing.T) {
	m := monitor.NewBattery(&fakeSource{batErr: errUnavailable}, nil, 600, time.Hour, logger.Nop())

	s := m.Sample(context.Background(), epoch)

	assert.False(t, s.Present)
	assert.Nil(t, s.Percent)
	assert.Nil(t, s.DesignMWh)
	assert.Empty(t, s.History.Points)
}
