package host

import "context"

// Source reads raw metrics from the operating system. Every method returns
// an error when the metric is unavailable on this host; callers treat that
// as an absent reading.
type Source interface {
	CPUPercent(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (MemoryUsage, error)
	Partitions(ctx context.Context) ([]PartitionUsage, error)
	NetCounters(ctx context.Context) ([]AdapterCounters, error)
	Processes(ctx context.Context) ([]ProcessUsage, error)
	Battery(ctx context.Context) (BatteryStatus, error)
}

// CapacityReporter produces battery capacity figures, which are usually
// more expensive to obtain than the live charge level.
type CapacityReporter interface {
	Report(ctx context.Context) (CapacityReport, error)
}

// Domain types for raw readings
type (
	MemoryUsage struct {
		RAMPercent  float64
		SwapPercent float64
	}

	PartitionUsage struct {
		Device     string
		Mountpoint string
		Fstype     string
		Total      uint64
		Used       uint64
		Free       uint64
		Percent    float64
	}

	AdapterCounters struct {
		Name      string
		BytesSent uint64
		BytesRecv uint64
		Up        bool
		MTU       int
	}

	ProcessUsage struct {
		PID        int32
		Name       string
		CPUPercent float64
		MemPercent float64
		// IO byte counts since the previous Processes call.
		IOReadBytes  uint64
		IOWriteBytes uint64
		NetSentBytes uint64
		NetRecvBytes uint64
	}

	BatteryStatus struct {
		Present  bool
		Percent  *float64
		Plugged  *bool
		SecsLeft *int64
	}

	// CapacityReport fields are nil when the report did not contain them.
	CapacityReport struct {
		DesignMWh  *int64
		FullMWh    *int64
		CycleCount *int
		VoltageMV  *int
	}
)
