package metrics

import (
	"context"
	"time"
)

// Recorder archives one row per sampling tick.
type Recorder interface {
	Record(ctx context.Context, row *TickRow) error
	Close() error
}

// Repository is the storage behind a Recorder.
type Repository interface {
	Record(row *TickRow) error
	Close() error
}

// TickRow is the archived form of one tick. Nil readings are stored as
// NULL.
type TickRow struct {
	Timestamp      time.Time
	CPU            *float64
	RAM            *float64
	Swap           *float64
	DiskPercent    *float64
	NetDownBytes   uint64
	NetUpBytes     uint64
	BatteryPercent *float64
	CPUHits        int
	RAMHits        int
}
