package monitor

import (
	"math"
	"time"

	"codeberg.org/mutker/hostpulse/internal/history"
)

const bytesPerGB = 1024 * 1024 * 1024

// Optional readings are nil when the host could not provide them.
type (
	ProcessReading struct {
		PID          int32   `json:"pid"`
		Name         string  `json:"name"`
		CPUPercent   float64 `json:"cpu_percent"`
		MemPercent   float64 `json:"memory_percent"`
		IOReadBytes  uint64  `json:"io_read"`
		IOWriteBytes uint64  `json:"io_write"`
		NetSentBytes uint64  `json:"net_sent"`
		NetRecvBytes uint64  `json:"net_recv"`
	}

	SystemSample struct {
		Time       time.Time        `json:"timestamp"`
		CPU        *float64         `json:"cpu"`
		RAM        *float64         `json:"ram"`
		Swap       *float64         `json:"swap"`
		TopCPU     []ProcessReading `json:"top_cpu"`
		TopMem     []ProcessReading `json:"top_mem"`
		CPUHistory history.Series   `json:"cpu_history"`
		RAMHistory history.Series   `json:"ram_history"`
	}

	Drive struct {
		Device  string  `json:"device"`
		Mount   string  `json:"mount"`
		TotalGB float64 `json:"total"`
		UsedGB  float64 `json:"used"`
		FreeGB  float64 `json:"free"`
		Percent float64 `json:"percent"`
	}

	DiskTotal struct {
		TotalGB float64 `json:"total"`
		UsedGB  float64 `json:"used"`
		FreeGB  float64 `json:"free"`
		Percent float64 `json:"percent"`
	}

	DiskSample struct {
		Time    time.Time      `json:"timestamp"`
		Drives  []Drive        `json:"drives"`
		Total   *DiskTotal     `json:"total"`
		History history.Series `json:"history"`
	}

	Adapter struct {
		Name      string `json:"name"`
		Up        bool   `json:"isup"`
		MTU       int    `json:"mtu"`
		SentDelta uint64 `json:"sent_delta"`
		RecvDelta uint64 `json:"recv_delta"`
	}

	NetworkSample struct {
		Time time.Time `json:"timestamp"`
		// DownKB and UpKB are nil on the first sample, which only records
		// the baseline counters.
		DownKB      *float64       `json:"down"`
		UpKB        *float64       `json:"up"`
		DownBytes   uint64         `json:"down_bytes"`
		UpBytes     uint64         `json:"up_bytes"`
		BytesDelta  uint64         `json:"bytes_delta"`
		Adapters    []Adapter      `json:"adapters"`
		HistoryDown history.Series `json:"history_down"`
		HistoryUp   history.Series `json:"history_up"`
	}

	BatterySample struct {
		Time       time.Time      `json:"timestamp"`
		Present    bool           `json:"present"`
		Percent    *float64       `json:"percent"`
		Plugged    *bool          `json:"power_plugged"`
		SecsLeft   *int64         `json:"secsleft"`
		DesignMWh  *int64         `json:"design_capacity_mwh"`
		FullMWh    *int64         `json:"full_charge_capacity_mwh"`
		CycleCount *int           `json:"cycle_count"`
		VoltageMV  *int           `json:"voltage_mv"`
		History    history.Series `json:"history"`
	}
)

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

func ptr[T any](v T) *T { return &v }
