// Package alert implements the consecutive-breach threshold state machine.
//
// A reading strictly above the threshold extends the breach; any other
// reading resets it. Once the breach length reaches the limit an event is
// raised on every further breaching reading until the metric recovers.
package alert

import (
	"fmt"
	"sync"
)

type State int

const (
	Normal State = iota
	Breaching
)

func (s State) String() string {
	if s == Breaching {
		return "breaching"
	}
	return "normal"
}

const (
	MetricCPU = "CPU"
	MetricRAM = "RAM"
)

// Event is raised while a metric has breached its threshold for at least
// Limit consecutive readings.
type Event struct {
	Metric    string
	Value     float64
	Threshold float64
	Hits      int
}

func (e Event) Message() string {
	return fmt.Sprintf("%s > %g%% for %d checks.", e.Metric, e.Threshold, e.Hits)
}

// Counter tracks one metric. The zero value never fires until Limit is set.
type Counter struct {
	Metric    string
	Threshold float64
	Limit     int

	hits int
}

func (c *Counter) Observe(v float64) (Event, bool) {
	if v > c.Threshold {
		c.hits++
	} else {
		c.hits = 0
	}

	if c.Limit <= 0 || c.hits < c.Limit {
		return Event{}, false
	}

	return Event{
		Metric:    c.Metric,
		Value:     v,
		Threshold: c.Threshold,
		Hits:      c.hits,
	}, true
}

func (c *Counter) Hits() int { return c.hits }

func (c *Counter) State() State {
	if c.hits > 0 {
		return Breaching
	}
	return Normal
}

// Machine holds the CPU and RAM counters. It is safe for concurrent use so
// thresholds can be changed while the sampling loop runs.
type Machine struct {
	mu  sync.Mutex
	cpu Counter
	ram Counter
}

func NewMachine(cpuThreshold, ramThreshold float64, limit int) *Machine {
	return &Machine{
		cpu: Counter{Metric: MetricCPU, Threshold: cpuThreshold, Limit: limit},
		ram: Counter{Metric: MetricRAM, Threshold: ramThreshold, Limit: limit},
	}
}

// Observe feeds one tick of readings. A nil reading leaves that counter
// untouched.
func (m *Machine) Observe(cpu, ram *float64) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var events []Event
	if cpu != nil {
		if e, ok := m.cpu.Observe(*cpu); ok {
			events = append(events, e)
		}
	}
	if ram != nil {
		if e, ok := m.ram.Observe(*ram); ok {
			events = append(events, e)
		}
	}

	return events
}

// Hits returns the current CPU and RAM breach lengths.
func (m *Machine) Hits() (cpu, ram int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cpu.Hits(), m.ram.Hits()
}

// SetThresholds replaces both thresholds. Breach lengths are kept.
func (m *Machine) SetThresholds(cpu, ram float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cpu.Threshold = cpu
	m.ram.Threshold = ram
}

func (m *Machine) Thresholds() (cpu, ram float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cpu.Threshold, m.ram.Threshold
}
