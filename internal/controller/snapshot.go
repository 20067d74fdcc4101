package controller

import (
	"sort"
	"strconv"
	"time"

	"codeberg.org/mutker/hostpulse/internal/alert"
	"codeberg.org/mutker/hostpulse/internal/history"
	"codeberg.org/mutker/hostpulse/internal/monitor"
	"codeberg.org/mutker/hostpulse/internal/stability"
)

// Snapshot is the merged result of one tick. A published snapshot is never
// modified; the next tick replaces it.
type Snapshot struct {
	Time    time.Time             `json:"timestamp"`
	System  monitor.SystemSample  `json:"system"`
	Disk    monitor.DiskSample    `json:"disk"`
	Network monitor.NetworkSample `json:"network"`
	Battery monitor.BatterySample `json:"battery"`

	CPUHits      int                 `json:"cpu_hits"`
	RAMHits      int                 `json:"ram_hits"`
	Alerts       []alert.Event       `json:"alerts"`
	BatteryEvent *alert.BatteryEvent `json:"battery_event"`

	Processes map[ProcessKey][]stability.Sample `json:"processes"`
}

// ProcessKey identifies a process across ticks. A recycled PID with a new
// name is a different process.
type ProcessKey struct {
	PID  int32
	Name string
}

func (k ProcessKey) String() string {
	return strconv.FormatInt(int64(k.PID), 10) + ":" + k.Name
}

func (k ProcessKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

type ProcessScore struct {
	PID       int32                `json:"pid"`
	Name      string               `json:"name"`
	Score     *int                 `json:"score"`
	Breakdown *stability.Breakdown `json:"breakdown"`
	Notes     string               `json:"notes"`
}

// sortScores orders by score descending with unscored processes last.
func sortScores(scores []ProcessScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		switch {
		case a.Score == nil && b.Score == nil:
		case a.Score == nil:
			return false
		case b.Score == nil:
			return true
		case *a.Score != *b.Score:
			return *a.Score > *b.Score
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.PID < b.PID
	})
}

// processHistory keeps recent samples per process. Processes not seen for
// the history length are dropped.
type processHistory struct {
	size    int
	tick    uint64
	entries map[ProcessKey]*processEntry
}

type processEntry struct {
	samples  *history.Ring[stability.Sample]
	lastSeen uint64
}

func newProcessHistory(size int) *processHistory {
	if size <= 0 {
		size = history.DefaultCapacity
	}
	return &processHistory{
		size:    size,
		entries: make(map[ProcessKey]*processEntry),
	}
}

func (h *processHistory) fold(procs []monitor.ProcessReading) {
	h.tick++

	for _, p := range procs {
		key := ProcessKey{PID: p.PID, Name: p.Name}
		e, ok := h.entries[key]
		if !ok {
			e = &processEntry{samples: history.NewRing[stability.Sample](h.size)}
			h.entries[key] = e
		}
		e.lastSeen = h.tick
		e.samples.Push(stability.Sample{
			CPU:     p.CPUPercent,
			Mem:     p.MemPercent,
			IORead:  p.IOReadBytes,
			IOWrite: p.IOWriteBytes,
			NetSent: p.NetSentBytes,
			NetRecv: p.NetRecvBytes,
		})
	}

	for key, e := range h.entries {
		if h.tick-e.lastSeen >= uint64(h.size) {
			delete(h.entries, key)
		}
	}
}

func (h *processHistory) copy() map[ProcessKey][]stability.Sample {
	out := make(map[ProcessKey][]stability.Sample, len(h.entries))
	for key, e := range h.entries {
		out[key] = e.samples.All()
	}
	return out
}
