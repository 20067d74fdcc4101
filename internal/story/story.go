// Package story summarises one day of persisted samples.
package story

import (
	"fmt"
	"sort"
	"strings"

	"codeberg.org/mutker/hostpulse/internal/store"
)

const (
	TopAppCount = 5

	VerdictPositive = "positive"
	VerdictNeutral  = "neutral"
	VerdictWarning  = "warning"

	highAverage  = 70.0
	highPeak     = 90.0
	heavyNetMB   = 2000.0
	bytesPerMB   = 1024 * 1024
	bytesPerKB   = 1024
	loadPenalty  = 20
	netPenalty   = 10
	positiveOver = 80
	neutralOver  = 60
)

var verdictMessages = map[string]string{
	VerdictPositive: "Your system is running very smoothly today.",
	VerdictNeutral:  "Overall performance was decent, but a cleanup may help.",
	VerdictWarning:  "High load detected. Consider closing background apps.",
}

type AppUsage struct {
	Name   string `json:"name"`
	Checks int    `json:"checks"`
}

type Summary struct {
	Samples       int        `json:"samples"`
	CPUAvg        float64    `json:"cpu_avg"`
	CPUPeak       float64    `json:"cpu_peak"`
	RAMAvg        float64    `json:"ram_avg"`
	RAMPeak       float64    `json:"ram_peak"`
	NetTotalMB    float64    `json:"net_total_mb"`
	BusiestTickKB float64    `json:"busiest_tick_kb"`
	TopApps       []AppUsage `json:"top_apps"`
	BatteryEvents []string   `json:"battery_events"`
	HealthScore   int        `json:"health_score"`
	Verdict       string     `json:"verdict"`
	Message       string     `json:"message"`
}

type Story struct {
	Summary   Summary `json:"summary"`
	Narrative string  `json:"narrative"`
}

func Generate(samples []store.DailySample) Story {
	s := Summary{
		Samples:       len(samples),
		TopApps:       []AppUsage{},
		BatteryEvents: []string{},
	}

	var cpu, ram stats
	var netBytes, busiest uint64
	counts := make(map[string]int)
	var order []string

	for _, sample := range samples {
		if sample.CPU != nil {
			cpu.add(*sample.CPU)
		}
		if sample.RAM != nil {
			ram.add(*sample.RAM)
		}

		netBytes += sample.NetBytesDelta
		if sample.NetBytesDelta > busiest {
			busiest = sample.NetBytesDelta
		}

		if sample.TopApp != nil && *sample.TopApp != "" {
			if _, ok := counts[*sample.TopApp]; !ok {
				order = append(order, *sample.TopApp)
			}
			counts[*sample.TopApp]++
		}

		if sample.BatteryEvent != nil && *sample.BatteryEvent != "" {
			s.BatteryEvents = append(s.BatteryEvents, *sample.BatteryEvent)
		}
	}

	s.CPUAvg, s.CPUPeak = cpu.avg(), cpu.peak
	s.RAMAvg, s.RAMPeak = ram.avg(), ram.peak
	s.NetTotalMB = float64(netBytes) / bytesPerMB
	s.BusiestTickKB = float64(busiest) / bytesPerKB

	// ties keep first-seen order
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	for i, name := range order {
		if i == TopAppCount {
			break
		}
		s.TopApps = append(s.TopApps, AppUsage{Name: name, Checks: counts[name]})
	}

	s.HealthScore = healthScore(s)
	s.Verdict = verdict(s.HealthScore)
	s.Message = verdictMessages[s.Verdict]

	return Story{Summary: s, Narrative: narrate(s)}
}

// healthScore starts at 100 and cannot go below 0.
func healthScore(s Summary) int {
	score := 100
	if s.CPUAvg > highAverage || s.RAMAvg > highAverage {
		score -= loadPenalty
	}
	if s.CPUPeak > highPeak || s.RAMPeak > highPeak {
		score -= loadPenalty
	}
	if s.NetTotalMB > heavyNetMB {
		score -= netPenalty
	}

	return max(score, 0)
}

func verdict(score int) string {
	switch {
	case score > positiveOver:
		return VerdictPositive
	case score > neutralOver:
		return VerdictNeutral
	default:
		return VerdictWarning
	}
}

func narrate(s Summary) string {
	var b strings.Builder

	b.WriteString("Daily System Story\n\n")
	fmt.Fprintf(&b, "CPU: average %.1f%%, peak %.1f%%\n", s.CPUAvg, s.CPUPeak)
	fmt.Fprintf(&b, "RAM: average %.1f%%, peak %.1f%%\n", s.RAMAvg, s.RAMPeak)
	fmt.Fprintf(&b, "Network: %.2f MB total, busiest moment %.1f KB\n", s.NetTotalMB, s.BusiestTickKB)

	if len(s.TopApps) > 0 {
		b.WriteString("\nTop applications:\n")
		for _, app := range s.TopApps {
			fmt.Fprintf(&b, "  %s: %d active checks\n", app.Name, app.Checks)
		}
	}

	if len(s.BatteryEvents) > 0 {
		fmt.Fprintf(&b, "\nBattery events: %s\n", strings.Join(s.BatteryEvents, ", "))
	}

	fmt.Fprintf(&b, "\nSystem health score: %d/100\n%s\n", s.HealthScore, s.Message)

	return b.String()
}

type stats struct {
	n    int
	sum  float64
	peak float64
}

func (s *stats) add(v float64) {
	if s.n == 0 || v > s.peak {
		s.peak = v
	}
	s.n++
	s.sum += v
}

func (s *stats) avg() float64 {
	if s.n == 0 {
		return 0
	}
	return s.sum / float64(s.n)
}
