// Package stability scores how steadily a process behaved over its recent
// samples. 100 is perfectly steady; penalties for CPU jitter, memory
// growth and heavy IO or network traffic lower the score.
package stability

import "math"

const (
	MinSamples = 3

	ioBudgetMB  = 50.0
	netBudgetMB = 20.0
	bytesPerMB  = 1024 * 1024

	cpuWeight = 0.5
	memWeight = 0.3
	ioWeight  = 0.1
	netWeight = 0.1
)

const notes = "Higher penalties indicate instability:\n" +
	"- CPU penalty: frequent CPU spikes\n" +
	"- Memory penalty: potential memory leak\n" +
	"- IO/Network penalty: high data transfer\n"

// Sample is one observation of a process. IO and network values are bytes
// transferred since the previous sample.
type Sample struct {
	CPU     float64 `json:"cpu"`
	Mem     float64 `json:"mem"`
	IORead  uint64  `json:"io_read"`
	IOWrite uint64  `json:"io_write"`
	NetSent uint64  `json:"net_sent"`
	NetRecv uint64  `json:"net_recv"`
}

type Breakdown struct {
	CPUMean         float64 `json:"cpu_mean"`
	CPUStd          float64 `json:"cpu_std"`
	CPUPenalty      float64 `json:"cpu_penalty"`
	MemSlope        float64 `json:"mem_slope"`
	MemPenalty      float64 `json:"mem_penalty"`
	IOTotalMB       float64 `json:"io_total_mb"`
	IOPenalty       float64 `json:"io_penalty"`
	NetTotalMB      float64 `json:"net_total_mb"`
	NetPenalty      float64 `json:"net_penalty"`
	CombinedPenalty float64 `json:"combined_penalty"`
}

// Result has a nil Score and Breakdown when there were fewer than
// MinSamples samples.
type Result struct {
	Score     *int       `json:"score"`
	Breakdown *Breakdown `json:"breakdown"`
	Notes     string     `json:"notes"`
}

func Score(samples []Sample) Result {
	n := len(samples)
	if n < MinSamples {
		return Result{Notes: "Insufficient data."}
	}

	var cpuSum float64
	var ioBytes, netBytes float64
	for _, s := range samples {
		cpuSum += s.CPU
		ioBytes += float64(s.IORead) + float64(s.IOWrite)
		netBytes += float64(s.NetSent) + float64(s.NetRecv)
	}
	cpuMean := cpuSum / float64(n)

	var variance float64
	for _, s := range samples {
		d := s.CPU - cpuMean
		variance += d * d
	}
	cpuStd := math.Sqrt(variance / float64(n))

	memSlope := (samples[n-1].Mem - samples[0].Mem) / float64(max(1, n))
	ioMB := ioBytes / bytesPerMB
	netMB := netBytes / bytesPerMB

	cpuPenalty := clamp01(cpuStd / (cpuMean + 0.1))
	memPenalty := clamp01(memSlope)
	ioPenalty := clamp01(ioMB / ioBudgetMB)
	netPenalty := clamp01(netMB / netBudgetMB)

	combined := cpuWeight*cpuPenalty + memWeight*memPenalty + ioWeight*ioPenalty + netWeight*netPenalty
	score := int(math.Max(0, math.Min(100, math.Round((1-combined)*100))))

	return Result{
		Score: &score,
		Breakdown: &Breakdown{
			CPUMean:         round(cpuMean, 3),
			CPUStd:          round(cpuStd, 3),
			CPUPenalty:      round(cpuPenalty, 3),
			MemSlope:        round(memSlope, 4),
			MemPenalty:      round(memPenalty, 3),
			IOTotalMB:       round(ioMB, 2),
			IOPenalty:       round(ioPenalty, 3),
			NetTotalMB:      round(netMB, 2),
			NetPenalty:      round(netPenalty, 3),
			CombinedPenalty: round(combined, 3),
		},
		Notes: notes,
	}
}

// clamp01 maps NaN to the maximum penalty.
func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 1
	}
	return math.Max(0, math.Min(1, v))
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
