package story_test

import (
	"testing"

	"codeberg.org/mutker/hostpulse/internal/store"
	"codeberg.org/mutker/hostpulse/internal/story"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mb = 1024 * 1024

func ptr[T any](v T) *T { return &v }

func sample(cpu, ram float64, net uint64, app string) store.DailySample {
	s := store.DailySample{CPU: ptr(cpu), RAM: ptr(ram), NetBytesDelta: net}
	if app != "" {
		s.TopApp = ptr(app)
	}
	return s
}

func TestGenerateEmptyDay(t *testing.T) {
	got := story.Generate(nil)

	assert.Equal(t, 0, got.Summary.Samples)
	assert.Zero(t, got.Summary.CPUAvg)
	assert.Empty(t, got.Summary.TopApps)
	assert.Equal(t, 100, got.Summary.HealthScore)
	assert.Equal(t, story.VerdictPositive, got.Summary.Verdict)
	assert.Contains(t, got.Narrative, "System health score: 100/100")
}

func TestGenerateHeavyDayIsWarning(t *testing.T) {
	samples := []store.DailySample{
		sample(95, 40, 1250*mb, "blender"),
		sample(55, 40, 1250*mb, "blender"),
	}

	got := story.Generate(samples)
	s := got.Summary

	assert.InDelta(t, 75.0, s.CPUAvg, 1e-9)
	assert.InDelta(t, 95.0, s.CPUPeak, 1e-9)
	assert.InDelta(t, 2500.0, s.NetTotalMB, 1e-9)
	assert.InDelta(t, 1250.0*1024, s.BusiestTickKB, 1e-9)
	assert.Equal(t, 50, s.HealthScore)
	assert.Equal(t, story.VerdictWarning, s.Verdict)
	assert.Equal(t, "High load detected. Consider closing background apps.", s.Message)
}

func TestGenerateVerdictBands(t *testing.T) {
	neutral := story.Generate([]store.DailySample{sample(75, 20, 0, ""), sample(75, 20, 0, "")})
	assert.Equal(t, 80, neutral.Summary.HealthScore)
	assert.Equal(t, story.VerdictNeutral, neutral.Summary.Verdict)

	ramPeak := story.Generate([]store.DailySample{sample(10, 91, 0, ""), sample(10, 10, 0, "")})
	assert.Equal(t, 80, ramPeak.Summary.HealthScore)

	calm := story.Generate([]store.DailySample{sample(10, 20, 10*mb, "")})
	assert.Equal(t, 100, calm.Summary.HealthScore)
	assert.Equal(t, story.VerdictPositive, calm.Summary.Verdict)
}

func TestGenerateTopApps(t *testing.T) {
	var samples []store.DailySample
	for app, n := range map[string]int{"a": 1, "b": 6, "c": 3, "d": 2, "e": 5, "f": 4} {
		for i := 0; i < n; i++ {
			samples = append(samples, sample(1, 1, 0, app))
		}
	}
	samples = append(samples, store.DailySample{})

	got := story.Generate(samples).Summary

	require.Len(t, got.TopApps, story.TopAppCount)
	names := make([]string, len(got.TopApps))
	for i, app := range got.TopApps {
		names[i] = app.Name
	}
	assert.Equal(t, []string{"b", "e", "f", "c", "d"}, names)
	assert.Equal(t, 6, got.TopApps[0].Checks)
}

func TestGenerateSkipsMissingReadingsAndCollectsBatteryEvents(t *testing.T) {
	samples := []store.DailySample{
		{CPU: ptr(40.0)},
		{RAM: ptr(30.0), BatteryEvent: ptr("battery_low")},
		{CPU: ptr(20.0), RAM: ptr(50.0)},
	}

	got := story.Generate(samples)

	assert.InDelta(t, 30.0, got.Summary.CPUAvg, 1e-9)
	assert.InDelta(t, 40.0, got.Summary.RAMAvg, 1e-9)
	assert.Equal(t, []string{"battery_low"}, got.Summary.BatteryEvents)
	assert.Contains(t, got.Narrative, "Battery events: battery_low")
}
