package alert

import "fmt"

const (
	BatteryLow        = "battery_low"
	BatteryOvercharge = "battery_overcharge"
)

// BatteryWatch raises an event when the battery enters the low condition
// (discharging at or below Low) or the overcharge condition (plugged in at
// or above Overcharge). Staying in a condition raises nothing further.
type BatteryWatch struct {
	Low        float64
	Overcharge float64

	low  bool
	over bool
}

// BatteryEvent describes one battery condition change.
type BatteryEvent struct {
	Kind    string
	Percent float64
}

func (e BatteryEvent) Message() string {
	switch e.Kind {
	case BatteryLow:
		return fmt.Sprintf("Battery low: %.0f%%, connect the charger.", e.Percent)
	case BatteryOvercharge:
		return fmt.Sprintf("Battery at %.0f%% while plugged in, consider unplugging.", e.Percent)
	default:
		return e.Kind
	}
}

// Observe takes the current charge level and plug state. Unknown values
// clear both conditions.
func (w *BatteryWatch) Observe(percent *float64, plugged *bool) (BatteryEvent, bool) {
	if percent == nil || plugged == nil {
		w.low, w.over = false, false
		return BatteryEvent{}, false
	}

	low := !*plugged && *percent <= w.Low
	over := *plugged && *percent >= w.Overcharge

	var (
		event BatteryEvent
		fired bool
	)
	switch {
	case low && !w.low:
		event, fired = BatteryEvent{Kind: BatteryLow, Percent: *percent}, true
	case over && !w.over:
		event, fired = BatteryEvent{Kind: BatteryOvercharge, Percent: *percent}, true
	}

	w.low, w.over = low, over

	return event, fired
}
