package host

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"codeberg.org/mutker/hostpulse/internal/errors"
	"github.com/distatus/battery"
)

const DefaultPowerSupplyDir = "/sys/class/power_supply"

// BatteryReader lists the batteries of the host. battery.GetAll in
// production.
type BatteryReader func() ([]*battery.Battery, error)

// PowerSupply reads battery state and capacity through distatus/battery.
// Cycle count and AC adapter state are not exposed by that library and are
// read from the power_supply class under root.
type PowerSupply struct {
	root string
	read BatteryReader
}

type PowerSupplyOption func(*PowerSupply)

// WithBatteryReader replaces battery.GetAll.
func WithBatteryReader(r BatteryReader) PowerSupplyOption {
	return func(p *PowerSupply) { p.read = r }
}

func NewPowerSupply(root string, opts ...PowerSupplyOption) *PowerSupply {
	if root == "" {
		root = DefaultPowerSupplyDir
	}

	p := &PowerSupply{root: root, read: battery.GetAll}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *PowerSupply) Status(_ context.Context) (BatteryStatus, error) {
	b, partial, err := p.first()
	if err != nil {
		return BatteryStatus{}, err
	}

	st := BatteryStatus{Present: true}
	if partial.Current == nil && partial.Full == nil && b.Full > 0 {
		st.Percent = ptr(math.Round(math.Min(b.Current/b.Full, 1)*10000) / 100)
	}

	state := battery.Undefined
	if partial.State == nil {
		state = b.State.Raw
	}

	if online, ok := p.acOnline(); ok {
		st.Plugged = &online
	} else {
		switch state {
		case battery.Charging, battery.Full, battery.Idle:
			st.Plugged = ptr(true)
		case battery.Discharging:
			st.Plugged = ptr(false)
		}
	}

	if state == battery.Discharging && partial.Current == nil && partial.ChargeRate == nil && b.ChargeRate > 0 {
		st.SecsLeft = ptr(int64(b.Current / b.ChargeRate * 3600))
	}

	return st, nil
}

// Report implements CapacityReporter.
func (p *PowerSupply) Report(_ context.Context) (CapacityReport, error) {
	b, partial, err := p.first()
	if err != nil {
		return CapacityReport{}, err
	}

	var r CapacityReport
	if partial.Design == nil && b.Design > 0 {
		r.DesignMWh = ptr(int64(b.Design))
		if partial.Full == nil && b.Full > 0 {
			r.FullMWh = ptr(int64(b.Full))
		}
	}
	if partial.Voltage == nil && b.Voltage > 0 {
		r.VoltageMV = ptr(int(math.Round(b.Voltage * 1000)))
	}
	if cycles, ok := p.cycleCount(); ok {
		r.CycleCount = &cycles
	}

	if r.DesignMWh == nil && r.FullMWh == nil && r.CycleCount == nil && r.VoltageMV == nil {
		return CapacityReport{}, errors.New().New(ErrReportEmpty)
	}

	return r, nil
}

// first returns the first battery together with the fields the library
// could not read for it.
func (p *PowerSupply) first() (*battery.Battery, battery.ErrPartial, error) {
	errFactory := errors.New()

	bats, err := p.read()
	if len(bats) == 0 || bats[0] == nil {
		if err != nil {
			return nil, battery.ErrPartial{}, errFactory.Wrap(ErrBatteryUnavailable, err)
		}
		return nil, battery.ErrPartial{}, errFactory.New(ErrBatteryUnavailable)
	}

	var partial battery.ErrPartial
	var perBattery battery.Errors
	if errors.As(err, &perBattery) && len(perBattery) > 0 && perBattery[0] != nil {
		if !errors.As(perBattery[0], &partial) {
			return nil, battery.ErrPartial{}, errFactory.Wrap(ErrBatteryUnavailable, perBattery[0])
		}
	}

	return bats[0], partial, nil
}

func (p *PowerSupply) cycleCount() (int, bool) {
	matches, err := filepath.Glob(filepath.Join(p.root, "BAT*"))
	if err != nil || len(matches) == 0 {
		return 0, false
	}
	sort.Strings(matches)

	v, ok := readInt(matches[0], "cycle_count")
	if !ok || v <= 0 {
		return 0, false
	}

	return int(v), true
}

func (p *PowerSupply) acOnline() (bool, bool) {
	for _, pattern := range []string{"AC*", "ADP*", "ACAD*"} {
		matches, _ := filepath.Glob(filepath.Join(p.root, pattern))
		for _, m := range matches {
			if v, ok := readInt(m, "online"); ok {
				return v == 1, true
			}
		}
	}

	return false, false
}

func readInt(dir, name string) (int64, bool) {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, false
	}

	return v, true
}

func ptr[T any](v T) *T { return &v }
