package controller

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/hostpulse/internal/alert"
	"codeberg.org/mutker/hostpulse/internal/errors"
	"codeberg.org/mutker/hostpulse/internal/metrics"
	"codeberg.org/mutker/hostpulse/internal/monitor"
	"codeberg.org/mutker/hostpulse/internal/store"
)

// Tick samples all monitors at now, publishes the resulting snapshot and
// runs the daily cleanup when it is due. Cancelling ctx does not interrupt
// sampling, only the pause after a cleanup. A panic anywhere in the tick
// is logged and reported as false. Tick must not run concurrently with
// Run or another Tick.
func (c *Controller) Tick(ctx context.Context, now time.Time) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.New().WithData(errors.ErrTick, fmt.Sprint(r))
			c.log.ErrorWithCode(err).Time("tick", now).Msg("Tick aborted")
			ok = false
		}
	}()

	loopCtx := ctx
	ctx = context.WithoutCancel(ctx)

	sys := c.system.Sample(ctx, now)
	disk := c.disk.Sample(ctx, now)
	net := c.network.Sample(ctx, now)
	bat := c.battery.Sample(ctx, now)

	c.processes.fold(sys.TopCPU)

	events := c.alerts.Observe(sys.CPU, sys.RAM)
	cpuHits, ramHits := c.alerts.Hits()
	for _, e := range events {
		c.notifier.Alert(e.Message())
		c.log.Info().Str("metric", e.Metric).Float64("value", e.Value).Int("hits", e.Hits).
			Msg("Threshold breached")
	}

	var batEvent *alert.BatteryEvent
	if e, fired := c.batteryWatch.Observe(bat.Percent, bat.Plugged); fired {
		batEvent = &e
		c.notifier.Alert(e.Message())
	}

	c.logHealth(now, bat)
	c.appendDaily(now, sys, net, batEvent)
	c.record(ctx, now, sys, disk, net, bat, cpuHits, ramHits)

	c.publish(&Snapshot{
		Time:         now,
		System:       sys,
		Disk:         disk,
		Network:      net,
		Battery:      bat,
		CPUHits:      cpuHits,
		RAMHits:      ramHits,
		Alerts:       events,
		BatteryEvent: batEvent,
		Processes:    c.processes.copy(),
	})

	c.maybeCleanup(loopCtx, now)

	return true
}

// logHealth upserts today's capacity entry when both capacities are known
// and differ from what was last written.
func (c *Controller) logHealth(now time.Time, bat monitor.BatterySample) {
	if bat.DesignMWh == nil || bat.FullMWh == nil || *bat.DesignMWh <= 0 || *bat.FullMWh <= 0 {
		return
	}

	date := now.Format(store.DateLayout)
	if last := c.lastHealth; last != nil && last.Date == date &&
		*last.DesignMWh == *bat.DesignMWh && *last.FullMWh == *bat.FullMWh &&
		equalInt(last.CycleCount, bat.CycleCount) && equalInt(last.VoltageMV, bat.VoltageMV) {
		return
	}

	entry, err := c.predictor.AppendDailyEntry(date, *bat.DesignMWh, *bat.FullMWh, bat.CycleCount, bat.VoltageMV)
	if err != nil {
		// logged by the predictor; retried next tick
		return
	}
	c.lastHealth = &entry
}

func (c *Controller) appendDaily(now time.Time, sys monitor.SystemSample, net monitor.NetworkSample, batEvent *alert.BatteryEvent) {
	sample := store.DailySample{
		TS:            float64(now.UnixNano()) / float64(time.Second),
		CPU:           sys.CPU,
		RAM:           sys.RAM,
		NetBytesDelta: net.BytesDelta,
	}
	if len(sys.TopCPU) > 0 {
		name := sys.TopCPU[0].Name
		sample.TopApp = &name
	}
	if batEvent != nil {
		kind := batEvent.Kind
		sample.BatteryEvent = &kind
	}

	if err := c.samples.Append(now, sample); err != nil {
		c.log.Warn().Err(err).Msg("Failed to save daily sample")
	}
}

func (c *Controller) record(ctx context.Context, now time.Time, sys monitor.SystemSample, disk monitor.DiskSample,
	net monitor.NetworkSample, bat monitor.BatterySample, cpuHits, ramHits int,
) {
	if c.recorder == nil {
		return
	}

	row := &metrics.TickRow{
		Timestamp:      now,
		CPU:            sys.CPU,
		RAM:            sys.RAM,
		Swap:           sys.Swap,
		NetDownBytes:   net.DownBytes,
		NetUpBytes:     net.UpBytes,
		BatteryPercent: bat.Percent,
		CPUHits:        cpuHits,
		RAMHits:        ramHits,
	}
	if disk.Total != nil {
		p := disk.Total.Percent
		row.DiskPercent = &p
	}

	if err := c.recorder.Record(ctx, row); err != nil {
		c.log.Warn().Err(err).Msg("Failed to archive tick")
	}
}

// maybeCleanup runs the downloads cleanup once per calendar day, on the
// first tick inside the configured minute.
func (c *Controller) maybeCleanup(ctx context.Context, now time.Time) {
	if now.Hour() != c.cleanupHour || now.Minute() != c.cleanupMinute {
		return
	}

	today := now.Format(store.DateLayout)
	if c.lastCleanup == today {
		return
	}
	c.lastCleanup = today

	c.log.Info().Msg("Scheduled cleanup triggered")
	c.cleaner.Run(context.WithoutCancel(ctx), c.CleanupDays())

	if c.cleanupGrace <= 0 {
		return
	}

	select {
	case <-ctx.Done():
	case <-time.After(c.cleanupGrace):
	}
}

func equalInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
