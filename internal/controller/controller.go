// Package controller drives the sampling loop. Each tick samples every
// monitor, feeds the alert state machine and the per-process history,
// persists the daily sample and publishes an immutable Snapshot. Readers
// call Latest and the analytics accessors from any goroutine.
package controller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/hostpulse/internal/alert"
	"codeberg.org/mutker/hostpulse/internal/cleanup"
	"codeberg.org/mutker/hostpulse/internal/config"
	"codeberg.org/mutker/hostpulse/internal/errors"
	"codeberg.org/mutker/hostpulse/internal/host"
	"codeberg.org/mutker/hostpulse/internal/logger"
	"codeberg.org/mutker/hostpulse/internal/metrics"
	"codeberg.org/mutker/hostpulse/internal/monitor"
	"codeberg.org/mutker/hostpulse/internal/stability"
	"codeberg.org/mutker/hostpulse/internal/store"
	"codeberg.org/mutker/hostpulse/internal/story"
	"codeberg.org/mutker/hostpulse/internal/wear"
)

// Deps are the collaborators of a Controller. Source is required; the rest
// fall back to quiet defaults.
type Deps struct {
	Source   host.Source
	Reporter host.CapacityReporter
	Notifier alert.Notifier
	Recorder metrics.Recorder
	Logger   logger.Logger
	// Clock replaces time.Now for tick timestamps and the cleanup schedule.
	Clock func() time.Time
}

type Controller struct {
	log      logger.Logger
	now      func() time.Time
	interval time.Duration

	system  *monitor.System
	disk    *monitor.Disk
	network *monitor.Network
	battery *monitor.Battery

	alerts       *alert.Machine
	batteryWatch alert.BatteryWatch
	notifier     alert.Notifier

	healthLog *store.HealthLog
	samples   *store.SampleStore
	predictor *wear.Predictor
	cleaner   *cleanup.Cleaner
	recorder  metrics.Recorder

	// owned by the loop goroutine
	processes   *processHistory
	lastHealth  *store.HealthEntry
	lastCleanup string

	cleanupHour   int
	cleanupMinute int
	cleanupGrace  time.Duration
	cleanupDays   atomic.Int64

	mu     sync.Mutex
	latest *Snapshot

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(cfg *config.Config, deps Deps) (*Controller, error) {
	errFactory := errors.New()

	if cfg == nil || deps.Source == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "config and host source are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = alert.NewLogNotifier(log)
	}

	healthLog := store.NewHealthLog(cfg.ReportsDir)

	c := &Controller{
		log:      log.With("controller"),
		now:      now,
		interval: cfg.IntervalDuration(),

		system:  monitor.NewSystem(deps.Source, cfg.HistoryLen, cfg.TopProcesses, log),
		disk:    monitor.NewDisk(deps.Source, cfg.HistoryLen, log),
		network: monitor.NewNetwork(deps.Source, cfg.HistoryLen, log),
		battery: monitor.NewBattery(deps.Source, deps.Reporter, cfg.BatteryHistoryLen,
			cfg.BatteryReportIntervalDuration(), log),

		alerts: alert.NewMachine(cfg.CPUThreshold, cfg.RAMThreshold, cfg.ConsecutiveLimit),
		batteryWatch: alert.BatteryWatch{
			Low:        cfg.BatteryLow,
			Overcharge: cfg.BatteryOvercharge,
		},
		notifier: notifier,

		healthLog: healthLog,
		samples:   store.NewSampleStore(cfg.ReportsDir),
		predictor: wear.NewPredictor(healthLog, cfg.BatteryMinPoints,
			wear.WithClock(now), wear.WithLogger(log)),
		cleaner:  cleanup.New(cfg.DownloadsDir, cfg.ReportsDir, log, cleanup.WithClock(now)),
		recorder: deps.Recorder,

		processes: newProcessHistory(cfg.HistoryLen),

		cleanupHour:   cfg.CleanupHour,
		cleanupMinute: cfg.CleanupMinute,
		cleanupGrace:  cfg.CleanupGraceDuration(),
	}
	c.cleanupDays.Store(int64(cfg.CleanupDays))

	return c, nil
}

// Run samples immediately and then once per interval until ctx is done.
// Ticks that fall due while a tick is still running are dropped. A tick in
// progress always completes.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New().New(errors.ErrAlreadyRunning)
	}
	defer c.running.Store(false)

	c.log.Info().Dur("interval", c.interval).Msg("Sampling loop started")

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Tick(ctx, c.now())
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("Sampling loop stopped")
			return nil
		case <-ticker.C:
			c.Tick(ctx, c.now())
		}
	}
}

// Start runs the loop in a goroutine. Stop ends it. Starting a controller
// whose loop is already running fails with ErrAlreadyRunning.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil || c.running.Load() {
		return errors.New().New(errors.ErrAlreadyRunning)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go func() {
		defer close(done)
		if err := c.Run(ctx); err != nil {
			c.log.ErrorWithCode(errors.New().Wrap(errors.ErrMainLoop, err)).Msg("Sampling loop failed")
		}
	}()

	return nil
}

// Stop cancels the loop and waits up to timeout for the current tick to
// finish. After a timeout the loop is still owned by this controller and a
// later Stop may wait for it again.
func (c *Controller) Stop(timeout time.Duration) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.New().WithData(errors.ErrTimeout, timeout.String())
	}

	c.mu.Lock()
	if c.done == done {
		c.cancel = nil
		c.done = nil
	}
	c.mu.Unlock()

	return nil
}

// Latest returns the most recent snapshot. ok is false until the first
// tick has completed.
func (c *Controller) Latest() (*Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.latest, c.latest != nil
}

func (c *Controller) publish(s *Snapshot) {
	c.mu.Lock()
	c.latest = s
	c.mu.Unlock()
}

func (c *Controller) SetCleanupDays(days int) error {
	if days < 0 {
		return errors.New().WithData(errors.ErrInvalidArgument, "days must be >= 0")
	}

	c.cleanupDays.Store(int64(days))
	c.log.Info().Int("days", days).Msg("Cleanup interval updated")

	return nil
}

func (c *Controller) CleanupDays() int {
	return int(c.cleanupDays.Load())
}

func (c *Controller) RunCleanupNow(ctx context.Context) cleanup.Result {
	return c.cleaner.Run(ctx, c.CleanupDays())
}

// SetThresholds changes the CPU and RAM alert thresholds of a running
// controller.
func (c *Controller) SetThresholds(cpu, ram float64) {
	c.alerts.SetThresholds(cpu, ram)
	c.log.Info().Float64("cpu_threshold", cpu).Float64("ram_threshold", ram).Msg("Alert thresholds updated")
}

func (c *Controller) BatteryPrediction(monthsAhead float64) wear.Prediction {
	return c.predictor.Predict(monthsAhead)
}

// StabilityScores scores every process in the latest snapshot.
func (c *Controller) StabilityScores() []ProcessScore {
	snap, ok := c.Latest()
	if !ok {
		return []ProcessScore{}
	}

	scores := make([]ProcessScore, 0, len(snap.Processes))
	for key, samples := range snap.Processes {
		res := stability.Score(samples)
		scores = append(scores, ProcessScore{
			PID:       key.PID,
			Name:      key.Name,
			Score:     res.Score,
			Breakdown: res.Breakdown,
			Notes:     res.Notes,
		})
	}
	sortScores(scores)

	return scores
}

// DailyStory summarises the samples persisted today.
func (c *Controller) DailyStory() story.Story {
	samples, err := c.samples.Load(c.now())
	if err != nil {
		c.log.Warn().Err(err).Msg("Daily sample file unreadable, treating as empty")
	}

	return story.Generate(samples)
}
