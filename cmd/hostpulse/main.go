package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"codeberg.org/mutker/hostpulse/internal/alert"
	"codeberg.org/mutker/hostpulse/internal/config"
	"codeberg.org/mutker/hostpulse/internal/controller"
	"codeberg.org/mutker/hostpulse/internal/errors"
	"codeberg.org/mutker/hostpulse/internal/host"
	"codeberg.org/mutker/hostpulse/internal/logger"
	"codeberg.org/mutker/hostpulse/internal/metrics"
	"codeberg.org/mutker/hostpulse/internal/pid"
	"github.com/google/uuid"
)

const (
	logFileName     = "system.log"
	shutdownTimeout = 2 * time.Second
)

func main() {
	loader, err := config.NewLoader()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCloser, err := logger.Init(logger.Options{
		Level:     cfg.LogLevel,
		IsService: logger.IsService(),
		LogFile:   filepath.Join(cfg.ReportsDir, logFileName),
		Session:   uuid.NewString(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	logger.Debug().Str("file", loader.ConfigFileUsed()).Msg("Config loaded")

	if err := run(loader, cfg); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.ErrorWithCode(appErr).Msg("Exiting with error")
		} else {
			logger.Error().Err(err).Msg("Exiting with error")
		}
		logCloser.Close()
		os.Exit(1)
	}
}

func run(loader *config.Loader, cfg *config.Config) error {
	errFactory := errors.New()
	log := logger.Default()

	pidFile := pid.New(cfg.ReportsDir)
	if err := pidFile.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := pidFile.Release(); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	recorder, err := metrics.NewService(metricsConfig(cfg), log)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitMetrics, err)
	}
	defer closeRecorder(recorder)

	battery := host.NewPowerSupply("")
	var reporter host.CapacityReporter = battery
	if cfg.BatteryReportCmd != "" {
		reporter = host.NewReportCommand(cfg.BatteryReportCmd, cfg.BatteryReportTimeoutDuration(), cfg.ReportsDir)
	}

	ctrl, err := controller.New(cfg, controller.Deps{
		Source:   host.NewGopsutil(battery),
		Reporter: reporter,
		Notifier: alert.NewLogNotifier(log),
		Recorder: recorder,
		Logger:   log,
	})
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	if loader.Watch(log.With("config"), func(next *config.Config) {
		if err := ctrl.SetCleanupDays(next.CleanupDays); err != nil {
			logger.Warn().Err(err).Msg("Ignoring cleanup_days change")
		}
		ctrl.SetThresholds(next.CPUThreshold, next.RAMThreshold)
	}) {
		logger.Debug().Str("file", loader.ConfigFileUsed()).Msg("Watching config file for changes")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info().
		Int("interval", cfg.Interval).
		Str("reports_dir", cfg.ReportsDir).
		Bool("metrics", cfg.Metrics).
		Msg("hostpulse started")

	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	logger.Info().Msg("Received termination signal.")

	if err := ctrl.Stop(shutdownTimeout); err != nil {
		logger.ErrorWithCode(errFactory.Wrap(errors.ErrShutdownFailed, err)).
			Msg("Sampling loop did not stop in time")
	}

	logger.Info().Msg("Exiting...")

	return nil
}

func metricsConfig(cfg *config.Config) metrics.Config {
	mc := metrics.DefaultConfig(cfg.ReportsDir)
	mc.Enabled = cfg.Metrics
	if cfg.MetricsDB != "" {
		mc.DBPath = cfg.MetricsDB
	}
	mc.BatchSize = cfg.MetricsBatchSize
	mc.BatchTimeout = time.Duration(cfg.MetricsBatchTimeout) * time.Second

	return mc
}

func closeRecorder(c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close tick archive")
	}
}
