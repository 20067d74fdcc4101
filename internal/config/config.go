package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/hostpulse/internal/errors"
	"codeberg.org/mutker/hostpulse/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix  = "HOSTPULSE"
	DefaultConfigName = "hostpulse"
	DefaultLogLevel   = string(LogLevelInfo)
)

type Config struct {
	Interval         int     `mapstructure:"interval"`
	CPUThreshold     float64 `mapstructure:"cpu_threshold"`
	RAMThreshold     float64 `mapstructure:"ram_threshold"`
	ConsecutiveLimit int     `mapstructure:"consecutive_limit"`

	HistoryLen        int `mapstructure:"history_len"`
	BatteryHistoryLen int `mapstructure:"battery_history_len"`
	TopProcesses      int `mapstructure:"top_processes"`

	CleanupDays   int    `mapstructure:"cleanup_days"`
	CleanupHour   int    `mapstructure:"cleanup_hour"`
	CleanupMinute int    `mapstructure:"cleanup_minute"`
	CleanupGrace  int    `mapstructure:"cleanup_grace"`
	DownloadsDir  string `mapstructure:"downloads_dir"`
	ReportsDir    string `mapstructure:"reports_dir"`

	BatteryLow            float64 `mapstructure:"battery_low"`
	BatteryOvercharge     float64 `mapstructure:"battery_overcharge"`
	BatteryReportCmd      string  `mapstructure:"battery_report_cmd"`
	BatteryReportTimeout  int     `mapstructure:"battery_report_timeout"`
	BatteryReportInterval int     `mapstructure:"battery_report_interval"`
	BatteryMinPoints      int     `mapstructure:"battery_min_points"`

	UIRefreshMs int    `mapstructure:"ui_refresh_ms"`
	LogLevel    string `mapstructure:"log_level"`

	Metrics             bool   `mapstructure:"metrics"`
	MetricsDB           string `mapstructure:"metrics_db"`
	MetricsBatchSize    int    `mapstructure:"metrics_batch_size"`
	MetricsBatchTimeout int    `mapstructure:"metrics_batch_timeout"`
}

// IntervalDuration returns the tick interval.
func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// BatteryReportTimeoutDuration bounds one capacity report run.
func (c *Config) BatteryReportTimeoutDuration() time.Duration {
	return time.Duration(c.BatteryReportTimeout) * time.Second
}

// BatteryReportIntervalDuration is the minimum age before a capacity report is refreshed.
func (c *Config) BatteryReportIntervalDuration() time.Duration {
	return time.Duration(c.BatteryReportInterval) * time.Second
}

// CleanupGraceDuration is the pause after a scheduled cleanup.
func (c *Config) CleanupGraceDuration() time.Duration {
	return time.Duration(c.CleanupGrace) * time.Second
}

// UIRefreshDuration is the cadence the presentation layer polls at.
func (c *Config) UIRefreshDuration() time.Duration {
	return time.Duration(c.UIRefreshMs) * time.Millisecond
}

type flagSpec struct {
	key   string
	name  string
	usage string
}

var flagSpecs = []flagSpec{
	{"interval", "interval", "Seconds between samples"},
	{"cpu_threshold", "cpu-threshold", "CPU usage alert threshold (%)"},
	{"ram_threshold", "ram-threshold", "RAM usage alert threshold (%)"},
	{"consecutive_limit", "consecutive-limit", "Consecutive breaches before alerting"},
	{"history_len", "history-len", "Samples kept per history buffer"},
	{"cleanup_days", "cleanup-days", "Delete downloads older than this many days"},
	{"cleanup_hour", "cleanup-hour", "Hour of the daily cleanup (0-23)"},
	{"cleanup_minute", "cleanup-minute", "Minute of the daily cleanup (0-59)"},
	{"downloads_dir", "downloads-dir", "Directory the cleanup job prunes"},
	{"reports_dir", "reports-dir", "Directory for logs and persisted samples"},
	{"battery_report_cmd", "battery-report-cmd", "External command producing a battery capacity report"},
	{"log_level", "log-level", "Log level (debug, info, warning, error)"},
	{"metrics", "metrics", "Archive tick summaries to SQLite"},
	{"metrics_db", "metrics-db", "Path to the metrics database"},
}

// Loader reads configuration from defaults, an optional TOML file, the
// environment and command line flags, in increasing precedence.
type Loader struct {
	v    *viper.Viper
	opts options
}

func NewLoader(opts ...Option) (*Loader, error) {
	errFactory := errors.New()

	o := options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}
	if o.args == nil && len(os.Args) > 1 {
		o.args = os.Args[1:]
	}
	if o.home == "" {
		o.home, _ = os.UserHomeDir()
	}

	return &Loader{v: viper.New(), opts: o}, nil
}

// Load is shorthand for NewLoader followed by Loader.Load.
func Load(opts ...Option) (*Config, error) {
	l, err := NewLoader(opts...)
	if err != nil {
		return nil, err
	}

	return l.Load()
}

func (l *Loader) Load() (*Config, error) {
	errFactory := errors.New()
	v := l.v

	l.setDefaults()

	fs := pflag.NewFlagSet("hostpulse", pflag.ContinueOnError)
	configFlag := fs.String("config", "", "Path to configuration file")
	fs.Int("interval", v.GetInt("interval"), "")
	fs.Float64("cpu-threshold", v.GetFloat64("cpu_threshold"), "")
	fs.Float64("ram-threshold", v.GetFloat64("ram_threshold"), "")
	fs.Int("consecutive-limit", v.GetInt("consecutive_limit"), "")
	fs.Int("history-len", v.GetInt("history_len"), "")
	fs.Int("cleanup-days", v.GetInt("cleanup_days"), "")
	fs.Int("cleanup-hour", v.GetInt("cleanup_hour"), "")
	fs.Int("cleanup-minute", v.GetInt("cleanup_minute"), "")
	fs.String("downloads-dir", v.GetString("downloads_dir"), "")
	fs.String("reports-dir", v.GetString("reports_dir"), "")
	fs.String("battery-report-cmd", "", "")
	fs.String("log-level", DefaultLogLevel, "")
	fs.Bool("metrics", false, "")
	fs.String("metrics-db", "", "")

	for _, spec := range flagSpecs {
		f := fs.Lookup(spec.name)
		f.Usage = spec.usage
		if err := v.BindPFlag(spec.key, f); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	if err := fs.Parse(l.opts.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v.SetEnvPrefix(l.opts.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	path := l.opts.configPath
	if *configFlag != "" {
		path = *configFlag
	}
	if path == "" {
		path = os.Getenv(l.opts.envPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("toml")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "hostpulse"))
		}
		if l.opts.home != "" {
			v.AddConfigPath(filepath.Join(l.opts.home, ".config", "hostpulse"))
		}
		v.AddConfigPath("/etc/hostpulse")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	return l.build()
}

// ConfigFileUsed returns the path of the file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Watch re-reads the configuration file whenever it changes and passes
// every valid result to callback. Invalid edits are logged and ignored.
// It returns false when no file is in use.
func (l *Loader) Watch(log logger.Logger, callback func(*Config)) bool {
	if l.v.ConfigFileUsed() == "" {
		return false
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.build()
		if err != nil {
			log.Warn().Err(err).Str("file", e.Name).Msg("Ignoring invalid configuration change")
			return
		}
		log.Info().Str("file", e.Name).Msg("Configuration reloaded")
		callback(cfg)
	})
	l.v.WatchConfig()

	return true
}

func (l *Loader) setDefaults() {
	v := l.v
	home := l.opts.home
	reports := filepath.Join(home, ".local", "state", "hostpulse", "reports")

	v.SetDefault("interval", 5)
	v.SetDefault("cpu_threshold", 85.0)
	v.SetDefault("ram_threshold", 85.0)
	v.SetDefault("consecutive_limit", 5)
	v.SetDefault("history_len", 60)
	v.SetDefault("battery_history_len", 600)
	v.SetDefault("top_processes", 3)
	v.SetDefault("cleanup_days", 15)
	v.SetDefault("cleanup_hour", 9)
	v.SetDefault("cleanup_minute", 0)
	v.SetDefault("cleanup_grace", 0)
	v.SetDefault("downloads_dir", filepath.Join(home, "Downloads"))
	v.SetDefault("reports_dir", reports)
	v.SetDefault("battery_low", 20.0)
	v.SetDefault("battery_overcharge", 95.0)
	v.SetDefault("battery_report_cmd", "")
	v.SetDefault("battery_report_timeout", 10)
	v.SetDefault("battery_report_interval", 600)
	v.SetDefault("battery_min_points", 3)
	v.SetDefault("ui_refresh_ms", 1000)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("metrics", false)
	v.SetDefault("metrics_db", "")
	v.SetDefault("metrics_batch_size", 12)
	v.SetDefault("metrics_batch_timeout", 60)
}

func (l *Loader) build() (*Config, error) {
	errFactory := errors.New()

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	cfg.DownloadsDir = expandHome(cfg.DownloadsDir, l.opts.home)
	cfg.ReportsDir = expandHome(cfg.ReportsDir, l.opts.home)
	if cfg.MetricsDB == "" {
		cfg.MetricsDB = filepath.Join(cfg.ReportsDir, "metrics.db")
	}
	cfg.MetricsDB = expandHome(cfg.MetricsDB, l.opts.home)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks ranges of every option.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	for name, v := range map[string]float64{
		"cpu_threshold":      c.CPUThreshold,
		"ram_threshold":      c.RAMThreshold,
		"battery_low":        c.BatteryLow,
		"battery_overcharge": c.BatteryOvercharge,
	} {
		if v <= 0 || v > 100 {
			return errFactory.WithData(errors.ErrInvalidThreshold, name)
		}
	}
	if c.ConsecutiveLimit < 1 {
		return errFactory.WithData(errors.ErrInvalidThreshold, "consecutive_limit")
	}
	if c.HistoryLen < 1 || c.BatteryHistoryLen < 1 || c.TopProcesses < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "history lengths must be positive")
	}
	if c.CleanupDays < 0 || c.CleanupHour < 0 || c.CleanupHour > 23 ||
		c.CleanupMinute < 0 || c.CleanupMinute > 59 || c.CleanupGrace < 0 {
		return errFactory.WithData(errors.ErrInvalidSchedule, struct {
			Days, Hour, Minute int
		}{c.CleanupDays, c.CleanupHour, c.CleanupMinute})
	}
	if c.BatteryReportTimeout <= 0 || c.BatteryMinPoints < 2 {
		return errFactory.WithData(errors.ErrInvalidConfig, "battery report settings")
	}
	if c.ReportsDir == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "reports_dir is empty")
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	return nil
}

func expandHome(path, home string) string {
	if home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}

	return path
}
