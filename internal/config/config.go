// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Engine() EngineConfig
	Matcher() MatcherConfig
	Storage() StorageConfig
	Control() ControlConfig
	Recorder() RecorderConfig

	// Storage Setters
	SetStorageBackend(string)
	SetStorageDataDir(string)

	// Control Setters
	SetControlAddr(string)

	// Matcher Setters
	SetMatcherThreshold(float64)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
	EngineCfg   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	MatcherCfg  MatcherConfig  `mapstructure:"matcher" yaml:"matcher"`
	StorageCfg  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	ControlCfg  ControlConfig  `mapstructure:"control" yaml:"control"`
	RecorderCfg RecorderConfig `mapstructure:"recorder" yaml:"recorder"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }
func (c *Config) Engine() EngineConfig     { return c.EngineCfg }
func (c *Config) Matcher() MatcherConfig   { return c.MatcherCfg }
func (c *Config) Storage() StorageConfig   { return c.StorageCfg }
func (c *Config) Control() ControlConfig   { return c.ControlCfg }
func (c *Config) Recorder() RecorderConfig { return c.RecorderCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetStorageBackend(b string)    { c.StorageCfg.Backend = b }
func (c *Config) SetStorageDataDir(d string)    { c.StorageCfg.DataDir = d }
func (c *Config) SetControlAddr(a string)       { c.ControlCfg.Addr = a }
func (c *Config) SetMatcherThreshold(t float64) { c.MatcherCfg.Threshold = t }

// LoggerConfig configures the global zap logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig holds ANSI color names per log level for console output.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig is used when storage.backend is "postgres".
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// EngineConfig tunes the automation task loop and the click dispatcher.
type EngineConfig struct {
	// Tasks without match regions.
	AutoInterval    time.Duration `mapstructure:"auto_interval" yaml:"auto_interval"`
	AutoMinInterval time.Duration `mapstructure:"auto_min_interval" yaml:"auto_min_interval"`
	// Tasks with at least one match region.
	SnapInterval    time.Duration `mapstructure:"snap_interval" yaml:"snap_interval"`
	SnapMinInterval time.Duration `mapstructure:"snap_min_interval" yaml:"snap_min_interval"`

	RectRetryDelay time.Duration `mapstructure:"rect_retry_delay" yaml:"rect_retry_delay"`
	PressDelay     time.Duration `mapstructure:"press_delay" yaml:"press_delay"`
	PointGap       time.Duration `mapstructure:"point_gap" yaml:"point_gap"`
	// MaxCaptureFailures consecutive capture failures move a task to Failed.
	MaxCaptureFailures int           `mapstructure:"max_capture_failures" yaml:"max_capture_failures"`
	WarnInterval       time.Duration `mapstructure:"warn_interval" yaml:"warn_interval"`
	StopTimeout        time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
}

// MatcherConfig tunes similarity scoring and the template store.
type MatcherConfig struct {
	Threshold       float64 `mapstructure:"threshold" yaml:"threshold"`
	SubsampleCutoff int     `mapstructure:"subsample_cutoff" yaml:"subsample_cutoff"`
	CheckEvery      int     `mapstructure:"check_every" yaml:"check_every"`
	Sharpen         bool    `mapstructure:"sharpen" yaml:"sharpen"`
	WatchTemplates  bool    `mapstructure:"watch_templates" yaml:"watch_templates"`
}

// StorageConfig selects where profiles, snapshots and templates live.
type StorageConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

// ProfilesFile is the JSON profile document used by the file backend.
func (s StorageConfig) ProfilesFile() string { return filepath.Join(s.DataDir, "profiles.json") }

// WorkingSetFile is the snap point working set document.
func (s StorageConfig) WorkingSetFile() string { return filepath.Join(s.DataDir, "snap-config.json") }

// SnapshotDir holds captured window images.
func (s StorageConfig) SnapshotDir() string { return filepath.Join(s.DataDir, "snapshots") }

// TemplateDir holds cut template images.
func (s StorageConfig) TemplateDir() string { return filepath.Join(s.DataDir, "templates") }

// ControlConfig configures the local HTTP/WebSocket bridge.
type ControlConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	MaxConnections  int           `mapstructure:"max_connections" yaml:"max_connections"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	SendBuffer      int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// RecorderConfig tunes the click recorder.
type RecorderConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// ErrorRate caps recorder-error events per second; ErrorBurst is the bucket size.
	ErrorRate  float64 `mapstructure:"error_rate" yaml:"error_rate"`
	ErrorBurst int     `mapstructure:"error_burst" yaml:"error_burst"`
}

// Storage backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// NewDefaultConfig creates a configuration populated with the defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "snapclick")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Engine --
	v.SetDefault("engine.auto_interval", "1s")
	v.SetDefault("engine.auto_min_interval", "200ms")
	v.SetDefault("engine.snap_interval", "2s")
	v.SetDefault("engine.snap_min_interval", "500ms")
	v.SetDefault("engine.rect_retry_delay", "300ms")
	v.SetDefault("engine.press_delay", "40ms")
	v.SetDefault("engine.point_gap", "80ms")
	v.SetDefault("engine.max_capture_failures", 10)
	v.SetDefault("engine.warn_interval", "5s")
	v.SetDefault("engine.stop_timeout", "5s")

	// -- Matcher --
	v.SetDefault("matcher.threshold", 0.85)
	v.SetDefault("matcher.subsample_cutoff", 10000)
	v.SetDefault("matcher.check_every", 64)
	v.SetDefault("matcher.sharpen", true)
	v.SetDefault("matcher.watch_templates", true)

	// -- Storage --
	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.data_dir", "~/.snapclick")
	v.SetDefault("database.url", "")

	// -- Control --
	v.SetDefault("control.addr", "127.0.0.1:7465")
	v.SetDefault("control.max_connections", 16)
	v.SetDefault("control.request_timeout", "30s")
	v.SetDefault("control.shutdown_timeout", "5s")
	v.SetDefault("control.send_buffer", 256)
	v.SetDefault("control.allowed_origins", []string{})

	// -- Recorder --
	v.SetDefault("recorder.poll_interval", "50ms")
	v.SetDefault("recorder.error_rate", 1.0)
	v.SetDefault("recorder.error_burst", 3)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("database.url", "SNAPCLICK_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	dir, err := homedir.Expand(cfg.StorageCfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand storage.data_dir: %w", err)
	}
	cfg.StorageCfg.DataDir = dir
	cfg.StorageCfg.Backend = strings.ToLower(strings.TrimSpace(cfg.StorageCfg.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.EngineCfg.Validate(); err != nil {
		return fmt.Errorf("engine configuration invalid: %w", err)
	}
	if err := c.MatcherCfg.Validate(); err != nil {
		return fmt.Errorf("matcher configuration invalid: %w", err)
	}
	switch c.StorageCfg.Backend {
	case BackendFile:
	case BackendPostgres:
		if c.DatabaseCfg.URL == "" {
			return fmt.Errorf("database.url is required when storage.backend is %q", BackendPostgres)
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", BackendFile, BackendPostgres, c.StorageCfg.Backend)
	}
	if c.StorageCfg.DataDir == "" {
		return fmt.Errorf("storage.data_dir is a required configuration field")
	}
	if c.ControlCfg.Addr == "" {
		return fmt.Errorf("control.addr is a required configuration field")
	}
	if c.RecorderCfg.PollInterval <= 0 {
		return fmt.Errorf("recorder.poll_interval must be a positive duration")
	}
	return nil
}

// Validate checks the engine timings.
func (e *EngineConfig) Validate() error {
	for name, d := range map[string]time.Duration{
		"auto_interval":     e.AutoInterval,
		"auto_min_interval": e.AutoMinInterval,
		"snap_interval":     e.SnapInterval,
		"snap_min_interval": e.SnapMinInterval,
		"rect_retry_delay":  e.RectRetryDelay,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	if e.PressDelay < 0 || e.PointGap < 0 {
		return fmt.Errorf("press_delay and point_gap must not be negative")
	}
	if e.MaxCaptureFailures <= 0 {
		return fmt.Errorf("max_capture_failures must be greater than 0")
	}
	return nil
}

// Validate checks the matcher settings.
func (m *MatcherConfig) Validate() error {
	if m.Threshold <= 0 || m.Threshold > 1 {
		return fmt.Errorf("threshold must be in (0, 1]")
	}
	if m.SubsampleCutoff <= 0 {
		return fmt.Errorf("subsample_cutoff must be a positive integer")
	}
	if m.CheckEvery <= 0 {
		return fmt.Errorf("check_every must be a positive integer")
	}
	return nil
}
