package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	DefaultOnlineServers  = []string{"online-live1.services.u-blox.com", "online-live2.services.u-blox.com"}
	DefaultOfflineServers = []string{"offline-live1.services.u-blox.com", "offline-live2.services.u-blox.com"}
)

type Config struct {
	Link     LinkConfig     `yaml:"link"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Cache    CacheConfig    `yaml:"cache"`
	Transfer TransferConfig `yaml:"transfer"`
	Position PositionConfig `yaml:"position"`
	Trace    TraceConfig    `yaml:"trace"`
	Log      LogConfig      `yaml:"log"`
}

type LinkConfig struct {
	// Device may be empty to auto-detect /dev/ttyACM* and /dev/ttyUSB*.
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type FetchConfig struct {
	Servers        []string      `yaml:"servers"`
	OfflineServers []string      `yaml:"offline_servers"`
	Token          string        `yaml:"token"`
	Timeout        time.Duration `yaml:"timeout"`

	GNSS        []string      `yaml:"gnss"`
	DataTypes   []string      `yaml:"datatypes"`
	Latency     time.Duration `yaml:"latency"`
	TimeAcc     time.Duration `yaml:"tacc"`
	FilterOnPos bool          `yaml:"filter_on_pos"`

	// Legacy requests AID format data instead of MGA.
	Legacy     bool     `yaml:"legacy"`
	Almanac    []string `yaml:"almanac"`
	Days       int      `yaml:"days"`
	Period     int      `yaml:"period"`
	Resolution int      `yaml:"resolution"`

	// Input reads the bundle from a file instead of the network.
	Input string `yaml:"input"`
}

type CacheConfig struct {
	Enable bool          `yaml:"enable"`
	Path   string        `yaml:"path"`
	MaxAge time.Duration `yaml:"max_age"`
}

type TransferConfig struct {
	Mode        string        `yaml:"mode"`
	Flow        string        `yaml:"flow"`
	AckTimeout  time.Duration `yaml:"ack_timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	SmartBudget int           `yaml:"smart_budget"`
	Tick        time.Duration `yaml:"tick"`

	// TimeAdjust "host" replaces the bundle's time with the host clock.
	// Offline transfers always use the host clock.
	TimeAdjust   string        `yaml:"time_adjust"`
	TimeAccuracy time.Duration `yaml:"time_accuracy"`
}

type PositionConfig struct {
	Enable bool    `yaml:"enable"`
	LatDeg float64 `yaml:"lat_deg"`
	LonDeg float64 `yaml:"lon_deg"`
	AltM   float64 `yaml:"alt_m"`
	AccM   float64 `yaml:"acc_m"`
}

type TraceConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Output is stderr or stdout.
	Output string `yaml:"output"`
	Source bool   `yaml:"source"`
}

// Log outputs.
const (
	LogStderr = "stderr"
	LogStdout = "stdout"
)

// Transfer modes.
const (
	ModeOnline  = "online"
	ModeOffline = "offline"
	ModeFlash   = "flash"
	ModeLegacy  = "legacy"
)

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := applyDefaults(&cfg); err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) error {
	if cfg.Link.Baud == 0 {
		cfg.Link.Baud = 9600
	}

	if len(cfg.Fetch.Servers) == 0 {
		cfg.Fetch.Servers = append([]string(nil), DefaultOnlineServers...)
	}
	if len(cfg.Fetch.OfflineServers) == 0 {
		cfg.Fetch.OfflineServers = append([]string(nil), DefaultOfflineServers...)
	}
	if cfg.Fetch.Timeout <= 0 {
		cfg.Fetch.Timeout = 10 * time.Second
	}
	if len(cfg.Fetch.GNSS) == 0 {
		cfg.Fetch.GNSS = []string{"gps"}
	}
	if len(cfg.Fetch.DataTypes) == 0 {
		cfg.Fetch.DataTypes = []string{"eph", "alm"}
	}
	if cfg.Fetch.Days == 0 {
		cfg.Fetch.Days = 14
	}
	if cfg.Fetch.Period == 0 {
		cfg.Fetch.Period = 4
	}
	if cfg.Fetch.Resolution == 0 {
		cfg.Fetch.Resolution = 1
	}

	if cfg.Cache.MaxAge < 0 {
		return fmt.Errorf("cache.max_age must be >= 0")
	}
	if cfg.Cache.Enable && cfg.Cache.MaxAge == 0 {
		cfg.Cache.MaxAge = 2 * time.Hour
	}

	cfg.Transfer.Mode = strings.ToLower(strings.TrimSpace(cfg.Transfer.Mode))
	if cfg.Transfer.Mode == "" {
		cfg.Transfer.Mode = ModeOnline
	}
	cfg.Transfer.Flow = strings.ToLower(strings.TrimSpace(cfg.Transfer.Flow))
	if cfg.Transfer.Flow == "" {
		cfg.Transfer.Flow = "simple"
	}
	if cfg.Transfer.AckTimeout <= 0 {
		cfg.Transfer.AckTimeout = 2 * time.Second
	}
	if cfg.Transfer.MaxRetries == 0 {
		cfg.Transfer.MaxRetries = 3
	}
	if cfg.Transfer.SmartBudget <= 0 {
		cfg.Transfer.SmartBudget = 1000
	}
	if cfg.Transfer.Tick <= 0 {
		cfg.Transfer.Tick = 100 * time.Millisecond
	}
	cfg.Transfer.TimeAdjust = strings.ToLower(strings.TrimSpace(cfg.Transfer.TimeAdjust))
	if cfg.Transfer.TimeAdjust == "" {
		cfg.Transfer.TimeAdjust = "none"
	}
	if cfg.Transfer.TimeAccuracy <= 0 {
		cfg.Transfer.TimeAccuracy = 2 * time.Second
	}

	if cfg.Position.Enable && cfg.Position.AccM <= 0 {
		cfg.Position.AccM = 1000
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Log.Output = strings.ToLower(strings.TrimSpace(cfg.Log.Output))
	if cfg.Log.Output == "" {
		cfg.Log.Output = LogStderr
	}
	return nil
}

func validate(cfg Config) error {
	switch cfg.Transfer.Mode {
	case ModeOnline, ModeOffline, ModeFlash, ModeLegacy:
	default:
		return fmt.Errorf("transfer.mode must be one of online, offline, flash, legacy")
	}
	switch cfg.Transfer.Flow {
	case "none", "simple", "smart":
	default:
		return fmt.Errorf("transfer.flow must be one of none, simple, smart")
	}
	switch cfg.Transfer.TimeAdjust {
	case "none", "host":
	default:
		return fmt.Errorf("transfer.time_adjust must be 'none' or 'host'")
	}

	if cfg.Fetch.Token == "" && cfg.Fetch.Input == "" {
		return fmt.Errorf("fetch.token is required unless fetch.input is set")
	}
	switch {
	case cfg.Transfer.Mode == ModeLegacy && !cfg.Fetch.Legacy:
		return fmt.Errorf("fetch.legacy must be true when transfer.mode is 'legacy'")
	case cfg.Transfer.Mode == ModeFlash && cfg.Fetch.Legacy:
		return fmt.Errorf("fetch.legacy cannot be used with transfer.mode=flash")
	case cfg.Transfer.Mode == ModeOffline && cfg.Fetch.Legacy:
		return fmt.Errorf("fetch.legacy cannot be used with transfer.mode=offline (use transfer.mode=legacy)")
	}
	if cfg.Fetch.Days < 0 || cfg.Fetch.Period < 0 || cfg.Fetch.Resolution < 0 {
		return fmt.Errorf("fetch.days, fetch.period and fetch.resolution must be >= 0")
	}

	if cfg.Cache.Enable && cfg.Cache.Path == "" {
		return fmt.Errorf("cache.path is required when cache.enable is true")
	}
	if cfg.Trace.Enable && cfg.Trace.Path == "" {
		return fmt.Errorf("trace.path is required when trace.enable is true")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	switch cfg.Log.Output {
	case LogStderr, LogStdout:
	default:
		return fmt.Errorf("log.output must be 'stderr' or 'stdout'")
	}

	if cfg.Position.Enable {
		if cfg.Position.LatDeg < -90 || cfg.Position.LatDeg > 90 {
			return fmt.Errorf("position.lat_deg must be within [-90, 90]")
		}
		if cfg.Position.LonDeg < -180 || cfg.Position.LonDeg > 180 {
			return fmt.Errorf("position.lon_deg must be within [-180, 180]")
		}
	}
	return nil
}
