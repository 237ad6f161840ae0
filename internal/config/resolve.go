package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"routined/internal/routine"
	logx "routined/pkg/logx"
)

const (
	DefaultResyncAt      = "00:05"
	DefaultCheckInterval = 30 * time.Second
	DefaultJumpThreshold = 2 * time.Minute
	DefaultZoneinfoPath  = "/etc/localtime"
	DefaultMetricsAddr   = "127.0.0.1:9464"
	DefaultPrefetch      = 2
	DefaultLateGrace     = time.Minute

	defaultHolidayTTL   = 15 * 24 * time.Hour
	defaultFetchTimeout = 10 * time.Second
	defaultRatePerSec   = 2
)

// Settings is a validated Config with every default applied.
type Settings struct {
	Logging  logx.Config
	Location *time.Location
	Storage  StorageSettings
	Holidays HolidaySettings
	Alarms   AlarmSettings
	Clock    ClockSettings
	Metrics  MetricsConfig
}

type StorageSettings struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration
}

type HolidaySettings struct {
	Source       string
	TTL          time.Duration
	FetchTimeout time.Duration
	RatePerSec   float64
	BaseURL      string
	Operation    string
	ServiceKey   string
	Prefetch     int
	Static       []routine.HolidayRecord
}

type AlarmSettings struct {
	ResyncAt  routine.Clock
	LateGrace time.Duration
}

type ClockSettings struct {
	CheckInterval time.Duration
	JumpThreshold time.Duration
	ZoneinfoPath  string
}

// Resolve validates cfg and applies defaults. All problems are reported
// together.
func Resolve(cfg *Config) (Settings, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var s Settings

	if !logx.ValidLevel(cfg.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	s.Logging = logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	}

	s.Location = time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			add(fmt.Errorf("timezone: %w", err))
		} else {
			s.Location = loc
		}
	}

	var err error
	if st := cfg.Storage; st != nil {
		s.Storage.Driver = strings.ToLower(strings.TrimSpace(st.Driver))
		s.Storage.Path = strings.TrimSpace(st.Path)
		s.Storage.BusyTimeout, err = ParseDurationField("storage.busy_timeout", st.BusyTimeout)
		add(err)
	}
	switch s.Storage.Driver {
	case "", "memory", "mem":
		s.Storage.Driver = "memory"
	case "file", "sqlite", "sqlite3":
		if s.Storage.Path == "" {
			add(fmt.Errorf("storage.path: required for driver %q", s.Storage.Driver))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", s.Storage.Driver))
	}

	h := cfg.Holidays
	s.Holidays.Source = strings.ToLower(strings.TrimSpace(h.Source))
	s.Holidays.TTL, err = ParseDurationOrDefault("holidays.ttl", h.TTL, defaultHolidayTTL)
	add(err)
	s.Holidays.FetchTimeout, err = ParseDurationOrDefault("holidays.fetch_timeout", h.FetchTimeout, defaultFetchTimeout)
	add(err)
	s.Holidays.RatePerSec = h.RatePerSec
	if s.Holidays.RatePerSec <= 0 {
		s.Holidays.RatePerSec = defaultRatePerSec
	}
	s.Holidays.BaseURL = strings.TrimSpace(h.BaseURL)
	s.Holidays.Operation = strings.TrimSpace(h.Operation)
	s.Holidays.ServiceKey = strings.TrimSpace(h.ServiceKey)
	s.Holidays.Prefetch = h.Prefetch
	if s.Holidays.Prefetch <= 0 {
		s.Holidays.Prefetch = DefaultPrefetch
	}
	for i, sh := range h.Static {
		d, perr := routine.ParseDate(sh.Date)
		if perr != nil {
			add(fmt.Errorf("holidays.static[%d].date: %w", i, perr))
			continue
		}
		s.Holidays.Static = append(s.Holidays.Static, routine.HolidayRecord{Date: d, IsHoliday: true, Name: sh.Name})
	}
	switch s.Holidays.Source {
	case "":
		if s.Holidays.ServiceKey != "" {
			s.Holidays.Source = "datagokr"
		} else if len(s.Holidays.Static) > 0 {
			s.Holidays.Source = "static"
		} else {
			s.Holidays.Source = "none"
		}
	case "datagokr":
		if s.Holidays.ServiceKey == "" {
			add(errors.New("holidays.service_key: required for source datagokr"))
		}
	case "static", "none":
	default:
		add(fmt.Errorf("holidays.source: unknown source %q", s.Holidays.Source))
	}

	resync := strings.TrimSpace(cfg.Alarms.ResyncAt)
	if resync == "" {
		resync = DefaultResyncAt
	}
	s.Alarms.ResyncAt, err = routine.ParseClock(resync)
	if err != nil {
		add(fmt.Errorf("alarms.resync_at: %w", err))
	}
	s.Alarms.LateGrace, err = ParseDurationOrDefault("alarms.late_grace", cfg.Alarms.LateGrace, DefaultLateGrace)
	add(err)

	s.Clock.CheckInterval, err = ParseDurationOrDefault("clock.check_interval", cfg.Clock.CheckInterval, DefaultCheckInterval)
	add(err)
	s.Clock.JumpThreshold, err = ParseDurationOrDefault("clock.jump_threshold", cfg.Clock.JumpThreshold, DefaultJumpThreshold)
	add(err)
	s.Clock.ZoneinfoPath = strings.TrimSpace(cfg.Clock.ZoneinfoPath)
	if s.Clock.ZoneinfoPath == "" {
		s.Clock.ZoneinfoPath = DefaultZoneinfoPath
	}

	s.Metrics = cfg.Metrics
	s.Metrics.Addr = strings.TrimSpace(s.Metrics.Addr)
	if s.Metrics.Enabled && s.Metrics.Addr == "" {
		s.Metrics.Addr = DefaultMetricsAddr
	}

	if len(errs) > 0 {
		return Settings{}, errors.Join(errs...)
	}
	return s, nil
}
