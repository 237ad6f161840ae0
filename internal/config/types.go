package config

// Config is the routined configuration file, JSON or YAML.
//
// Durations are Go duration strings ("15s", "360h"). Omitted fields take the
// defaults applied by Resolve.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Timezone string         `json:"timezone,omitempty"` // IANA name; empty means the host zone
	Storage  *StorageConfig `json:"storage,omitempty"`
	Holidays HolidaysConfig `json:"holidays"`
	Alarms   AlarmsConfig   `json:"alarms"`
	Clock    ClockConfig    `json:"clock"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./routined.db", "busy_timeout": "5s" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// HolidaysConfig controls the public holiday cache and its source.
//
// Source is "datagokr" (the Korean public data portal), "static" (only the
// Static dates below) or "none".
type HolidaysConfig struct {
	Source       string          `json:"source,omitempty"`
	TTL          string          `json:"ttl,omitempty"`
	FetchTimeout string          `json:"fetch_timeout,omitempty"`
	RatePerSec   float64         `json:"rate_per_sec,omitempty"`
	BaseURL      string          `json:"base_url,omitempty"`
	Operation    string          `json:"operation,omitempty"`
	ServiceKey   string          `json:"service_key,omitempty"` // do not log
	Prefetch     int             `json:"prefetch_months,omitempty"`
	Static       []StaticHoliday `json:"static,omitempty"`
}

type StaticHoliday struct {
	Date string `json:"date"` // YYYY-MM-DD
	Name string `json:"name,omitempty"`
}

type AlarmsConfig struct {
	ResyncAt  string `json:"resync_at,omitempty"` // HH:MM daily full reschedule
	LateGrace string `json:"late_grace,omitempty"`
}

type ClockConfig struct {
	CheckInterval string `json:"check_interval,omitempty"`
	JumpThreshold string `json:"jump_threshold,omitempty"`
	ZoneinfoPath  string `json:"zoneinfo_path,omitempty"`
}

// MetricsConfig controls the optional /metrics and /healthz listener.
// Prefer a loopback address.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

// Default is the config written by "routined config init".
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Storage: &StorageConfig{Driver: "sqlite", Path: "./routined.db", BusyTimeout: "5s"},
		Holidays: HolidaysConfig{
			Source:       "none",
			TTL:          "360h",
			FetchTimeout: "10s",
		},
		Alarms: AlarmsConfig{ResyncAt: DefaultResyncAt},
		Clock: ClockConfig{
			CheckInterval: "30s",
			JumpThreshold: "2m",
			ZoneinfoPath:  DefaultZoneinfoPath,
		},
	}
}
