package config

import (
	"reflect"
	"sort"
	"strings"

	logx "routined/pkg/logx"
)

// Sections applied live on reload. Anything else needs a restart.
var liveSections = map[string]bool{"logging": true, "metrics": true}

// SummarizeConfigChange returns the changed top-level sections and safe
// attrs for logging. The holiday service key is never logged.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		changed = append(changed, "timezone")
		attrs = append(attrs, logx.String("timezone", strings.TrimSpace(newCfg.Timezone)))
	}

	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
		)
	}

	oH, nH := oldCfg.Holidays, newCfg.Holidays
	keyChanged := oH.ServiceKey != nH.ServiceKey
	oH.ServiceKey, nH.ServiceKey = "", ""
	if keyChanged || !reflect.DeepEqual(oH, nH) {
		changed = append(changed, "holidays")
		attrs = append(attrs,
			logx.String("holidays.source", nH.Source),
			logx.String("holidays.ttl", nH.TTL),
			logx.Int("holidays.static_count", len(nH.Static)),
			logx.Bool("holidays.service_key_changed", keyChanged),
		)
	}
	if oldCfg.Alarms != newCfg.Alarms {
		changed = append(changed, "alarms")
		attrs = append(attrs, logx.String("alarms.resync_at", newCfg.Alarms.ResyncAt))
	}
	if oldCfg.Clock != newCfg.Clock {
		changed = append(changed, "clock")
		attrs = append(attrs,
			logx.String("clock.check_interval", newCfg.Clock.CheckInterval),
			logx.String("clock.jump_threshold", newCfg.Clock.JumpThreshold),
		)
	}
	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", newCfg.Metrics.Addr),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired lists the changed sections that are not applied live.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if !liveSections[s] {
			out = append(out, s)
		}
	}
	return out
}
