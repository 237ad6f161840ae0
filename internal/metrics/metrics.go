// Package metrics exposes routined's prometheus collectors and the HTTP
// listener that serves them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"routined/internal/alarm"
	"routined/internal/holiday"
	"routined/internal/wakeup"
)

const Namespace = "routined"

type Metrics struct {
	registry *prometheus.Registry

	alarmOutcomes  *prometheus.CounterVec
	holidayResults *prometheus.CounterVec
	reschedules    *prometheus.CounterVec
	firedTotal     prometheus.Counter
	fireDelay      prometheus.Histogram
}

// New registers every collector on a fresh registry, including the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		alarmOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "alarm_schedule_total",
				Help:      "Alarm scheduling attempts by outcome",
			},
			[]string{"outcome"},
		),
		holidayResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "holiday_lookups_total",
				Help:      "Holiday month lookups by cache status",
			},
			[]string{"status"},
		),
		reschedules: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "reschedule_runs_total",
				Help:      "Full reschedule passes by trigger",
			},
			[]string{"reason"},
		),
		firedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "reminders_fired_total",
				Help:      "Reminder alarms that went off",
			},
		),
		fireDelay: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "reminder_fire_delay_seconds",
				Help:      "Delay between the registered trigger time and the actual fire",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 30, 60},
			},
		),
	}
	reg.MustRegister(
		m.alarmOutcomes,
		m.holidayResults,
		m.reschedules,
		m.firedTotal,
		m.fireDelay,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveOutcome matches alarm.WithOutcomeObserver.
func (m *Metrics) ObserveOutcome(o alarm.Outcome) {
	m.alarmOutcomes.WithLabelValues(o.Kind.String()).Inc()
}

// ObserveHoliday matches holiday.WithObserver.
func (m *Metrics) ObserveHoliday(r holiday.Result) {
	m.holidayResults.WithLabelValues(r.Status.String()).Inc()
}

func (m *Metrics) ObserveFired(ev wakeup.FiredEvent) {
	m.firedTotal.Inc()
	m.fireDelay.Observe(ev.Late().Seconds())
}

func (m *Metrics) Rescheduled(reason string) {
	m.reschedules.WithLabelValues(reason).Inc()
}

// GaugeFunc registers a gauge read from fn at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: Namespace, Name: name, Help: help},
		fn,
	))
}

// CounterFunc registers a counter read from fn at scrape time.
func (m *Metrics) CounterFunc(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Namespace: Namespace, Name: name, Help: help},
		fn,
	))
}
