package observability

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/intake/pkg/domain"
)

// Metrics holds the engine collectors.
type Metrics struct {
	intentEntered    *prometheus.CounterVec
	slotsResolved    *prometheus.CounterVec
	validationFailed *prometheus.CounterVec
	lookups          *prometheus.CounterVec
	lookupDuration   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		intentEntered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_intent_entered_total",
				Help: "Total number of descents into an intent",
			},
			[]string{"intent"},
		),
		slotsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_slots_resolved_total",
				Help: "Total number of resolved slots by source",
			},
			[]string{"slot", "source"},
		),
		validationFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_validation_failures_total",
				Help: "Total number of rejected slot values",
			},
			[]string{"slot"},
		),
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_lookups_total",
				Help: "Total number of record provider calls by outcome",
			},
			[]string{"outcome"},
		),
		lookupDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "intake_lookup_duration_seconds",
				Help:    "Duration of record provider calls",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	reg.MustRegister(
		m.intentEntered,
		m.slotsResolved,
		m.validationFailed,
		m.lookups,
		m.lookupDuration,
	)
	return m
}

// Lookup outcome label values.
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnIntentEnter: func(_ context.Context, e *domain.IntentEvent) {
			m.intentEntered.WithLabelValues(e.Intent).Inc()
		},
		OnSlotResolved: func(_ context.Context, e *domain.SlotEvent) {
			m.slotsResolved.WithLabelValues(e.Slot, string(e.Source)).Inc()
		},
		OnValidationFailed: func(_ context.Context, e *domain.SlotEvent) {
			m.validationFailed.WithLabelValues(e.Slot).Inc()
		},
		OnLookup: func(_ context.Context, e *domain.LookupEvent) {
			m.lookups.WithLabelValues(outcome(e)).Inc()
			m.lookupDuration.Observe(e.Duration.Seconds())
		},
	}
}

func outcome(e *domain.LookupEvent) string {
	switch {
	case e.Err == nil && e.Found:
		return OutcomeFound
	case e.Err == nil || errors.Is(e.Err, domain.ErrRecordNotFound):
		return OutcomeNotFound
	}
	return OutcomeError
}

// IntentEntered exposes the intent counter.
func (m *Metrics) IntentEntered() *prometheus.CounterVec { return m.intentEntered }

// SlotsResolved exposes the resolved slot counter.
func (m *Metrics) SlotsResolved() *prometheus.CounterVec { return m.slotsResolved }

// ValidationFailures exposes the rejected value counter.
func (m *Metrics) ValidationFailures() *prometheus.CounterVec { return m.validationFailed }

// Lookups exposes the lookup outcome counter.
func (m *Metrics) Lookups() *prometheus.CounterVec { return m.lookups }
