// Package metrics exposes Prometheus instrumentation for the coordinator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the coordinator.
type Metrics struct {
	// Task lifecycle counters
	TaskOutcomes *prometheus.CounterVec // outcome: completed|failed|cancelled
	TaskRetries  prometheus.Counter
	TaskSteals   prometheus.Counter
	TaskDuration *prometheus.HistogramVec // by task type

	// Scheduling
	PassDuration  prometheus.Histogram
	Assignments   *prometheus.CounterVec // by strategy
	ReadyBacklog  prometheus.Gauge       // ready tasks awaiting an agent
	TasksByStatus *prometheus.GaugeVec

	// Agents
	AgentsByStatus     *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec // to_state: open|half-open|closed
	AgentsQuarantined  prometheus.Counter

	// Events
	EventsDropped prometheus.Gauge
}

// New creates all collectors registered against the given registerer.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		TaskOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarmd_task_outcomes_total",
				Help: "Terminal task outcomes by kind",
			},
			[]string{"outcome"},
		),
		TaskRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "swarmd_task_retries_total",
				Help: "Failed attempts requeued for retry",
			},
		),
		TaskSteals: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "swarmd_task_steals_total",
				Help: "Queued tasks migrated by the balancer",
			},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swarmd_task_duration_seconds",
				Help:    "Successful task execution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		PassDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "swarmd_scheduling_pass_duration_seconds",
				Help:    "Scheduling pass duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
		),
		Assignments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarmd_assignments_total",
				Help: "Task assignments by strategy",
			},
			[]string{"strategy"},
		),
		ReadyBacklog: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "swarmd_ready_backlog",
				Help: "Ready tasks waiting for an available agent",
			},
		),
		TasksByStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "swarmd_tasks",
				Help: "Tasks by current status",
			},
			[]string{"status"},
		),
		AgentsByStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "swarmd_agents",
				Help: "Agents by current status",
			},
			[]string{"status"},
		),
		BreakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarmd_breaker_transitions_total",
				Help: "Circuit breaker state transitions by target state",
			},
			[]string{"to_state"},
		),
		AgentsQuarantined: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "swarmd_agents_quarantined_total",
				Help: "Agents taken offline by the health monitor",
			},
		),
		EventsDropped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "swarmd_events_dropped",
				Help: "Events dropped due to slow subscribers",
			},
		),
	}
}

// Nop returns metrics bound to a throwaway registry. Useful in tests.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
