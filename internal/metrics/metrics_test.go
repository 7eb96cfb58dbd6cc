package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	if m == nil {
		t.Fatal("expected metrics, got nil")
	}

	tests := []struct {
		name   string
		metric interface{}
	}{
		{"TaskOutcomes", m.TaskOutcomes},
		{"TaskRetries", m.TaskRetries},
		{"TaskSteals", m.TaskSteals},
		{"TaskDuration", m.TaskDuration},
		{"PassDuration", m.PassDuration},
		{"Assignments", m.Assignments},
		{"ReadyBacklog", m.ReadyBacklog},
		{"TasksByStatus", m.TasksByStatus},
		{"AgentsByStatus", m.AgentsByStatus},
		{"BreakerTransitions", m.BreakerTransitions},
		{"AgentsQuarantined", m.AgentsQuarantined},
		{"EventsDropped", m.EventsDropped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s metric is nil", tt.name)
			}
		})
	}
}

func TestTaskMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.TaskOutcomes.WithLabelValues("completed").Inc()
	m.TaskOutcomes.WithLabelValues("completed").Inc()
	m.TaskOutcomes.WithLabelValues("failed").Inc()
	m.TaskRetries.Inc()
	m.TaskDuration.WithLabelValues("research").Observe(1.5)

	if got := testutil.ToFloat64(m.TaskOutcomes.WithLabelValues("completed")); got != 2 {
		t.Errorf("TaskOutcomes completed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TaskOutcomes.WithLabelValues("failed")); got != 1 {
		t.Errorf("TaskOutcomes failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TaskRetries); got != 1 {
		t.Errorf("TaskRetries = %v, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.TasksByStatus.WithLabelValues("pending").Set(3)
	m.TasksByStatus.WithLabelValues("running").Set(2)
	m.AgentsByStatus.WithLabelValues("idle").Set(1)
	m.ReadyBacklog.Set(5)

	if got := testutil.ToFloat64(m.TasksByStatus.WithLabelValues("pending")); got != 3 {
		t.Errorf("TasksByStatus pending = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.ReadyBacklog); got != 5 {
		t.Errorf("ReadyBacklog = %v, want 5", got)
	}
}

func TestNopIsUsable(t *testing.T) {
	m := Nop()
	m.TaskOutcomes.WithLabelValues("cancelled").Inc()
	m.BreakerTransitions.WithLabelValues("open").Inc()

	if got := testutil.ToFloat64(m.BreakerTransitions.WithLabelValues("open")); got != 1 {
		t.Errorf("BreakerTransitions open = %v, want 1", got)
	}
}
