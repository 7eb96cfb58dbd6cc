package model

import "time"

// TypeStats accumulates rolling execution history for one task type.
type TypeStats struct {
	Count       int           `json:"count"`
	SuccessRate float64       `json:"success_rate"`
	AvgDuration time.Duration `json:"avg_duration"`

	// LastAgentID is the agent that most recently completed this type.
	LastAgentID string `json:"last_agent_id,omitempty"`
}

// RecordSuccess folds a successful execution into the rolling stats.
func (s *TypeStats) RecordSuccess(agentID string, d time.Duration) {
	s.Count++
	s.SuccessRate = (s.SuccessRate*float64(s.Count-1) + 1) / float64(s.Count)
	s.AvgDuration = time.Duration((int64(s.AvgDuration)*int64(s.Count-1) + int64(d)) / int64(s.Count))
	s.LastAgentID = agentID
}

// RecordFailure folds a failed execution into the rolling stats.
func (s *TypeStats) RecordFailure() {
	s.Count++
	s.SuccessRate = (s.SuccessRate * float64(s.Count-1)) / float64(s.Count)
}

// Clone returns a copy of the stats.
func (s *TypeStats) Clone() *TypeStats {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// SchedulingContext is the ephemeral view handed to strategies for one pass.
// It is rebuilt every pass and never stored.
type SchedulingContext struct {
	// Loads maps agent ID to workload normalized by queue capacity, in [0,1].
	Loads map[string]float64

	// Weights maps agent ID to its scheduling priority weight.
	Weights map[string]float64

	// TypeStats maps task type to historical execution stats.
	TypeStats map[TaskType]*TypeStats

	Now time.Time
}

// Load returns the normalized load for an agent, zero when unknown.
func (c *SchedulingContext) Load(agentID string) float64 {
	if c == nil || c.Loads == nil {
		return 0
	}
	return c.Loads[agentID]
}

// Weight returns the priority weight for an agent, zero when unknown.
func (c *SchedulingContext) Weight(agentID string) float64 {
	if c == nil || c.Weights == nil {
		return 0
	}
	return c.Weights[agentID]
}

// StatsFor returns the historical stats for a task type, nil when absent.
func (c *SchedulingContext) StatsFor(t TaskType) *TypeStats {
	if c == nil || c.TypeStats == nil {
		return nil
	}
	return c.TypeStats[t]
}
