package strategy

import (
	"github.com/mlanders/swarmd/internal/model"
)

// saturationThreshold is the workload at which an agent stops attracting
// affinity placements, in concurrent task equivalents.
const saturationThreshold = 8

// Affinity prefers the agent that last executed the task's type
// successfully, exploiting warm context. Falls back to capability matching
// when no history exists or the preferred agent is saturated.
type Affinity struct {
	fallback *CapabilityMatch
}

// NewAffinity creates the affinity strategy.
func NewAffinity() *Affinity {
	return &Affinity{fallback: NewCapabilityMatch()}
}

// Name returns the registry name.
func (s *Affinity) Name() string { return NameAffinity }

// SelectAgent returns the last successful agent for this task type when it
// is among the candidates and under the saturation threshold.
func (s *Affinity) SelectAgent(task *model.Task, candidates []*model.Agent, sctx *model.SchedulingContext) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	if stats := sctx.StatsFor(task.Type); stats != nil && stats.LastAgentID != "" {
		for _, a := range candidates {
			if a.ID == stats.LastAgentID && a.Workload < saturationThreshold {
				return a.ID, true
			}
		}
	}

	return s.fallback.SelectAgent(task, candidates, sctx)
}
