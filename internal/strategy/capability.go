package strategy

import (
	"math"

	"github.com/mlanders/swarmd/internal/model"
)

// Scoring weights for capability matching.
const (
	weightCapability = 0.5
	weightLoad       = 0.3
	weightPriority   = 0.2

	scoreEpsilon = 1e-9
)

// CapabilityMatch scores each candidate by capability coverage, inverse
// load, and the agent's priority weight. The default strategy.
type CapabilityMatch struct{}

// NewCapabilityMatch creates the capability-match strategy.
func NewCapabilityMatch() *CapabilityMatch { return &CapabilityMatch{} }

// Name returns the registry name.
func (s *CapabilityMatch) Name() string { return NameCapabilityMatch }

// SelectAgent picks the highest scoring candidate. Ties go to the agent
// with the lower load, then the lexicographically smaller ID.
func (s *CapabilityMatch) SelectAgent(task *model.Task, candidates []*model.Agent, sctx *model.SchedulingContext) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	var best *model.Agent
	var bestScore float64

	for _, a := range candidates {
		score := weightCapability*capabilityScore(task, a) +
			weightLoad*(1-sctx.Load(a.ID)) +
			weightPriority*sctx.Weight(a.ID)

		switch {
		case best == nil || score > bestScore+scoreEpsilon:
			best, bestScore = a, score
		case math.Abs(score-bestScore) <= scoreEpsilon:
			if sctx.Load(a.ID) < sctx.Load(best.ID) ||
				(sctx.Load(a.ID) == sctx.Load(best.ID) && a.ID < best.ID) {
				best, bestScore = a, score
			}
		}
	}

	return best.ID, true
}

// capabilityScore returns the fraction of required capabilities the agent
// holds. Tasks without explicit requirements fall back to the task type:
// full score when the agent covers it, half otherwise.
func capabilityScore(task *model.Task, agent *model.Agent) float64 {
	if len(task.Capabilities) == 0 {
		if agent.HasCapability(string(task.Type)) {
			return 1.0
		}
		return 0.5
	}

	matched := 0
	for _, c := range task.Capabilities {
		if agent.HasCapability(c) {
			matched++
		}
	}
	return float64(matched) / float64(len(task.Capabilities))
}
