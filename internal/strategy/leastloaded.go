package strategy

import (
	"github.com/mlanders/swarmd/internal/model"
)

// LeastLoaded picks the candidate with the numerically lowest workload.
// Ties break by first-seen (registration) order.
type LeastLoaded struct{}

// NewLeastLoaded creates the least-loaded strategy.
func NewLeastLoaded() *LeastLoaded { return &LeastLoaded{} }

// Name returns the registry name.
func (s *LeastLoaded) Name() string { return NameLeastLoaded }

// SelectAgent returns the least busy candidate.
func (s *LeastLoaded) SelectAgent(task *model.Task, candidates []*model.Agent, sctx *model.SchedulingContext) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	best := candidates[0]
	for _, a := range candidates[1:] {
		if a.Workload < best.Workload ||
			(a.Workload == best.Workload && a.Seq < best.Seq) {
			best = a
		}
	}
	return best.ID, true
}
