package strategy

import (
	"sync"

	"github.com/mlanders/swarmd/internal/model"
)

// RoundRobin rotates through candidates in registration order, ignoring
// capabilities and load. The cursor persists across scheduling passes.
type RoundRobin struct {
	mu     sync.Mutex
	cursor int
}

// NewRoundRobin creates the round-robin strategy.
func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

// Name returns the registry name.
func (s *RoundRobin) Name() string { return NameRoundRobin }

// SelectAgent returns the next candidate in rotation.
func (s *RoundRobin) SelectAgent(task *model.Task, candidates []*model.Agent, sctx *model.SchedulingContext) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	ordered := bySeq(candidates)

	s.mu.Lock()
	defer s.mu.Unlock()

	pick := ordered[s.cursor%len(ordered)]
	s.cursor++
	return pick.ID, true
}
