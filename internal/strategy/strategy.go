// Package strategy implements agent selection policies for the scheduler.
// A strategy picks one agent from the candidate set for a task; candidates
// are supplied by the supervisor and are already filtered for availability.
package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mlanders/swarmd/internal/errors"
	"github.com/mlanders/swarmd/internal/model"
)

// Built-in strategy names.
const (
	NameCapabilityMatch = "capability-match"
	NameRoundRobin      = "round-robin"
	NameLeastLoaded     = "least-loaded"
	NameAffinity        = "affinity"
)

// Strategy selects an agent for a task.
type Strategy interface {
	Name() string

	// SelectAgent returns the chosen agent ID, or false when no candidate
	// is acceptable. Candidates are never empty when called.
	SelectAgent(task *model.Task, candidates []*model.Agent, sctx *model.SchedulingContext) (string, bool)
}

// Registry maps strategy names to implementations.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates a registry preloaded with the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.strategies[NameCapabilityMatch] = NewCapabilityMatch()
	r.strategies[NameRoundRobin] = NewRoundRobin()
	r.strategies[NameLeastLoaded] = NewLeastLoaded()
	r.strategies[NameAffinity] = NewAffinity()
	return r
}

// Register adds a strategy. Returns an error on duplicate names.
func (r *Registry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.strategies[s.Name()]; exists {
		return fmt.Errorf("strategy %q already registered", s.Name())
	}
	r.strategies[s.Name()] = s
	return nil
}

// Get returns the named strategy. Unknown names are a configuration error.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownStrategy, name)
	}
	return s, nil
}

// Names returns the registered strategy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// bySeq orders agents by registration sequence, the stable first-seen order.
func bySeq(agents []*model.Agent) []*model.Agent {
	out := append([]*model.Agent(nil), agents...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}
