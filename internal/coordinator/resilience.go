package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mlanders/swarmd/internal/errors"
	"github.com/mlanders/swarmd/internal/events"
)

// breakerRegistry manages one circuit breaker per agent. A breaker opens
// after a run of consecutive failures, removing the agent from the
// candidate pool until the cool-down elapses; half-open admits exactly one
// trial execution.
type breakerRegistry struct {
	mu        sync.Mutex
	threshold uint32
	cooldown  time.Duration
	onChange  func(agentID string, from, to gobreaker.State)
	breakers  map[string]*gobreaker.CircuitBreaker
}

func newBreakerRegistry(threshold uint32, cooldown time.Duration, onChange func(agentID string, from, to gobreaker.State)) *breakerRegistry {
	return &breakerRegistry{
		threshold: threshold,
		cooldown:  cooldown,
		onChange:  onChange,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
}

// get returns the breaker for an agent, creating it on first use.
func (r *breakerRegistry) get(agentID string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[agentID]; ok {
		return cb
	}

	threshold := r.threshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        agentID,
		MaxRequests: 1, // Half-open allows a single trial
		Interval:    0, // Never clear counts while closed
		Timeout:     r.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: r.onChange,
		IsSuccessful: func(err error) bool {
			// Cancellation is the supervisor's doing, not the agent's
			// fault. Deadline expiry counts against the agent.
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled)
		},
	})

	r.breakers[agentID] = cb
	return cb
}

// open reports whether the agent's breaker currently rejects dispatch.
// Half-open is not open: the single trial must be allowed through.
func (r *breakerRegistry) open(agentID string) bool {
	r.mu.Lock()
	cb, ok := r.breakers[agentID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return cb.State() == gobreaker.StateOpen
}

// state returns the breaker state for an agent, closed when none exists.
func (r *breakerRegistry) state(agentID string) gobreaker.State {
	r.mu.Lock()
	cb, ok := r.breakers[agentID]
	r.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

// onBreakerChange publishes breaker transitions. Runs on the dispatch
// goroutine without the coordinator lock, so it must not touch guarded
// state.
func (c *Coordinator) onBreakerChange(agentID string, from, to gobreaker.State) {
	c.bus.Publish(events.TopicAgent, events.BreakerStateEvent{
		AgentID:   agentID,
		From:      from.String(),
		To:        to.String(),
		Timestamp: time.Now(),
	})
	c.metrics.BreakerTransitions.WithLabelValues(to.String()).Inc()
	c.log.Warn("circuit breaker state change",
		"agent_id", agentID,
		"from", from.String(),
		"to", to.String())
}
