package model

import (
	"slices"
	"time"
)

// AgentStatus represents the availability of an agent.
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"    // Registered and available for work
	AgentBusy    AgentStatus = "busy"    // Executing a task
	AgentOffline AgentStatus = "offline" // Quarantined; receives no work until reinstated
	AgentError   AgentStatus = "error"   // Faulted; operator attention required
)

// Valid reports whether the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentIdle, AgentBusy, AgentOffline, AgentError:
		return true
	}
	return false
}

// Available reports whether the agent may be considered for assignment.
func (s AgentStatus) Available() bool { return s == AgentIdle }

// Agent is a registered worker.
type Agent struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Type         string      `json:"type"` // Worker class, e.g. "researcher", "coder"
	Status       AgentStatus `json:"status"`
	Capabilities []string    `json:"capabilities,omitempty"`

	// CurrentTaskID is set exactly while a task is running on this agent.
	CurrentTaskID string `json:"current_task_id,omitempty"`

	// Queue holds assigned task IDs that have not started running.
	Queue []string `json:"queue,omitempty"`

	// Workload counts queued plus running tasks.
	Workload int `json:"workload"`

	// Weight biases strategy scoring, in [0,1].
	Weight float64 `json:"weight"`

	// Seq is the registration order, used for first-seen tie breaking.
	Seq int `json:"seq"`

	Stats         AgentStats `json:"stats"`
	RegisteredAt  time.Time  `json:"registered_at"`
	LastHeartbeat time.Time  `json:"last_heartbeat"`
}

// AgentStats accumulates per-agent execution history.
type AgentStats struct {
	Completed   int           `json:"completed"`
	Failed      int           `json:"failed"`
	SuccessRate float64       `json:"success_rate"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// record folds one execution outcome into the rolling stats.
func (s *AgentStats) record(ok bool, d time.Duration) {
	if ok {
		s.Completed++
	} else {
		s.Failed++
	}
	n := s.Completed + s.Failed
	s.SuccessRate = float64(s.Completed) / float64(n)
	if ok {
		if s.Completed == 1 {
			s.AvgDuration = d
		} else {
			s.AvgDuration = time.Duration((int64(s.AvgDuration)*int64(s.Completed-1) + int64(d)) / int64(s.Completed))
		}
	}
}

// RecordSuccess folds a successful execution into the stats.
func (s *AgentStats) RecordSuccess(d time.Duration) { s.record(true, d) }

// RecordFailure folds a failed execution into the stats.
func (s *AgentStats) RecordFailure() { s.record(false, 0) }

// HasCapability reports whether the agent holds the named capability.
func (a *Agent) HasCapability(c string) bool {
	return slices.Contains(a.Capabilities, c)
}

// Enqueue appends a task to the agent's queue.
func (a *Agent) Enqueue(taskID string) {
	a.Queue = append(a.Queue, taskID)
	a.Workload = len(a.Queue) + runningCount(a)
}

// Dequeue removes a task from the agent's queue, by ID.
func (a *Agent) Dequeue(taskID string) bool {
	i := slices.Index(a.Queue, taskID)
	if i < 0 {
		return false
	}
	a.Queue = slices.Delete(a.Queue, i, i+1)
	a.Workload = len(a.Queue) + runningCount(a)
	return true
}

// RecalcWorkload refreshes the workload counter after a state change.
func (a *Agent) RecalcWorkload() {
	a.Workload = len(a.Queue) + runningCount(a)
}

func runningCount(a *Agent) int {
	if a.CurrentTaskID != "" {
		return 1
	}
	return 0
}

// Clone returns a deep copy safe to hand outside the coordinator lock.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	c := *a
	c.Capabilities = append([]string(nil), a.Capabilities...)
	c.Queue = append([]string(nil), a.Queue...)
	return &c
}
