package model

import (
	"strings"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"   // Waiting for dependencies or an agent
	TaskAssigned  TaskStatus = "assigned"  // Queued against an agent, not yet started
	TaskRunning   TaskStatus = "running"   // Currently executing
	TaskCompleted TaskStatus = "completed" // Finished successfully
	TaskFailed    TaskStatus = "failed"    // Exhausted retries
	TaskCancelled TaskStatus = "cancelled" // Cancelled, directly or by a failed ancestor
)

// Valid reports whether the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskAssigned, TaskRunning, TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status permits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// TaskType categorizes a task for capability matching and statistics.
type TaskType string

const (
	TypeResearch       TaskType = "research"
	TypeAnalysis       TaskType = "analysis"
	TypeImplementation TaskType = "implementation"
	TypeTesting        TaskType = "testing"
	TypeDocumentation  TaskType = "documentation"
	TypeReview         TaskType = "review"
	TypeMaintenance    TaskType = "maintenance"
)

// customTypePrefix marks caller-defined task types outside the built-in set.
const customTypePrefix = "custom:"

// CustomType builds a caller-defined task type.
func CustomType(name string) TaskType {
	return TaskType(customTypePrefix + name)
}

// Valid reports whether the type is built-in or a custom type.
func (t TaskType) Valid() bool {
	switch t {
	case TypeResearch, TypeAnalysis, TypeImplementation, TypeTesting,
		TypeDocumentation, TypeReview, TypeMaintenance:
		return true
	}
	return strings.HasPrefix(string(t), customTypePrefix) && len(t) > len(customTypePrefix)
}

// TaskPriority orders tasks within a scheduling pass.
type TaskPriority string

const (
	PriorityCritical   TaskPriority = "critical"
	PriorityHigh       TaskPriority = "high"
	PriorityNormal     TaskPriority = "normal"
	PriorityLow        TaskPriority = "low"
	PriorityBackground TaskPriority = "background"
)

// Rank maps a priority to a sortable weight; higher runs first.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	case PriorityBackground:
		return 0
	}
	return -1
}

// Valid reports whether the priority is a known value.
func (p TaskPriority) Valid() bool { return p.Rank() >= 0 }

// Task is a unit of work owned by an objective.
type Task struct {
	ID           string        `json:"id"`
	ObjectiveID  string        `json:"objective_id"`
	Name         string        `json:"name"`
	Type         TaskType      `json:"type"`
	Priority     TaskPriority  `json:"priority"`
	DependsOn    []string      `json:"depends_on,omitempty"`   // Task IDs that must complete first
	Capabilities []string      `json:"capabilities,omitempty"` // Capabilities an agent must hold
	Instructions string        `json:"instructions,omitempty"` // Opaque payload handed to the executor
	Status       TaskStatus    `json:"status"`
	AgentID      string        `json:"agent_id,omitempty"` // Agent currently responsible, if any
	Attempts     int           `json:"attempts"`
	MaxRetries   int           `json:"max_retries"`
	Timeout      time.Duration `json:"timeout"`

	// Seq is the admission order, used for FIFO tie breaking within a priority.
	Seq int `json:"seq"`

	// NextAttemptAt gates retried tasks; zero means eligible now.
	NextAttemptAt time.Time `json:"next_attempt_at,omitempty"`

	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Result carries the outcome of a successful execution.
type Result struct {
	Output     string        `json:"output,omitempty"` // Opaque executor payload
	AgentID    string        `json:"agent_id"`
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Clone returns a deep copy safe to hand outside the coordinator lock.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.DependsOn = append([]string(nil), t.DependsOn...)
	c.Capabilities = append([]string(nil), t.Capabilities...)
	if t.Result != nil {
		r := *t.Result
		c.Result = &r
	}
	c.AssignedAt = cloneTime(t.AssignedAt)
	c.StartedAt = cloneTime(t.StartedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
