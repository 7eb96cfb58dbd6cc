// Package errors provides centralized error definitions for the swarm
// coordinator. It defines sentinel errors, semantic error types, and
// classification helpers.
//
// The package distinguishes two kinds of failure:
//
// Structural errors describe problems in the request or the system state
// (NotFoundError, InvalidStateError, CapacityError, DependencyError). They
// surface to callers immediately and are never retried.
//
// Execution errors describe problems during task execution (TimeoutError,
// ExecutionError). They are consumed by the retry machinery and reach callers
// only as the terminal failure of a task.
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrCoordinatorStopped) { ... }
//
//	var nf *errors.NotFoundError
//	if errors.As(err, &nf) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Re-export standard library functions so callers can import only this
// package for error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Coordinator lifecycle sentinel errors
var (
	// ErrCoordinatorStopped indicates the coordinator is not accepting work.
	ErrCoordinatorStopped = New("coordinator stopped")
	// ErrCoordinatorRunning indicates a start on an already running coordinator.
	ErrCoordinatorRunning = New("coordinator already running")
)

// Scheduling sentinel errors
var (
	// ErrUnknownStrategy indicates a strategy name with no registration.
	ErrUnknownStrategy = New("unknown scheduling strategy")
	// ErrNoAgentAvailable indicates no candidate satisfied the strategy.
	ErrNoAgentAvailable = New("no agent available")
	// ErrAgentNotIdle indicates an assignment attempt against a non-idle agent.
	ErrAgentNotIdle = New("agent not idle")
	// ErrTaskTerminal indicates a mutation attempt on a terminal task.
	ErrTaskTerminal = New("task already terminal")
)

// Dependency sentinel errors
var (
	// ErrMissingDependency indicates a dependency ID with no matching task.
	ErrMissingDependency = New("missing dependency")
	// ErrDependencyCycle indicates a cycle in the task graph.
	ErrDependencyCycle = New("dependency cycle detected")
)

// NotFoundError indicates a lookup for an unknown resource.
type NotFoundError struct {
	Kind string // "objective", "task", "agent", "snapshot"
	ID   string
}

// NewNotFound creates a NotFoundError for the named resource.
func NewNotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// InvalidStateError indicates an operation that is illegal in the current
// state, such as starting a running coordinator or reassigning a busy agent.
type InvalidStateError struct {
	Op     string // The rejected operation
	Detail string // Why the state forbids it
	cause  error
}

// NewInvalidState creates an InvalidStateError, optionally wrapping a sentinel.
func NewInvalidState(op, detail string, cause error) *InvalidStateError {
	return &InvalidStateError{Op: op, Detail: detail, cause: cause}
}

func (e *InvalidStateError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: invalid state: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("%s: invalid state", e.Op)
}

func (e *InvalidStateError) Unwrap() error { return e.cause }

// CapacityError indicates a configured limit was reached.
type CapacityError struct {
	Resource string // "agents", "tasks"
	Limit    int
}

// NewCapacity creates a CapacityError for the named resource.
func NewCapacity(resource string, limit int) *CapacityError {
	return &CapacityError{Resource: resource, Limit: limit}
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity exceeded: %s limit %d reached", e.Resource, e.Limit)
}

// DependencyError indicates a structurally broken task graph: a dependency
// that names a nonexistent task, or a cycle. Never retried.
type DependencyError struct {
	TaskID string
	Detail string
	cause  error
}

// NewDependency creates a DependencyError wrapping a dependency sentinel.
func NewDependency(taskID, detail string, cause error) *DependencyError {
	return &DependencyError{TaskID: taskID, Detail: detail, cause: cause}
}

func (e *DependencyError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("task %s: dependency error: %s", e.TaskID, e.Detail)
	}
	return fmt.Sprintf("dependency error: %s", e.Detail)
}

func (e *DependencyError) Unwrap() error { return e.cause }

// TimeoutError indicates a task exceeded its execution deadline. Retryable.
type TimeoutError struct {
	TaskID  string
	Timeout time.Duration
}

// NewTimeout creates a TimeoutError for a task.
func NewTimeout(taskID string, timeout time.Duration) *TimeoutError {
	return &TimeoutError{TaskID: taskID, Timeout: timeout}
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s timed out after %s", e.TaskID, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool { return target == context.DeadlineExceeded }

// ExecutionError indicates the executor reported a failure. Retryable.
type ExecutionError struct {
	TaskID  string
	AgentID string
	cause   error
}

// NewExecution creates an ExecutionError wrapping the executor failure.
func NewExecution(taskID, agentID string, cause error) *ExecutionError {
	return &ExecutionError{TaskID: taskID, AgentID: agentID, cause: cause}
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %s failed on agent %s: %v", e.TaskID, e.AgentID, e.cause)
}

func (e *ExecutionError) Unwrap() error { return e.cause }

// IsRetryable reports whether the error is transient: a retry of the same
// task may succeed. Structural errors are never retryable.
func IsRetryable(err error) bool {
	var te *TimeoutError
	var ee *ExecutionError
	if As(err, &te) || As(err, &ee) {
		return true
	}
	return Is(err, context.DeadlineExceeded)
}

// IsStructural reports whether the error describes broken state or input
// rather than a transient execution failure.
func IsStructural(err error) bool {
	var nf *NotFoundError
	var is *InvalidStateError
	var ce *CapacityError
	var de *DependencyError
	return As(err, &nf) || As(err, &is) || As(err, &ce) || As(err, &de)
}
