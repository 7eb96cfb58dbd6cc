package events

import (
	"time"

	"github.com/mlanders/swarmd/internal/model"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	Subject() string // ID of the objective, task, or agent the event concerns
}

// Topic constants
const (
	TopicObjective = "objective"
	TopicTask      = "task"
	TopicAgent     = "agent"
	TopicSystem    = "system"
)

// Event type constants
const (
	EventTypeObjectiveCreated   = "objective.created"
	EventTypeObjectiveStarted   = "objective.started"
	EventTypeObjectiveCompleted = "objective.completed"
	EventTypeObjectiveFailed    = "objective.failed"

	EventTypeTaskCreated   = "task.created"
	EventTypeTaskAssigned  = "task.assigned"
	EventTypeTaskStarted   = "task.started"
	EventTypeTaskCompleted = "task.completed"
	EventTypeTaskFailed    = "task.failed"
	EventTypeTaskRetried   = "task.retried"
	EventTypeTaskCancelled = "task.cancelled"
	EventTypeTaskStolen    = "task.stolen"
	EventTypeTaskRequeued  = "task.requeued"

	EventTypeAgentRegistered = "agent.registered"
	EventTypeAgentHeartbeat  = "agent.heartbeat"
	EventTypeAgentOffline    = "agent.offline"
	EventTypeAgentOnline     = "agent.online"
	EventTypeBreakerState    = "agent.breaker"

	EventTypeStarted = "system.started"
	EventTypeStopped = "system.stopped"
)

// ObjectiveCreatedEvent is published when decomposition succeeds.
type ObjectiveCreatedEvent struct {
	ID        string
	Name      string
	Strategy  model.Strategy
	TaskCount int
	Timestamp time.Time
}

func (e ObjectiveCreatedEvent) EventType() string { return EventTypeObjectiveCreated }
func (e ObjectiveCreatedEvent) Subject() string   { return e.ID }

// ObjectiveStartedEvent is published when the first owned task is assigned.
type ObjectiveStartedEvent struct {
	ID        string
	Timestamp time.Time
}

func (e ObjectiveStartedEvent) EventType() string { return EventTypeObjectiveStarted }
func (e ObjectiveStartedEvent) Subject() string   { return e.ID }

// ObjectiveCompletedEvent is published when every owned task completed.
type ObjectiveCompletedEvent struct {
	ID        string
	Progress  model.Progress
	Duration  time.Duration
	Timestamp time.Time
}

func (e ObjectiveCompletedEvent) EventType() string { return EventTypeObjectiveCompleted }
func (e ObjectiveCompletedEvent) Subject() string   { return e.ID }

// ObjectiveFailedEvent is published when an objective reaches failed.
type ObjectiveFailedEvent struct {
	ID        string
	Progress  model.Progress
	Reason    string
	Timestamp time.Time
}

func (e ObjectiveFailedEvent) EventType() string { return EventTypeObjectiveFailed }
func (e ObjectiveFailedEvent) Subject() string   { return e.ID }

// TaskCreatedEvent is published once per task at decomposition.
type TaskCreatedEvent struct {
	ID          string
	ObjectiveID string
	Name        string
	Type        model.TaskType
	Priority    model.TaskPriority
	DependsOn   []string
	Timestamp   time.Time
}

func (e TaskCreatedEvent) EventType() string { return EventTypeTaskCreated }
func (e TaskCreatedEvent) Subject() string   { return e.ID }

// TaskAssignedEvent is published when a task is paired with an agent.
type TaskAssignedEvent struct {
	ID        string
	AgentID   string
	Attempt   int
	Timestamp time.Time
}

func (e TaskAssignedEvent) EventType() string { return EventTypeTaskAssigned }
func (e TaskAssignedEvent) Subject() string   { return e.ID }

// TaskStartedEvent is published when execution begins.
type TaskStartedEvent struct {
	ID        string
	AgentID   string
	Attempt   int
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) Subject() string   { return e.ID }

// TaskCompletedEvent is published when a task completes successfully.
type TaskCompletedEvent struct {
	ID        string
	AgentID   string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) Subject() string   { return e.ID }

// TaskFailedEvent is published on permanent failure.
type TaskFailedEvent struct {
	ID        string
	AgentID   string
	Attempts  int
	Err       string
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) Subject() string   { return e.ID }

// TaskRetriedEvent is published when a failed attempt is requeued.
type TaskRetriedEvent struct {
	ID        string
	Attempt   int
	Delay     time.Duration
	Err       string
	Timestamp time.Time
}

func (e TaskRetriedEvent) EventType() string { return EventTypeTaskRetried }
func (e TaskRetriedEvent) Subject() string   { return e.ID }

// TaskCancelledEvent is published when a task is cancelled, directly or by
// cascade from a failed ancestor.
type TaskCancelledEvent struct {
	ID        string
	Reason    string
	Timestamp time.Time
}

func (e TaskCancelledEvent) EventType() string { return EventTypeTaskCancelled }
func (e TaskCancelledEvent) Subject() string   { return e.ID }

// TaskRequeuedEvent is published when a queued task is returned to pending
// without consuming an attempt, such as when its agent goes offline.
type TaskRequeuedEvent struct {
	ID        string
	AgentID   string
	Reason    string
	Timestamp time.Time
}

func (e TaskRequeuedEvent) EventType() string { return EventTypeTaskRequeued }
func (e TaskRequeuedEvent) Subject() string   { return e.ID }

// TaskStolenEvent is published when the balancer migrates a queued task.
type TaskStolenEvent struct {
	ID        string
	FromAgent string
	ToAgent   string
	Timestamp time.Time
}

func (e TaskStolenEvent) EventType() string { return EventTypeTaskStolen }
func (e TaskStolenEvent) Subject() string   { return e.ID }

// AgentRegisteredEvent is published when an agent joins the pool.
type AgentRegisteredEvent struct {
	ID           string
	Name         string
	Type         string
	Capabilities []string
	Timestamp    time.Time
}

func (e AgentRegisteredEvent) EventType() string { return EventTypeAgentRegistered }
func (e AgentRegisteredEvent) Subject() string   { return e.ID }

// AgentHeartbeatEvent is published when an agent reports liveness.
type AgentHeartbeatEvent struct {
	ID        string
	Timestamp time.Time
}

func (e AgentHeartbeatEvent) EventType() string { return EventTypeAgentHeartbeat }
func (e AgentHeartbeatEvent) Subject() string   { return e.ID }

// AgentOfflineEvent is published when the health monitor quarantines an agent.
type AgentOfflineEvent struct {
	ID        string
	Reason    string
	Timestamp time.Time
}

func (e AgentOfflineEvent) EventType() string { return EventTypeAgentOffline }
func (e AgentOfflineEvent) Subject() string   { return e.ID }

// AgentOnlineEvent is published when an operator reinstates an agent.
type AgentOnlineEvent struct {
	ID        string
	Timestamp time.Time
}

func (e AgentOnlineEvent) EventType() string { return EventTypeAgentOnline }
func (e AgentOnlineEvent) Subject() string   { return e.ID }

// BreakerStateEvent is published on circuit breaker transitions.
type BreakerStateEvent struct {
	AgentID   string
	From      string
	To        string
	Timestamp time.Time
}

func (e BreakerStateEvent) EventType() string { return EventTypeBreakerState }
func (e BreakerStateEvent) Subject() string   { return e.AgentID }

// StartedEvent is published when the coordinator's loops come up.
type StartedEvent struct {
	Timestamp time.Time
}

func (e StartedEvent) EventType() string { return EventTypeStarted }
func (e StartedEvent) Subject() string   { return "" }

// StoppedEvent is published after shutdown completes.
type StoppedEvent struct {
	Timestamp time.Time
}

func (e StoppedEvent) EventType() string { return EventTypeStopped }
func (e StoppedEvent) Subject() string   { return "" }
