// Package coordinator owns all objective, task, and agent state and runs the
// background loops that schedule, supervise, and heal the swarm.
//
// One mutex guards every map; the only suspension point is the executor call,
// which runs outside the lock in a dispatch goroutine. Strategies and the
// dependency resolver see state only through read-only views built each pass.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/mlanders/swarmd/internal/config"
	"github.com/mlanders/swarmd/internal/decompose"
	"github.com/mlanders/swarmd/internal/errors"
	"github.com/mlanders/swarmd/internal/events"
	"github.com/mlanders/swarmd/internal/executor"
	"github.com/mlanders/swarmd/internal/graph"
	"github.com/mlanders/swarmd/internal/logging"
	"github.com/mlanders/swarmd/internal/metrics"
	"github.com/mlanders/swarmd/internal/model"
	"github.com/mlanders/swarmd/internal/store"
	"github.com/mlanders/swarmd/internal/strategy"
)

// State is the coordinator's global lifecycle state.
type State string

const (
	StateNotStarted State = "not-started"
	StateExecuting  State = "executing"
	StateStopped    State = "stopped"
)

// Options configures a Coordinator. Config is required; every other field
// has a working default.
type Options struct {
	Config     *config.Config
	Logger     *slog.Logger         // Defaults to a discard logger
	Executor   executor.Executor    // Overrides the executor built from Config (for testing)
	Snapshots  store.SnapshotStore  // Nil disables periodic snapshots
	Metrics    *metrics.Metrics     // Defaults to collectors on a private registry
	Decomposer decompose.Decomposer // Defaults to the template decomposer
	Registry   *strategy.Registry   // Defaults to the built-in strategies
}

// Coordinator orchestrates objectives, tasks, and agents.
type Coordinator struct {
	cfg     *config.Config
	log     *slog.Logger
	bus     *events.EventBus
	metrics *metrics.Metrics
	exec    executor.Executor
	snaps   store.SnapshotStore
	strat   strategy.Strategy
	decomp  decompose.Decomposer

	mu         sync.Mutex
	objectives map[string]*model.Objective
	agents     map[string]*model.Agent
	graph      *graph.Graph
	typeStats  map[model.TaskType]*model.TypeStats
	retries    map[string]*backoff.ExponentialBackOff // per-task backoff state
	cancels    map[string]context.CancelFunc          // per-dispatch cancellation
	breakers   *breakerRegistry
	agentSeq   int
	taskSeq    int

	state     State
	startedAt time.Time
	stoppedAt time.Time
	lastSnap  time.Time
	runCtx    context.Context
	stopRun   context.CancelFunc
	loops     *errgroup.Group
	inflight  sync.WaitGroup

	// now is replaceable in tests; dispatch deadlines still use wall time.
	now func() time.Time
}

// New creates a Coordinator. An unknown scheduling strategy in the config is
// reported here, not silently ignored later.
func New(opts Options) (*Coordinator, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("coordinator: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}

	reg := opts.Registry
	if reg == nil {
		reg = strategy.NewRegistry()
	}
	strat, err := reg.Get(cfg.Scheduling.Strategy)
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	exec := opts.Executor
	if exec == nil {
		exec, err = executor.New(executor.Config{
			Type:    cfg.Executor.Type,
			Command: cfg.Executor.Command,
			Args:    cfg.Executor.Args,
			Delay:   cfg.Executor.Delay,
		}, executor.NewProcessManager(), log)
		if err != nil {
			return nil, fmt.Errorf("coordinator: %w", err)
		}
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.Nop()
	}

	decomp := opts.Decomposer
	if decomp == nil {
		decomp = decompose.NewTemplate(decompose.Defaults{
			Timeout:    cfg.Scheduling.TaskTimeout,
			MaxRetries: cfg.Retry.MaxRetries,
		})
	}

	c := &Coordinator{
		cfg:        cfg,
		log:        log,
		bus:        events.NewEventBus(),
		metrics:    m,
		exec:       exec,
		snaps:      opts.Snapshots,
		strat:      strat,
		decomp:     decomp,
		objectives: make(map[string]*model.Objective),
		agents:     make(map[string]*model.Agent),
		graph:      graph.New(),
		typeStats:  make(map[model.TaskType]*model.TypeStats),
		retries:    make(map[string]*backoff.ExponentialBackOff),
		cancels:    make(map[string]context.CancelFunc),
		state:      StateNotStarted,
		now:        time.Now,
	}
	c.breakers = newBreakerRegistry(cfg.Breaker.Threshold, cfg.Breaker.Cooldown, c.onBreakerChange)
	return c, nil
}

// Events returns the coordinator's event bus for external subscribers.
func (c *Coordinator) Events() *events.EventBus { return c.bus }

// Strategy returns the active scheduling strategy name.
func (c *Coordinator) Strategy() string { return c.strat.Name() }

// CreateObjective decomposes a description into tasks and admits them.
// Scheduling begins on the next background pass; the call never blocks on
// execution.
func (c *Coordinator) CreateObjective(ctx context.Context, name, description string, strat model.Strategy) (*model.Objective, error) {
	if strat == "" {
		strat = model.StrategyAuto
	}
	if !strat.Valid() {
		return nil, errors.NewInvalidState("create objective", fmt.Sprintf("unknown strategy %q", strat), nil)
	}

	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return nil, errors.NewInvalidState("create objective", "coordinator stopped", errors.ErrCoordinatorStopped)
	}
	c.mu.Unlock()

	obj := &model.Objective{
		ID:          model.NewID("obj"),
		Name:        name,
		Description: description,
		Strategy:    strat,
		Status:      model.ObjectivePlanning,
		CreatedAt:   c.now(),
	}

	// Decomposition is pluggable and may be slow, so it runs outside the lock.
	tasks, err := c.decomp.Decompose(ctx, obj.Clone())
	if err != nil {
		return nil, fmt.Errorf("decompose objective: %w", err)
	}
	if len(tasks) == 0 {
		return nil, errors.NewInvalidState("create objective", "decomposition produced no tasks", nil)
	}

	// Reject broken graphs before any task is admitted.
	scratch := graph.New()
	for _, t := range tasks {
		if err := scratch.Add(t); err != nil {
			return nil, err
		}
	}
	if _, err := scratch.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStopped {
		return nil, errors.NewInvalidState("create objective", "coordinator stopped", errors.ErrCoordinatorStopped)
	}
	if c.graph.Len()+len(tasks) > c.cfg.Limits.MaxTasks {
		return nil, errors.NewCapacity("tasks", c.cfg.Limits.MaxTasks)
	}

	for _, t := range tasks {
		t.ObjectiveID = obj.ID
		c.taskSeq++
		t.Seq = c.taskSeq
		if err := c.graph.Add(t); err != nil {
			return nil, err
		}
		obj.TaskIDs = append(obj.TaskIDs, t.ID)
	}
	obj.Progress.Total = len(tasks)
	c.objectives[obj.ID] = obj

	for _, t := range tasks {
		c.bus.Publish(events.TopicTask, events.TaskCreatedEvent{
			ID:          t.ID,
			ObjectiveID: obj.ID,
			Name:        t.Name,
			Type:        t.Type,
			Priority:    t.Priority,
			DependsOn:   append([]string(nil), t.DependsOn...),
			Timestamp:   c.now(),
		})
	}
	c.bus.Publish(events.TopicObjective, events.ObjectiveCreatedEvent{
		ID:        obj.ID,
		Name:      obj.Name,
		Strategy:  obj.Strategy,
		TaskCount: len(tasks),
		Timestamp: c.now(),
	})
	c.log.Info("objective created",
		"objective_id", obj.ID,
		"strategy", obj.Strategy,
		"tasks", len(tasks))

	return obj.Clone(), nil
}

// TaskSpec describes a follow-up task submitted against an existing
// objective. Zero Timeout and MaxRetries inherit the configured defaults.
type TaskSpec struct {
	Name         string
	Type         model.TaskType
	Priority     model.TaskPriority
	DependsOn    []string
	Capabilities []string
	Instructions string
	MaxRetries   int
	Timeout      time.Duration
}

// AddTask admits one follow-up task into a live objective. Dependencies may
// reference any existing task; a dependency that already failed or was
// cancelled makes the new task unrunnable and is rejected.
func (c *Coordinator) AddTask(ctx context.Context, objectiveID string, spec TaskSpec) (*model.Task, error) {
	if spec.Type == "" {
		spec.Type = model.TypeMaintenance
	}
	if !spec.Type.Valid() {
		return nil, errors.NewInvalidState("add task", fmt.Sprintf("invalid task type %q", spec.Type), nil)
	}
	if spec.Priority == "" {
		spec.Priority = model.PriorityNormal
	}
	if !spec.Priority.Valid() {
		return nil, errors.NewInvalidState("add task", fmt.Sprintf("invalid priority %q", spec.Priority), nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStopped {
		return nil, errors.NewInvalidState("add task", "coordinator stopped", errors.ErrCoordinatorStopped)
	}
	obj, ok := c.objectives[objectiveID]
	if !ok {
		return nil, errors.NewNotFound("objective", objectiveID)
	}
	if obj.Status.Terminal() {
		return nil, errors.NewInvalidState("add task", fmt.Sprintf("objective %s is %s", objectiveID, obj.Status), nil)
	}
	if c.graph.Len()+1 > c.cfg.Limits.MaxTasks {
		return nil, errors.NewCapacity("tasks", c.cfg.Limits.MaxTasks)
	}

	id := model.NewID("task")
	for _, depID := range spec.DependsOn {
		dep, exists := c.graph.Get(depID)
		if !exists {
			return nil, errors.NewDependency(id,
				fmt.Sprintf("depends on nonexistent task %q", depID),
				errors.ErrMissingDependency)
		}
		if dep.Status == model.TaskFailed || dep.Status == model.TaskCancelled {
			return nil, errors.NewDependency(id,
				fmt.Sprintf("dependency %q already %s", depID, dep.Status), nil)
		}
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Scheduling.TaskTimeout
	}
	maxRetries := spec.MaxRetries
	if maxRetries <= 0 {
		maxRetries = c.cfg.Retry.MaxRetries
	}

	c.taskSeq++
	task := &model.Task{
		ID:           id,
		ObjectiveID:  objectiveID,
		Name:         spec.Name,
		Type:         spec.Type,
		Priority:     spec.Priority,
		DependsOn:    append([]string(nil), spec.DependsOn...),
		Capabilities: append([]string(nil), spec.Capabilities...),
		Instructions: spec.Instructions,
		Status:       model.TaskPending,
		MaxRetries:   maxRetries,
		Timeout:      timeout,
		Seq:          c.taskSeq,
		CreatedAt:    c.now(),
	}
	if err := c.graph.Add(task); err != nil {
		return nil, err
	}
	obj.TaskIDs = append(obj.TaskIDs, task.ID)
	obj.Progress.Total++

	c.bus.Publish(events.TopicTask, events.TaskCreatedEvent{
		ID:          task.ID,
		ObjectiveID: objectiveID,
		Name:        task.Name,
		Type:        task.Type,
		Priority:    task.Priority,
		DependsOn:   append([]string(nil), task.DependsOn...),
		Timestamp:   c.now(),
	})

	return task.Clone(), nil
}

// RegisterAgent adds an idle agent to the pool, immediately eligible for
// scheduling on the next pass.
func (c *Coordinator) RegisterAgent(name, agentType string, capabilities []string) (*model.Agent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStopped {
		return nil, errors.NewInvalidState("register agent", "coordinator stopped", errors.ErrCoordinatorStopped)
	}
	if len(c.agents) >= c.cfg.Limits.MaxAgents {
		return nil, errors.NewCapacity("agents", c.cfg.Limits.MaxAgents)
	}

	now := c.now()
	c.agentSeq++
	agent := &model.Agent{
		ID:            model.NewID("agent"),
		Name:          name,
		Type:          agentType,
		Status:        model.AgentIdle,
		Capabilities:  append([]string(nil), capabilities...),
		Weight:        0.5,
		Seq:           c.agentSeq,
		RegisteredAt:  now,
		LastHeartbeat: now,
	}
	c.agents[agent.ID] = agent

	c.bus.Publish(events.TopicAgent, events.AgentRegisteredEvent{
		ID:           agent.ID,
		Name:         agent.Name,
		Type:         agent.Type,
		Capabilities: append([]string(nil), agent.Capabilities...),
		Timestamp:    now,
	})
	c.log.Info("agent registered",
		"agent_id", agent.ID,
		"name", name,
		"capabilities", capabilities)

	return agent.Clone(), nil
}

// Heartbeat records liveness for an agent. An offline agent stays offline;
// reinstatement is an explicit operation.
func (c *Coordinator) Heartbeat(agentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	agent, ok := c.agents[agentID]
	if !ok {
		return errors.NewNotFound("agent", agentID)
	}
	agent.LastHeartbeat = c.now()

	c.bus.Publish(events.TopicAgent, events.AgentHeartbeatEvent{
		ID:        agentID,
		Timestamp: agent.LastHeartbeat,
	})
	return nil
}

// SetAgentOffline quarantines an agent. Its running task is returned to
// pending without consuming an attempt, and its queue is reclaimed.
func (c *Coordinator) SetAgentOffline(agentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	agent, ok := c.agents[agentID]
	if !ok {
		return errors.NewNotFound("agent", agentID)
	}
	if agent.Status == model.AgentOffline {
		return nil
	}

	if agent.CurrentTaskID != "" {
		if task, exists := c.graph.Get(agent.CurrentTaskID); exists && task.Status == model.TaskRunning {
			c.requeueLocked(task, agent, "agent taken offline")
		}
		if cancel := c.cancels[agent.CurrentTaskID]; cancel != nil {
			cancel()
		}
		agent.CurrentTaskID = ""
	}
	c.reclaimQueueLocked(agent, "agent taken offline")

	agent.Status = model.AgentOffline
	agent.RecalcWorkload()

	c.bus.Publish(events.TopicAgent, events.AgentOfflineEvent{
		ID:        agentID,
		Reason:    "operator",
		Timestamp: c.now(),
	})
	c.log.Warn("agent taken offline", "agent_id", agentID, "reason", "operator")
	return nil
}

// SetAgentOnline reinstates a quarantined agent.
func (c *Coordinator) SetAgentOnline(agentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	agent, ok := c.agents[agentID]
	if !ok {
		return errors.NewNotFound("agent", agentID)
	}
	if agent.Status == model.AgentIdle || agent.Status == model.AgentBusy {
		return nil
	}

	agent.Status = model.AgentIdle
	agent.LastHeartbeat = c.now()

	c.bus.Publish(events.TopicAgent, events.AgentOnlineEvent{
		ID:        agentID,
		Timestamp: agent.LastHeartbeat,
	})
	c.log.Info("agent reinstated", "agent_id", agentID)
	return nil
}

// CancelTask cancels a task. Running work is interrupted through the
// executor's cancellation contract. Cancelling an already cancelled task is
// a no-op; cancelling a completed or failed task is an error.
func (c *Coordinator) CancelTask(taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, ok := c.graph.Get(taskID)
	if !ok {
		return errors.NewNotFound("task", taskID)
	}

	switch task.Status {
	case model.TaskCancelled:
		return nil
	case model.TaskCompleted, model.TaskFailed:
		return errors.NewInvalidState("cancel task", fmt.Sprintf("task %s is %s", taskID, task.Status), errors.ErrTaskTerminal)
	}

	c.cancelTaskLocked(task, "cancelled by request")
	c.cascadeCancelLocked(task.ID, fmt.Sprintf("dependency %s cancelled", task.ID))
	c.updateObjectiveLocked(task.ObjectiveID)
	return nil
}

// GetObjective returns a copy of the objective.
func (c *Coordinator) GetObjective(objectiveID string) (*model.Objective, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.objectives[objectiveID]
	if !ok {
		return nil, errors.NewNotFound("objective", objectiveID)
	}
	return obj.Clone(), nil
}

// GetTask returns a copy of the task.
func (c *Coordinator) GetTask(taskID string) (*model.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, ok := c.graph.Get(taskID)
	if !ok {
		return nil, errors.NewNotFound("task", taskID)
	}
	return task.Clone(), nil
}

// GetAgent returns a copy of the agent.
func (c *Coordinator) GetAgent(agentID string) (*model.Agent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	agent, ok := c.agents[agentID]
	if !ok {
		return nil, errors.NewNotFound("agent", agentID)
	}
	return agent.Clone(), nil
}

// Objectives returns copies of every objective.
func (c *Coordinator) Objectives() []*model.Objective {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*model.Objective, 0, len(c.objectives))
	for _, obj := range c.objectives {
		out = append(out, obj.Clone())
	}
	return out
}

// Tasks returns copies of every task.
func (c *Coordinator) Tasks() []*model.Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*model.Task, 0, c.graph.Len())
	for _, t := range c.graph.All() {
		out = append(out, t.Clone())
	}
	return out
}

// Agents returns copies of every agent.
func (c *Coordinator) Agents() []*model.Agent {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*model.Agent, 0, len(c.agents))
	for _, a := range c.agents {
		out = append(out, a.Clone())
	}
	return out
}

// Status is a point-in-time snapshot of system counts.
type Status struct {
	State         State                               `json:"state"`
	Uptime        time.Duration                       `json:"uptime"`
	Objectives    map[model.ObjectiveStatus]int       `json:"objectives"`
	Tasks         map[model.TaskStatus]int            `json:"tasks"`
	Agents        map[model.AgentStatus]int           `json:"agents"`
	TypeStats     map[model.TaskType]*model.TypeStats `json:"type_stats,omitempty"`
	EventsDropped int64                               `json:"events_dropped"`
}

// GetStatus returns current counts by state. It never blocks on in-flight
// work; map mutations are short and the lock is held only to count.
func (c *Coordinator) GetStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		State:         c.state,
		Objectives:    make(map[model.ObjectiveStatus]int),
		Tasks:         make(map[model.TaskStatus]int),
		Agents:        make(map[model.AgentStatus]int),
		EventsDropped: c.bus.Dropped(),
	}
	switch c.state {
	case StateExecuting:
		s.Uptime = c.now().Sub(c.startedAt)
	case StateStopped:
		if !c.startedAt.IsZero() {
			s.Uptime = c.stoppedAt.Sub(c.startedAt)
		}
	}

	for _, obj := range c.objectives {
		s.Objectives[obj.Status]++
	}
	for _, t := range c.graph.All() {
		s.Tasks[t.Status]++
	}
	for _, a := range c.agents {
		s.Agents[a.Status]++
	}
	if len(c.typeStats) > 0 {
		s.TypeStats = make(map[model.TaskType]*model.TypeStats, len(c.typeStats))
		for t, stats := range c.typeStats {
			s.TypeStats[t] = stats.Clone()
		}
	}
	return s
}

// Start launches the background loops: scheduling, health, and a combined
// balance/sync loop. The loops stop when ctx is cancelled or Stop is called.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateExecuting:
		return errors.NewInvalidState("start", "already running", errors.ErrCoordinatorRunning)
	case StateStopped:
		return errors.NewInvalidState("start", "coordinator stopped", errors.ErrCoordinatorStopped)
	}

	c.runCtx, c.stopRun = context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(c.runCtx)
	c.loops = group
	c.state = StateExecuting
	c.startedAt = c.now()

	group.Go(func() error { return c.runLoop(gctx, c.cfg.Scheduling.Interval, c.schedulePass) })
	group.Go(func() error { return c.runLoop(gctx, c.cfg.Health.Interval, c.healthPass) })
	group.Go(func() error { return c.runLoop(gctx, c.cfg.Balancer.Interval, c.syncPass) })

	c.bus.Publish(events.TopicSystem, events.StartedEvent{Timestamp: c.startedAt})
	c.log.Info("coordinator started",
		"strategy", c.strat.Name(),
		"scheduling_interval", c.cfg.Scheduling.Interval,
		"health_interval", c.cfg.Health.Interval)
	return nil
}

// runLoop ticks fn until the context is cancelled. Tickers are owned by the
// loop, so Stop leaves nothing dangling.
func (c *Coordinator) runLoop(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// Stop halts the loops, cancels in-flight executions, and rejects queued
// work with an explicit cancellation error. Idempotent; never hangs on a
// well-behaved executor, and even a stuck executor cannot block it.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return nil
	}
	wasRunning := c.state == StateExecuting
	c.state = StateStopped
	c.stoppedAt = c.now()

	// Queued and running work is resolved before the loops die so no task is
	// left mid-flight. Dispatch goroutines observe the transition and drop
	// their late results.
	for _, task := range c.graph.All() {
		switch task.Status {
		case model.TaskAssigned, model.TaskRunning:
			c.cancelTaskLocked(task, "coordinator stopped")
		}
	}
	for _, obj := range c.objectives {
		c.updateObjectiveLocked(obj.ID)
	}
	if c.stopRun != nil {
		c.stopRun()
	}
	loops := c.loops
	c.mu.Unlock()

	if wasRunning && loops != nil {
		_ = loops.Wait()
		c.inflight.Wait()
	}

	if c.snaps != nil {
		if err := c.saveSnapshot(ctx); err != nil {
			c.log.Warn("final snapshot failed", "error", err)
		}
	}

	c.bus.Publish(events.TopicSystem, events.StoppedEvent{Timestamp: c.stoppedAt})
	c.log.Info("coordinator stopped")
	c.bus.Close()
	return nil
}
