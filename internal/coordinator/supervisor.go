package coordinator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/mlanders/swarmd/internal/errors"
	"github.com/mlanders/swarmd/internal/events"
	"github.com/mlanders/swarmd/internal/model"
)

// schedulePass runs one assignment cycle: surface broken dependencies,
// promote queued work, then greedily pair ready tasks with idle agents in
// priority-then-admission order.
func (c *Coordinator) schedulePass(ctx context.Context) {
	passStart := time.Now()

	c.mu.Lock()
	if c.state != StateExecuting {
		c.mu.Unlock()
		return
	}
	now := c.now()

	ready, broken := c.graph.Ready()
	for _, b := range broken {
		c.failBrokenLocked(b.TaskID, b.DepID)
	}

	// Queued tasks left over from recovery or stealing start before new
	// assignments claim the agent.
	for _, agent := range c.agents {
		if agent.Status == model.AgentIdle && agent.CurrentTaskID == "" && len(agent.Queue) > 0 {
			c.promoteLocked(agent)
		}
	}

	eligible := make([]*model.Task, 0, len(ready))
	for _, t := range ready {
		if t.NextAttemptAt.IsZero() || !now.Before(t.NextAttemptAt) {
			eligible = append(eligible, t)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		ri, rj := eligible[i].Priority.Rank(), eligible[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return eligible[i].Seq < eligible[j].Seq
	})

	active := 0
	for _, t := range c.graph.All() {
		if t.Status == model.TaskAssigned || t.Status == model.TaskRunning {
			active++
		}
	}
	budget := c.cfg.Limits.MaxConcurrentTasks - active

	candidates := c.candidatesLocked()
	sctx := c.schedulingContextLocked(now)

	assigned := 0
	for _, task := range eligible {
		if budget <= 0 || len(candidates) == 0 {
			break
		}
		agentID, ok := c.strat.SelectAgent(task, candidates, sctx)
		if !ok {
			continue
		}
		agent := c.agents[agentID]
		if agent == nil || agent.Status != model.AgentIdle {
			continue
		}

		c.assignLocked(task, agent)
		c.promoteLocked(agent)
		assigned++
		budget--

		next := candidates[:0]
		for _, a := range candidates {
			if a.ID != agentID {
				next = append(next, a)
			}
		}
		candidates = next
	}

	c.metrics.ReadyBacklog.Set(float64(len(eligible) - assigned))
	c.refreshGaugesLocked()
	c.mu.Unlock()

	c.metrics.PassDuration.Observe(time.Since(passStart).Seconds())
}

// candidatesLocked returns agents eligible to receive an assignment: idle,
// no queued work, and circuit breaker not open. A half-open breaker stays in
// the pool so its single trial can happen.
func (c *Coordinator) candidatesLocked() []*model.Agent {
	out := make([]*model.Agent, 0, len(c.agents))
	for _, a := range c.agents {
		if a.Status != model.AgentIdle || a.CurrentTaskID != "" || len(a.Queue) > 0 {
			continue
		}
		if c.breakers.open(a.ID) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// schedulingContextLocked builds the read-only view strategies score with.
func (c *Coordinator) schedulingContextLocked(now time.Time) *model.SchedulingContext {
	loads := make(map[string]float64, len(c.agents))
	weights := make(map[string]float64, len(c.agents))
	for id, a := range c.agents {
		load := float64(a.Workload) / c.cfg.Balancer.AgentCapacity
		if load > 1 {
			load = 1
		}
		loads[id] = load
		weights[id] = a.Weight
	}
	return &model.SchedulingContext{
		Loads:     loads,
		Weights:   weights,
		TypeStats: c.typeStats,
		Now:       now,
	}
}

// assignLocked pairs a ready task with an idle agent. Task, agent, and load
// move together under the lock, so no observer sees a half-assigned state.
func (c *Coordinator) assignLocked(task *model.Task, agent *model.Agent) {
	now := c.now()
	task.Status = model.TaskAssigned
	task.AgentID = agent.ID
	task.AssignedAt = &now
	task.NextAttemptAt = time.Time{}
	agent.Enqueue(task.ID)

	c.bus.Publish(events.TopicTask, events.TaskAssignedEvent{
		ID:        task.ID,
		AgentID:   agent.ID,
		Attempt:   task.Attempts + 1,
		Timestamp: now,
	})
	c.metrics.Assignments.WithLabelValues(c.strat.Name()).Inc()

	if obj, ok := c.objectives[task.ObjectiveID]; ok && obj.Status == model.ObjectivePlanning {
		obj.Status = model.ObjectiveExecuting
		obj.StartedAt = &now
		c.bus.Publish(events.TopicObjective, events.ObjectiveStartedEvent{ID: obj.ID, Timestamp: now})
	}
}

// promoteLocked starts the head of the agent's queue and hands it to a
// dispatch goroutine. Stale queue entries are dropped.
func (c *Coordinator) promoteLocked(agent *model.Agent) {
	for len(agent.Queue) > 0 && agent.CurrentTaskID == "" {
		taskID := agent.Queue[0]
		agent.Dequeue(taskID)

		task, ok := c.graph.Get(taskID)
		if !ok || task.Status != model.TaskAssigned || task.AgentID != agent.ID {
			continue
		}

		now := c.now()
		task.Status = model.TaskRunning
		task.StartedAt = &now
		agent.CurrentTaskID = task.ID
		agent.Status = model.AgentBusy
		agent.RecalcWorkload()

		c.bus.Publish(events.TopicTask, events.TaskStartedEvent{
			ID:        task.ID,
			AgentID:   agent.ID,
			Attempt:   task.Attempts + 1,
			Timestamp: now,
		})
		c.log.Debug("task dispatched",
			"task_id", task.ID,
			"agent_id", agent.ID,
			"attempt", task.Attempts+1)
		c.updateObjectiveLocked(task.ObjectiveID)

		c.inflight.Add(1)
		go c.dispatch(c.runCtx, task.Clone(), agent.ID)
	}
}

// dispatch runs one execution attempt outside the lock. The supervisor owns
// the deadline: when it fires, the attempt is failed here even if the
// executor never returns.
func (c *Coordinator) dispatch(runCtx context.Context, task *model.Task, agentID string) {
	defer c.inflight.Done()

	ctx, cancel := context.WithTimeout(runCtx, task.Timeout)
	defer cancel()

	c.mu.Lock()
	c.cancels[task.ID] = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.cancels, task.ID)
		c.mu.Unlock()
	}()

	type outcome struct {
		result *model.Result
		err    error
	}
	start := time.Now()
	done := make(chan outcome, 1)

	cb := c.breakers.get(agentID)
	go func() {
		v, err := cb.Execute(func() (interface{}, error) {
			res, execErr := c.exec.Execute(ctx, task)
			if execErr != nil {
				return nil, execErr
			}
			return res, nil
		})
		if err != nil {
			done <- outcome{err: err}
			return
		}
		done <- outcome{result: v.(*model.Result)}
	}()

	select {
	case out := <-done:
		elapsed := time.Since(start)
		switch {
		case out.err == nil:
			c.completeTask(task.ID, agentID, out.result, elapsed)
		case errors.Is(out.err, gobreaker.ErrOpenState) || errors.Is(out.err, gobreaker.ErrTooManyRequests):
			c.requeueTask(task.ID, agentID, "circuit breaker rejected dispatch")
		case ctx.Err() != nil:
			c.resolveInterrupted(ctx, task, agentID)
		default:
			c.failAttempt(task.ID, agentID, errors.NewExecution(task.ID, agentID, out.err))
		}
	case <-ctx.Done():
		c.resolveInterrupted(ctx, task, agentID)
	}
}

// resolveInterrupted classifies a dead dispatch context: deadline expiry is
// a timeout failure, everything else was already resolved by whoever
// cancelled the context.
func (c *Coordinator) resolveInterrupted(ctx context.Context, task *model.Task, agentID string) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.failAttempt(task.ID, agentID, errors.NewTimeout(task.ID, task.Timeout))
		return
	}
	// Covers the caller's Start context dying without a Stop call.
	c.abandonDispatch(task.ID, agentID)
}

// ownsLocked reports whether a dispatch outcome still applies: the task must
// be running on the same agent. Anything else means a canceller or the
// health monitor resolved the task first and the late outcome is dropped.
func (c *Coordinator) ownsLocked(taskID, agentID string) (*model.Task, *model.Agent, bool) {
	task, ok := c.graph.Get(taskID)
	if !ok || task.Status != model.TaskRunning || task.AgentID != agentID {
		return nil, nil, false
	}
	return task, c.agents[agentID], true
}

// releaseAgentLocked clears the agent's running slot. Offline and errored
// agents keep their quarantine status.
func (c *Coordinator) releaseAgentLocked(agent *model.Agent) {
	if agent == nil {
		return
	}
	agent.CurrentTaskID = ""
	if agent.Status == model.AgentBusy {
		agent.Status = model.AgentIdle
	}
	agent.RecalcWorkload()
}

// completeTask finalizes a successful attempt.
func (c *Coordinator) completeTask(taskID, agentID string, result *model.Result, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, agent, ok := c.ownsLocked(taskID, agentID)
	if !ok {
		return
	}

	now := c.now()
	if result == nil {
		result = &model.Result{}
	}
	result.AgentID = agentID
	if result.Duration == 0 {
		result.Duration = elapsed
	}
	if result.FinishedAt.IsZero() {
		result.FinishedAt = now
	}

	task.Status = model.TaskCompleted
	task.Result = result
	task.Error = ""
	task.CompletedAt = &now
	delete(c.retries, taskID)

	c.releaseAgentLocked(agent)
	if agent != nil {
		agent.Stats.RecordSuccess(elapsed)
	}
	c.recordTypeSuccessLocked(task.Type, agentID, elapsed)

	c.bus.Publish(events.TopicTask, events.TaskCompletedEvent{
		ID:        taskID,
		AgentID:   agentID,
		Duration:  elapsed,
		Timestamp: now,
	})
	c.metrics.TaskOutcomes.WithLabelValues("completed").Inc()
	c.metrics.TaskDuration.WithLabelValues(string(task.Type)).Observe(elapsed.Seconds())
	c.log.Info("task completed",
		"task_id", taskID,
		"agent_id", agentID,
		"duration", elapsed)

	c.updateObjectiveLocked(task.ObjectiveID)
}

// failAttempt handles one failed attempt: retry with backoff while attempts
// remain, otherwise fail permanently and cascade-cancel dependents.
func (c *Coordinator) failAttempt(taskID, agentID string, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, agent, ok := c.ownsLocked(taskID, agentID)
	if !ok {
		return
	}
	c.failAttemptLocked(task, agent, cause)
}

func (c *Coordinator) failAttemptLocked(task *model.Task, agent *model.Agent, cause error) {
	now := c.now()
	task.Attempts++
	task.Error = cause.Error()

	c.releaseAgentLocked(agent)
	if agent != nil {
		agent.Stats.RecordFailure()
	}
	c.recordTypeFailureLocked(task.Type)

	if task.Attempts < task.MaxRetries && errors.IsRetryable(cause) {
		delay := c.nextRetryDelayLocked(task.ID)
		task.Status = model.TaskPending
		task.AgentID = ""
		task.AssignedAt = nil
		task.StartedAt = nil
		task.NextAttemptAt = now.Add(delay)

		c.bus.Publish(events.TopicTask, events.TaskRetriedEvent{
			ID:        task.ID,
			Attempt:   task.Attempts,
			Delay:     delay,
			Err:       cause.Error(),
			Timestamp: now,
		})
		c.metrics.TaskRetries.Inc()
		c.log.Warn("task attempt failed, will retry",
			"task_id", task.ID,
			"attempt", task.Attempts,
			"max_retries", task.MaxRetries,
			"delay", delay,
			"error", cause)
		c.updateObjectiveLocked(task.ObjectiveID)
		return
	}

	task.Status = model.TaskFailed
	task.CompletedAt = &now
	delete(c.retries, task.ID)

	c.bus.Publish(events.TopicTask, events.TaskFailedEvent{
		ID:        task.ID,
		AgentID:   task.AgentID,
		Attempts:  task.Attempts,
		Err:       cause.Error(),
		Timestamp: now,
	})
	c.metrics.TaskOutcomes.WithLabelValues("failed").Inc()
	c.log.Error("task failed permanently",
		"task_id", task.ID,
		"attempts", task.Attempts,
		"error", cause)

	c.cascadeCancelLocked(task.ID, fmt.Sprintf("dependency %s failed permanently", task.ID))
	c.updateObjectiveLocked(task.ObjectiveID)
}

// failBrokenLocked permanently fails a task whose dependency references no
// known task. Structural, so no retry is attempted.
func (c *Coordinator) failBrokenLocked(taskID, depID string) {
	task, ok := c.graph.Get(taskID)
	if !ok || task.Status.Terminal() {
		return
	}

	now := c.now()
	cause := errors.NewDependency(taskID,
		fmt.Sprintf("depends on nonexistent task %q", depID),
		errors.ErrMissingDependency)

	task.Status = model.TaskFailed
	task.Error = cause.Error()
	task.CompletedAt = &now
	delete(c.retries, taskID)

	c.bus.Publish(events.TopicTask, events.TaskFailedEvent{
		ID:        taskID,
		Attempts:  task.Attempts,
		Err:       cause.Error(),
		Timestamp: now,
	})
	c.metrics.TaskOutcomes.WithLabelValues("failed").Inc()
	c.log.Error("task has missing dependency", "task_id", taskID, "dependency", depID)

	c.cascadeCancelLocked(taskID, fmt.Sprintf("dependency %s failed permanently", taskID))
	c.updateObjectiveLocked(task.ObjectiveID)
}

// requeueTask returns a task to pending without consuming an attempt, used
// when dispatch was rejected before any work happened.
func (c *Coordinator) requeueTask(taskID, agentID, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, agent, ok := c.ownsLocked(taskID, agentID)
	if !ok {
		return
	}
	c.requeueLocked(task, agent, reason)
	c.releaseAgentLocked(agent)
}

// requeueLocked resets a task to pending, keeping its attempt count.
func (c *Coordinator) requeueLocked(task *model.Task, agent *model.Agent, reason string) {
	agentID := ""
	if agent != nil {
		agentID = agent.ID
	}

	task.Status = model.TaskPending
	task.AgentID = ""
	task.AssignedAt = nil
	task.StartedAt = nil
	task.NextAttemptAt = time.Time{}

	c.bus.Publish(events.TopicTask, events.TaskRequeuedEvent{
		ID:        task.ID,
		AgentID:   agentID,
		Reason:    reason,
		Timestamp: c.now(),
	})
	c.log.Debug("task requeued", "task_id", task.ID, "agent_id", agentID, "reason", reason)
	c.updateObjectiveLocked(task.ObjectiveID)
}

// abandonDispatch resolves a dispatch whose context died without a deadline:
// if nobody else transitioned the task, it is cancelled here.
func (c *Coordinator) abandonDispatch(taskID, agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, _, ok := c.ownsLocked(taskID, agentID)
	if !ok {
		return
	}
	c.cancelTaskLocked(task, "execution context cancelled")
	c.updateObjectiveLocked(task.ObjectiveID)
}

// cancelTaskLocked transitions a non-terminal task to cancelled and releases
// whatever agent holds it. Safe to call for any non-terminal status.
func (c *Coordinator) cancelTaskLocked(task *model.Task, reason string) {
	if task.Status.Terminal() {
		return
	}

	if task.AgentID != "" {
		if agent := c.agents[task.AgentID]; agent != nil {
			switch task.Status {
			case model.TaskAssigned:
				agent.Dequeue(task.ID)
			case model.TaskRunning:
				if cancel := c.cancels[task.ID]; cancel != nil {
					cancel()
				}
				if agent.CurrentTaskID == task.ID {
					c.releaseAgentLocked(agent)
				}
			}
		}
	}

	now := c.now()
	task.Status = model.TaskCancelled
	task.AgentID = ""
	task.Error = reason
	task.CompletedAt = &now
	delete(c.retries, task.ID)

	c.bus.Publish(events.TopicTask, events.TaskCancelledEvent{
		ID:        task.ID,
		Reason:    reason,
		Timestamp: now,
	})
	c.metrics.TaskOutcomes.WithLabelValues("cancelled").Inc()
}

// cascadeCancelLocked cancels every transitive dependent of a dead task.
// Dependents can never be running, since their dependency never completed.
func (c *Coordinator) cascadeCancelLocked(rootID, reason string) {
	touched := make(map[string]bool)
	for _, depID := range c.graph.TransitiveDependents(rootID) {
		task, ok := c.graph.Get(depID)
		if !ok || task.Status.Terminal() {
			continue
		}
		c.cancelTaskLocked(task, reason)
		touched[task.ObjectiveID] = true
	}
	for objID := range touched {
		c.updateObjectiveLocked(objID)
	}
}

// nextRetryDelayLocked advances the task's exponential backoff policy.
func (c *Coordinator) nextRetryDelayLocked(taskID string) time.Duration {
	bo, ok := c.retries[taskID]
	if !ok {
		bo = backoff.NewExponentialBackOff()
		bo.InitialInterval = c.cfg.Retry.Base
		bo.Multiplier = c.cfg.Retry.Multiplier
		bo.MaxInterval = c.cfg.Retry.MaxDelay
		bo.MaxElapsedTime = 0
		bo.RandomizationFactor = 0
		bo.Reset()
		c.retries[taskID] = bo
	}
	return bo.NextBackOff()
}

// recordTypeSuccessLocked folds a success into the per-type rolling stats.
func (c *Coordinator) recordTypeSuccessLocked(t model.TaskType, agentID string, d time.Duration) {
	stats, ok := c.typeStats[t]
	if !ok {
		stats = &model.TypeStats{}
		c.typeStats[t] = stats
	}
	stats.RecordSuccess(agentID, d)
}

func (c *Coordinator) recordTypeFailureLocked(t model.TaskType) {
	stats, ok := c.typeStats[t]
	if !ok {
		stats = &model.TypeStats{}
		c.typeStats[t] = stats
	}
	stats.RecordFailure()
}

// updateObjectiveLocked recomputes progress and resolves terminal status.
// An objective completes only when every owned task completed; any failure
// or cancellation makes it failed once all tasks are terminal.
func (c *Coordinator) updateObjectiveLocked(objectiveID string) {
	obj, ok := c.objectives[objectiveID]
	if !ok || obj.Status.Terminal() {
		return
	}

	var progress model.Progress
	progress.Total = len(obj.TaskIDs)
	terminal := 0
	var failures, cancellations []string
	for _, taskID := range obj.TaskIDs {
		task, exists := c.graph.Get(taskID)
		if !exists {
			continue
		}
		switch task.Status {
		case model.TaskRunning:
			progress.Running++
		case model.TaskCompleted:
			progress.Completed++
			terminal++
		case model.TaskFailed:
			progress.Failed++
			terminal++
			failures = append(failures, fmt.Sprintf("%s: %s", taskID, task.Error))
		case model.TaskCancelled:
			progress.Cancelled++
			terminal++
			cancellations = append(cancellations, taskID)
		}
	}
	obj.Progress = progress

	if terminal < progress.Total || progress.Total == 0 {
		return
	}

	now := c.now()
	obj.CompletedAt = &now
	if progress.Completed == progress.Total {
		obj.Status = model.ObjectiveCompleted
		started := obj.CreatedAt
		if obj.StartedAt != nil {
			started = *obj.StartedAt
		}
		c.bus.Publish(events.TopicObjective, events.ObjectiveCompletedEvent{
			ID:        obj.ID,
			Progress:  progress,
			Duration:  now.Sub(started),
			Timestamp: now,
		})
		c.log.Info("objective completed", "objective_id", obj.ID, "tasks", progress.Total)
		return
	}

	obj.Status = model.ObjectiveFailed
	var reason strings.Builder
	if len(failures) > 0 {
		reason.WriteString("failed: ")
		reason.WriteString(strings.Join(failures, "; "))
	}
	if len(cancellations) > 0 {
		if reason.Len() > 0 {
			reason.WriteString("; ")
		}
		reason.WriteString("cancelled: ")
		reason.WriteString(strings.Join(cancellations, ", "))
	}
	c.bus.Publish(events.TopicObjective, events.ObjectiveFailedEvent{
		ID:        obj.ID,
		Progress:  progress,
		Reason:    reason.String(),
		Timestamp: now,
	})
	c.log.Error("objective failed", "objective_id", obj.ID, "reason", reason.String())
}

// refreshGaugesLocked publishes current status counts to the metrics.
func (c *Coordinator) refreshGaugesLocked() {
	taskCounts := map[model.TaskStatus]int{
		model.TaskPending: 0, model.TaskAssigned: 0, model.TaskRunning: 0,
		model.TaskCompleted: 0, model.TaskFailed: 0, model.TaskCancelled: 0,
	}
	for _, t := range c.graph.All() {
		taskCounts[t.Status]++
	}
	for status, n := range taskCounts {
		c.metrics.TasksByStatus.WithLabelValues(string(status)).Set(float64(n))
	}

	agentCounts := map[model.AgentStatus]int{
		model.AgentIdle: 0, model.AgentBusy: 0, model.AgentOffline: 0, model.AgentError: 0,
	}
	for _, a := range c.agents {
		agentCounts[a.Status]++
	}
	for status, n := range agentCounts {
		c.metrics.AgentsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}

	c.metrics.EventsDropped.Set(float64(c.bus.Dropped()))
}
