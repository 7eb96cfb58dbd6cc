package coordinator

import (
	"context"

	"github.com/mlanders/swarmd/internal/errors"
	"github.com/mlanders/swarmd/internal/events"
	"github.com/mlanders/swarmd/internal/model"
)

// healthPass detects stuck and unresponsive agents. A busy agent whose task
// overran its timeout plus the grace margin is force-failed and
// quarantined; an idle agent with a stale heartbeat goes offline. Either
// way, queued work is returned to pending rather than left orphaned.
func (c *Coordinator) healthPass(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateExecuting {
		return
	}
	now := c.now()

	for _, agent := range c.agents {
		switch agent.Status {
		case model.AgentBusy:
			task, ok := c.graph.Get(agent.CurrentTaskID)
			if !ok || task.Status != model.TaskRunning {
				// The running slot points at nothing live; clear it.
				c.releaseAgentLocked(agent)
				continue
			}
			if task.StartedAt == nil {
				continue
			}
			overdue := now.Sub(*task.StartedAt) > task.Timeout+c.cfg.Health.Grace
			if !overdue {
				continue
			}

			c.log.Warn("agent stuck on task, quarantining",
				"agent_id", agent.ID,
				"task_id", task.ID,
				"running_for", now.Sub(*task.StartedAt))

			if cancel := c.cancels[task.ID]; cancel != nil {
				cancel()
			}
			c.failAttemptLocked(task, agent, errors.NewTimeout(task.ID, task.Timeout))
			c.quarantineLocked(agent, "stuck")
			c.metrics.AgentsQuarantined.Inc()

		case model.AgentIdle:
			if now.Sub(agent.LastHeartbeat) <= c.cfg.Health.HeartbeatTimeout {
				continue
			}
			c.log.Warn("agent heartbeat stale, marking offline",
				"agent_id", agent.ID,
				"last_heartbeat", agent.LastHeartbeat)
			c.quarantineLocked(agent, "heartbeat stale")
		}
	}
}

// quarantineLocked marks an agent offline and reclaims its queued tasks.
// Offline agents receive no work until explicitly reinstated.
func (c *Coordinator) quarantineLocked(agent *model.Agent, reason string) {
	c.reclaimQueueLocked(agent, "agent offline: "+reason)
	agent.Status = model.AgentOffline
	agent.CurrentTaskID = ""
	agent.RecalcWorkload()

	c.bus.Publish(events.TopicAgent, events.AgentOfflineEvent{
		ID:        agent.ID,
		Reason:    reason,
		Timestamp: c.now(),
	})
}

// reclaimQueueLocked returns every queued task to pending so another agent
// can pick it up.
func (c *Coordinator) reclaimQueueLocked(agent *model.Agent, reason string) {
	for _, taskID := range agent.Queue {
		task, ok := c.graph.Get(taskID)
		if !ok || task.Status != model.TaskAssigned || task.AgentID != agent.ID {
			continue
		}
		c.requeueLocked(task, agent, reason)
	}
	agent.Queue = nil
	agent.RecalcWorkload()
}
