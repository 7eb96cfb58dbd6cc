package coordinator

import (
	"context"
	"sort"

	"github.com/mlanders/swarmd/internal/events"
	"github.com/mlanders/swarmd/internal/model"
)

// syncPass is the third background loop: work stealing, gauge refresh, and
// the periodic snapshot when a store is configured.
func (c *Coordinator) syncPass(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateExecuting {
		c.mu.Unlock()
		return
	}
	c.balanceLocked()
	c.refreshGaugesLocked()
	due := c.snaps != nil && c.snapshotDueLocked()
	c.mu.Unlock()

	if due {
		if err := c.saveSnapshot(ctx); err != nil {
			c.log.Warn("snapshot failed", "error", err)
		}
	}
}

// balanceLocked migrates queued tasks from the most loaded agent to idle
// agents when the load spread exceeds the configured fraction of capacity.
// Running tasks are never moved.
func (c *Coordinator) balanceLocked() {
	online := make([]*model.Agent, 0, len(c.agents))
	for _, a := range c.agents {
		if a.Status == model.AgentIdle || a.Status == model.AgentBusy {
			online = append(online, a)
		}
	}
	if len(online) < 2 {
		return
	}

	threshold := c.cfg.Balancer.SpreadThreshold * c.cfg.Balancer.AgentCapacity

	for {
		sort.Slice(online, func(i, j int) bool {
			if online[i].Workload != online[j].Workload {
				return online[i].Workload < online[j].Workload
			}
			return online[i].Seq < online[j].Seq
		})
		least, most := online[0], online[len(online)-1]

		spread := float64(most.Workload - least.Workload)
		if spread <= threshold {
			return
		}
		if len(most.Queue) == 0 || least.Status != model.AgentIdle {
			return
		}

		// Steal from the queue tail; the head keeps its first-in claim on
		// the overloaded agent.
		taskID := most.Queue[len(most.Queue)-1]
		task, ok := c.graph.Get(taskID)
		if !ok || task.Status != model.TaskAssigned || task.AgentID != most.ID {
			most.Dequeue(taskID)
			continue
		}

		most.Dequeue(taskID)
		least.Enqueue(taskID)
		task.AgentID = least.ID

		c.bus.Publish(events.TopicTask, events.TaskStolenEvent{
			ID:        taskID,
			FromAgent: most.ID,
			ToAgent:   least.ID,
			Timestamp: c.now(),
		})
		c.metrics.TaskSteals.Inc()
		c.log.Info("task stolen",
			"task_id", taskID,
			"from", most.ID,
			"to", least.ID)
	}
}
