package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/mlanders/swarmd/internal/errors"
	"github.com/mlanders/swarmd/internal/graph"
	"github.com/mlanders/swarmd/internal/model"
)

// snapshot is the serialized coordinator state written to the store. Only
// that it round-trips matters; the schema is private to this package.
type snapshot struct {
	SavedAt    time.Time                           `json:"saved_at"`
	Objectives []*model.Objective                  `json:"objectives"`
	Tasks      []*model.Task                       `json:"tasks"`
	Agents     []*model.Agent                      `json:"agents"`
	TypeStats  map[model.TaskType]*model.TypeStats `json:"type_stats,omitempty"`
}

func (c *Coordinator) snapshotKey() string {
	return c.cfg.Store.Namespace + "/state"
}

// snapshotDueLocked reports whether the periodic snapshot interval elapsed.
func (c *Coordinator) snapshotDueLocked() bool {
	return c.now().Sub(c.lastSnap) >= c.cfg.Store.Interval
}

// saveSnapshot serializes current state and writes it to the store. The
// state is cloned under the lock; marshalling and the write happen outside.
func (c *Coordinator) saveSnapshot(ctx context.Context) error {
	if c.snaps == nil {
		return nil
	}

	c.mu.Lock()
	snap := snapshot{
		SavedAt:    c.now(),
		Objectives: make([]*model.Objective, 0, len(c.objectives)),
		Tasks:      make([]*model.Task, 0, c.graph.Len()),
		Agents:     make([]*model.Agent, 0, len(c.agents)),
		TypeStats:  make(map[model.TaskType]*model.TypeStats, len(c.typeStats)),
	}
	for _, obj := range c.objectives {
		snap.Objectives = append(snap.Objectives, obj.Clone())
	}
	for _, t := range c.graph.All() {
		snap.Tasks = append(snap.Tasks, t.Clone())
	}
	for _, a := range c.agents {
		snap.Agents = append(snap.Agents, a.Clone())
	}
	for t, stats := range c.typeStats {
		snap.TypeStats[t] = stats.Clone()
	}
	c.lastSnap = snap.SavedAt
	c.mu.Unlock()

	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return c.snaps.Save(ctx, c.snapshotKey(), blob)
}

// LoadSnapshot restores state saved by a previous run. Tasks caught running
// at save time lost their execution and return to pending without consuming
// an attempt; queued assignments survive and resume on the first pass.
// Only valid before Start.
func (c *Coordinator) LoadSnapshot(ctx context.Context) error {
	if c.snaps == nil {
		return errors.NewInvalidState("load snapshot", "no snapshot store configured", nil)
	}

	blob, err := c.snaps.Load(ctx, c.snapshotKey())
	if err != nil {
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateNotStarted {
		return errors.NewInvalidState("load snapshot", fmt.Sprintf("coordinator is %s", c.state), nil)
	}

	if err := c.restoreLocked(&snap); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	c.log.Info("snapshot restored",
		"saved_at", snap.SavedAt,
		"objectives", len(snap.Objectives),
		"tasks", len(snap.Tasks),
		"agents", len(snap.Agents))
	return nil
}

func (c *Coordinator) restoreLocked(snap *snapshot) error {
	c.objectives = make(map[string]*model.Objective, len(snap.Objectives))
	for _, obj := range snap.Objectives {
		c.objectives[obj.ID] = obj
	}

	c.graph = graph.New()
	c.taskSeq = 0
	for _, t := range snap.Tasks {
		if t.Seq > c.taskSeq {
			c.taskSeq = t.Seq
		}
		// An interrupted execution is lost work, not a failed attempt.
		if t.Status == model.TaskRunning {
			t.Status = model.TaskPending
			t.AgentID = ""
			t.StartedAt = nil
			t.AssignedAt = nil
			t.NextAttemptAt = time.Time{}
		}
		if err := c.graph.Add(t); err != nil {
			return err
		}
	}

	c.agents = make(map[string]*model.Agent, len(snap.Agents))
	c.agentSeq = 0
	for _, a := range snap.Agents {
		if a.Seq > c.agentSeq {
			c.agentSeq = a.Seq
		}
		a.CurrentTaskID = ""
		if a.Status == model.AgentBusy {
			a.Status = model.AgentIdle
		}
		// Keep only queue entries that still reference live assignments.
		queue := a.Queue[:0]
		for _, taskID := range a.Queue {
			task, ok := c.graph.Get(taskID)
			if ok && task.Status == model.TaskAssigned && task.AgentID == a.ID {
				queue = append(queue, taskID)
			}
		}
		a.Queue = queue
		a.RecalcWorkload()
		c.agents[a.ID] = a
	}

	// Assigned tasks whose agent vanished or dropped them go back to pending.
	for _, t := range c.graph.All() {
		if t.Status != model.TaskAssigned {
			continue
		}
		agent := c.agents[t.AgentID]
		if agent == nil || !slices.Contains(agent.Queue, t.ID) {
			t.Status = model.TaskPending
			t.AgentID = ""
			t.AssignedAt = nil
		}
	}

	if snap.TypeStats != nil {
		c.typeStats = snap.TypeStats
	} else {
		c.typeStats = make(map[model.TaskType]*model.TypeStats)
	}

	// Progress counters reflect save time; the normalization above may have
	// moved tasks, so recount.
	for id := range c.objectives {
		c.updateObjectiveLocked(id)
	}
	return nil
}
