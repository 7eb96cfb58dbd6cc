// Package graph maintains the task dependency graph: admission-time
// validation via topological sort, per-pass readiness computation, and the
// reverse dependency index used for cascade cancellation.
//
// The graph performs no locking. The coordinator owns all task state and
// calls the graph while holding its own lock.
package graph

import (
	"fmt"
	"strings"

	"github.com/gammazero/toposort"

	"github.com/mlanders/swarmd/internal/errors"
	"github.com/mlanders/swarmd/internal/model"
)

// Graph indexes tasks by ID and tracks reverse dependencies.
type Graph struct {
	tasks      map[string]*model.Task
	dependents map[string][]string // taskID -> tasks that depend on it
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		tasks:      make(map[string]*model.Task),
		dependents: make(map[string][]string),
	}
}

// Add inserts a task. Returns an error if the task ID already exists.
func (g *Graph) Add(task *model.Task) error {
	if _, exists := g.tasks[task.ID]; exists {
		return errors.NewInvalidState("graph.add", fmt.Sprintf("task %q already exists", task.ID), nil)
	}

	g.tasks[task.ID] = task

	for _, depID := range task.DependsOn {
		g.dependents[depID] = append(g.dependents[depID], task.ID)
	}

	return nil
}

// Get returns the task with the given ID.
func (g *Graph) Get(taskID string) (*model.Task, bool) {
	t, ok := g.tasks[taskID]
	return t, ok
}

// Len returns the number of tasks.
func (g *Graph) Len() int { return len(g.tasks) }

// All returns every task, in no particular order.
func (g *Graph) All() []*model.Task {
	out := make([]*model.Task, 0, len(g.tasks))
	for _, t := range g.tasks {
		out = append(out, t)
	}
	return out
}

// Validate runs a topological sort over the whole graph. It returns the
// sorted task IDs, or an error naming a missing dependency or the presence
// of a cycle. Called at decomposition time so broken graphs are rejected
// before any task is scheduled.
func (g *Graph) Validate() ([]string, error) {
	for taskID, task := range g.tasks {
		for _, depID := range task.DependsOn {
			if _, exists := g.tasks[depID]; !exists {
				return nil, errors.NewDependency(taskID,
					fmt.Sprintf("depends on nonexistent task %q", depID),
					errors.ErrMissingDependency)
			}
		}
	}

	var edges []toposort.Edge
	for taskID, task := range g.tasks {
		if len(task.DependsOn) == 0 {
			// Root task: edge from nil keeps it in the sort result.
			edges = append(edges, toposort.Edge{nil, taskID})
		} else {
			for _, depID := range task.DependsOn {
				// Edge (depID, taskID): depID must come before taskID.
				edges = append(edges, toposort.Edge{depID, taskID})
			}
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, errors.NewDependency("", err.Error(), errors.ErrDependencyCycle)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	// Catches disconnected components the sort silently lost.
	if len(order) != len(g.tasks) {
		missing := []string{}
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		for taskID := range g.tasks {
			if !found[taskID] {
				missing = append(missing, taskID)
			}
		}
		return nil, errors.NewDependency("",
			fmt.Sprintf("topological sort lost %d tasks: %s", len(missing), strings.Join(missing, ", ")),
			errors.ErrDependencyCycle)
	}

	return order, nil
}

// Broken records a pending task whose dependency references no known task.
type Broken struct {
	TaskID string
	DepID  string
}

// Ready returns every pending task whose dependencies all exist and
// completed. Tasks referencing a nonexistent dependency are reported in
// broken instead, never treated as satisfied.
func (g *Graph) Ready() (ready []*model.Task, broken []Broken) {
	for _, task := range g.tasks {
		if task.Status != model.TaskPending {
			continue
		}

		ok := true
		for _, depID := range task.DependsOn {
			dep, exists := g.tasks[depID]
			if !exists {
				broken = append(broken, Broken{TaskID: task.ID, DepID: depID})
				ok = false
				break
			}
			if dep.Status != model.TaskCompleted {
				ok = false
				break
			}
		}

		if ok {
			ready = append(ready, task)
		}
	}

	return ready, broken
}

// Dependents returns the tasks that directly depend on the given task.
func (g *Graph) Dependents(taskID string) []string {
	return append([]string(nil), g.dependents[taskID]...)
}

// TransitiveDependents returns every task downstream of the given task,
// breadth-first, excluding the task itself.
func (g *Graph) TransitiveDependents(taskID string) []string {
	seen := make(map[string]bool)
	var out []string

	queue := append([]string(nil), g.dependents[taskID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		queue = append(queue, g.dependents[id]...)
	}

	return out
}
