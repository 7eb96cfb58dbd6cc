package graph

import (
	"sort"
	"strings"
	"testing"

	"github.com/mlanders/swarmd/internal/errors"
	"github.com/mlanders/swarmd/internal/model"
)

func task(id string, status model.TaskStatus, deps ...string) *model.Task {
	return &model.Task{ID: id, Status: status, DependsOn: deps}
}

// TestValidate tests graph validation with various structures.
func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		setup       func() *Graph
		wantErr     bool
		errContains string
	}{
		{
			name: "valid linear chain",
			setup: func() *Graph {
				g := New()
				g.Add(task("A", model.TaskPending))
				g.Add(task("B", model.TaskPending, "A"))
				g.Add(task("C", model.TaskPending, "B"))
				return g
			},
			wantErr: false,
		},
		{
			name: "valid diamond",
			setup: func() *Graph {
				g := New()
				g.Add(task("A", model.TaskPending))
				g.Add(task("B", model.TaskPending, "A"))
				g.Add(task("C", model.TaskPending, "A"))
				g.Add(task("D", model.TaskPending, "B", "C"))
				return g
			},
			wantErr: false,
		},
		{
			name: "direct cycle",
			setup: func() *Graph {
				g := New()
				g.Add(task("A", model.TaskPending, "B"))
				g.Add(task("B", model.TaskPending, "A"))
				return g
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "transitive cycle",
			setup: func() *Graph {
				g := New()
				g.Add(task("A", model.TaskPending, "B"))
				g.Add(task("B", model.TaskPending, "C"))
				g.Add(task("C", model.TaskPending, "A"))
				return g
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "self-loop",
			setup: func() *Graph {
				g := New()
				g.Add(task("A", model.TaskPending, "A"))
				return g
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "missing dependency",
			setup: func() *Graph {
				g := New()
				g.Add(task("A", model.TaskPending, "nonexistent"))
				return g
			},
			wantErr:     true,
			errContains: "nonexistent",
		},
		{
			name: "disconnected components",
			setup: func() *Graph {
				g := New()
				g.Add(task("A", model.TaskPending))
				g.Add(task("B", model.TaskPending, "A"))
				g.Add(task("C", model.TaskPending))
				g.Add(task("D", model.TaskPending, "C"))
				return g
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := tt.setup()
			order, err := g.Validate()

			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if err != nil && tt.errContains != "" {
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("Error message %q doesn't contain %q", err.Error(), tt.errContains)
				}
			}

			if err == nil && len(order) != g.Len() {
				t.Errorf("Expected %d tasks in order, got %d: %v", g.Len(), len(order), order)
			}
		})
	}
}

// TestValidateErrorKinds verifies validation failures carry the dependency
// sentinels so callers can classify them.
func TestValidateErrorKinds(t *testing.T) {
	g := New()
	g.Add(task("A", model.TaskPending, "ghost"))
	_, err := g.Validate()
	if !errors.Is(err, errors.ErrMissingDependency) {
		t.Errorf("expected ErrMissingDependency, got %v", err)
	}

	g = New()
	g.Add(task("A", model.TaskPending, "B"))
	g.Add(task("B", model.TaskPending, "A"))
	_, err = g.Validate()
	if !errors.Is(err, errors.ErrDependencyCycle) {
		t.Errorf("expected ErrDependencyCycle, got %v", err)
	}

	var de *errors.DependencyError
	if !errors.As(err, &de) {
		t.Errorf("expected *DependencyError, got %T", err)
	}
}

// TestDuplicateAdd verifies duplicate IDs are rejected at insertion.
func TestDuplicateAdd(t *testing.T) {
	g := New()
	if err := g.Add(task("A", model.TaskPending)); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	if err := g.Add(task("A", model.TaskPending)); err == nil {
		t.Fatal("expected error adding duplicate task ID")
	}
}

// TestReady tests readiness computation over dependency states.
func TestReady(t *testing.T) {
	tests := []struct {
		name        string
		setup       func() *Graph
		wantReady   []string
		wantBroken  int
	}{
		{
			name: "roots ready initially",
			setup: func() *Graph {
				g := New()
				g.Add(task("A", model.TaskPending))
				g.Add(task("B", model.TaskPending))
				g.Add(task("C", model.TaskPending, "A"))
				return g
			},
			wantReady: []string{"A", "B"},
		},
		{
			name: "completion unlocks dependents",
			setup: func() *Graph {
				g := New()
				g.Add(task("A", model.TaskCompleted))
				g.Add(task("B", model.TaskPending, "A"))
				return g
			},
			wantReady: []string{"B"},
		},
		{
			name: "partial completion blocks",
			setup: func() *Graph {
				g := New()
				g.Add(task("A", model.TaskCompleted))
				g.Add(task("B", model.TaskPending))
				g.Add(task("C", model.TaskPending, "A", "B"))
				return g
			},
			wantReady: []string{"B"},
		},
		{
			name: "failed dependency blocks",
			setup: func() *Graph {
				g := New()
				g.Add(task("A", model.TaskFailed))
				g.Add(task("B", model.TaskPending, "A"))
				return g
			},
			wantReady: nil,
		},
		{
			name: "cancelled dependency blocks",
			setup: func() *Graph {
				g := New()
				g.Add(task("A", model.TaskCancelled))
				g.Add(task("B", model.TaskPending, "A"))
				return g
			},
			wantReady: nil,
		},
		{
			name: "running tasks not re-reported",
			setup: func() *Graph {
				g := New()
				g.Add(task("A", model.TaskRunning))
				g.Add(task("B", model.TaskAssigned))
				return g
			},
			wantReady: nil,
		},
		{
			name: "missing dependency reported broken",
			setup: func() *Graph {
				g := New()
				// Bypasses Validate to simulate a corrupted restore.
				g.Add(task("A", model.TaskPending, "ghost"))
				return g
			},
			wantReady:  nil,
			wantBroken: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := tt.setup()
			ready, broken := g.Ready()

			ids := make([]string, 0, len(ready))
			for _, task := range ready {
				ids = append(ids, task.ID)
			}
			sort.Strings(ids)

			want := append([]string(nil), tt.wantReady...)
			sort.Strings(want)

			if len(ids) != len(want) {
				t.Fatalf("Ready() = %v, want %v", ids, want)
			}
			for i := range ids {
				if ids[i] != want[i] {
					t.Errorf("Ready() = %v, want %v", ids, want)
					break
				}
			}

			if len(broken) != tt.wantBroken {
				t.Errorf("broken = %d, want %d", len(broken), tt.wantBroken)
			}
		})
	}
}

// TestTransitiveDependents verifies downstream traversal over a diamond.
func TestTransitiveDependents(t *testing.T) {
	g := New()
	g.Add(task("A", model.TaskPending))
	g.Add(task("B", model.TaskPending, "A"))
	g.Add(task("C", model.TaskPending, "A"))
	g.Add(task("D", model.TaskPending, "B", "C"))
	g.Add(task("E", model.TaskPending, "D"))
	g.Add(task("X", model.TaskPending))

	got := g.TransitiveDependents("A")
	sort.Strings(got)
	want := []string{"B", "C", "D", "E"}
	if len(got) != len(want) {
		t.Fatalf("TransitiveDependents(A) = %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("TransitiveDependents(A) = %v, want %v", got, want)
			break
		}
	}

	if deps := g.TransitiveDependents("E"); len(deps) != 0 {
		t.Errorf("TransitiveDependents(E) = %v, want empty", deps)
	}

	if deps := g.TransitiveDependents("X"); len(deps) != 0 {
		t.Errorf("TransitiveDependents(X) = %v, want empty", deps)
	}
}

// TestDependents verifies the direct reverse index.
func TestDependents(t *testing.T) {
	g := New()
	g.Add(task("A", model.TaskPending))
	g.Add(task("B", model.TaskPending, "A"))
	g.Add(task("C", model.TaskPending, "A"))

	got := g.Dependents("A")
	sort.Strings(got)
	if len(got) != 2 || got[0] != "B" || got[1] != "C" {
		t.Errorf("Dependents(A) = %v, want [B C]", got)
	}

	// Returned slice must be a copy.
	got[0] = "mutated"
	again := g.Dependents("A")
	sort.Strings(again)
	if again[0] != "B" {
		t.Error("Dependents returned a shared slice")
	}
}
