package strategy

import (
	"testing"
	"time"

	"github.com/mlanders/swarmd/internal/errors"
	"github.com/mlanders/swarmd/internal/model"
)

func agent(id string, seq, workload int, caps ...string) *model.Agent {
	return &model.Agent{
		ID:           id,
		Seq:          seq,
		Workload:     workload,
		Status:       model.AgentIdle,
		Capabilities: caps,
	}
}

func sctxFor(agents []*model.Agent, capacity float64) *model.SchedulingContext {
	sctx := &model.SchedulingContext{
		Loads:     make(map[string]float64),
		Weights:   make(map[string]float64),
		TypeStats: make(map[model.TaskType]*model.TypeStats),
		Now:       time.Now(),
	}
	for _, a := range agents {
		sctx.Loads[a.ID] = float64(a.Workload) / capacity
		sctx.Weights[a.ID] = a.Weight
	}
	return sctx
}

// TestCapabilityMatch tests scoring across capability coverage, load, and
// priority weight.
func TestCapabilityMatch(t *testing.T) {
	tests := []struct {
		name       string
		task       *model.Task
		candidates []*model.Agent
		want       string
	}{
		{
			name: "full coverage beats partial",
			task: &model.Task{ID: "t1", Type: model.TypeResearch, Capabilities: []string{"research", "web-search"}},
			candidates: []*model.Agent{
				agent("agent-a", 0, 0, "research"),
				agent("agent-b", 1, 0, "research", "web-search"),
			},
			want: "agent-b",
		},
		{
			name: "type fallback without explicit requirements",
			task: &model.Task{ID: "t1", Type: model.TypeTesting},
			candidates: []*model.Agent{
				agent("agent-a", 0, 0, "research"),
				agent("agent-b", 1, 0, "testing"),
			},
			want: "agent-b",
		},
		{
			name: "lower load wins at equal coverage",
			task: &model.Task{ID: "t1", Type: model.TypeAnalysis, Capabilities: []string{"analysis"}},
			candidates: []*model.Agent{
				agent("agent-a", 0, 6, "analysis"),
				agent("agent-b", 1, 1, "analysis"),
			},
			want: "agent-b",
		},
		{
			name: "exact tie breaks by agent id",
			task: &model.Task{ID: "t1", Type: model.TypeAnalysis, Capabilities: []string{"analysis"}},
			candidates: []*model.Agent{
				agent("agent-b", 0, 2, "analysis"),
				agent("agent-a", 1, 2, "analysis"),
			},
			want: "agent-a",
		},
		{
			name: "single candidate always selected",
			task: &model.Task{ID: "t1", Type: model.TypeResearch, Capabilities: []string{"research"}},
			candidates: []*model.Agent{
				agent("agent-a", 0, 0, "documentation"),
			},
			want: "agent-a",
		},
	}

	s := NewCapabilityMatch()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sctx := sctxFor(tt.candidates, 10)
			got, ok := s.SelectAgent(tt.task, tt.candidates, sctx)
			if !ok {
				t.Fatal("SelectAgent returned no selection")
			}
			if got != tt.want {
				t.Errorf("SelectAgent() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestCapabilityMatchPriorityWeight verifies the weight term tips otherwise
// equal candidates.
func TestCapabilityMatchPriorityWeight(t *testing.T) {
	a := agent("agent-a", 0, 0, "research")
	b := agent("agent-b", 1, 0, "research")
	a.Weight = 0.2
	b.Weight = 0.9

	task := &model.Task{ID: "t1", Type: model.TypeResearch, Capabilities: []string{"research"}}
	sctx := sctxFor([]*model.Agent{a, b}, 10)

	got, ok := NewCapabilityMatch().SelectAgent(task, []*model.Agent{a, b}, sctx)
	if !ok || got != "agent-b" {
		t.Errorf("SelectAgent() = %q, want agent-b (higher weight)", got)
	}
}

// TestRoundRobin verifies rotation persists across passes.
func TestRoundRobin(t *testing.T) {
	candidates := []*model.Agent{
		agent("agent-a", 0, 0),
		agent("agent-b", 1, 0),
		agent("agent-c", 2, 0),
	}
	task := &model.Task{ID: "t1", Type: model.TypeResearch}
	sctx := sctxFor(candidates, 10)

	s := NewRoundRobin()
	var picks []string
	for i := 0; i < 6; i++ {
		id, ok := s.SelectAgent(task, candidates, sctx)
		if !ok {
			t.Fatal("SelectAgent returned no selection")
		}
		picks = append(picks, id)
	}

	want := []string{"agent-a", "agent-b", "agent-c", "agent-a", "agent-b", "agent-c"}
	for i := range want {
		if picks[i] != want[i] {
			t.Fatalf("rotation = %v, want %v", picks, want)
		}
	}
}

// TestRoundRobinStableOrder verifies rotation uses registration order even
// when candidates arrive shuffled.
func TestRoundRobinStableOrder(t *testing.T) {
	shuffled := []*model.Agent{
		agent("agent-c", 2, 0),
		agent("agent-a", 0, 0),
		agent("agent-b", 1, 0),
	}
	task := &model.Task{ID: "t1", Type: model.TypeResearch}
	sctx := sctxFor(shuffled, 10)

	s := NewRoundRobin()
	id, _ := s.SelectAgent(task, shuffled, sctx)
	if id != "agent-a" {
		t.Errorf("first pick = %q, want agent-a (lowest registration seq)", id)
	}
}

// TestLeastLoaded verifies minimum workload selection and first-seen ties.
func TestLeastLoaded(t *testing.T) {
	tests := []struct {
		name       string
		candidates []*model.Agent
		want       string
	}{
		{
			name: "lowest workload",
			candidates: []*model.Agent{
				agent("agent-a", 0, 5),
				agent("agent-b", 1, 2),
				agent("agent-c", 2, 7),
			},
			want: "agent-b",
		},
		{
			name: "tie breaks by first seen",
			candidates: []*model.Agent{
				agent("agent-b", 1, 3),
				agent("agent-a", 0, 3),
			},
			want: "agent-a",
		},
	}

	s := NewLeastLoaded()
	task := &model.Task{ID: "t1", Type: model.TypeResearch}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sctx := sctxFor(tt.candidates, 10)
			got, ok := s.SelectAgent(task, tt.candidates, sctx)
			if !ok || got != tt.want {
				t.Errorf("SelectAgent() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestAffinity verifies history preference and its fallbacks.
func TestAffinity(t *testing.T) {
	candidates := []*model.Agent{
		agent("agent-a", 0, 0, "research"),
		agent("agent-b", 1, 0, "research"),
	}
	task := &model.Task{ID: "t1", Type: model.TypeResearch, Capabilities: []string{"research"}}

	t.Run("prefers last successful agent", func(t *testing.T) {
		sctx := sctxFor(candidates, 10)
		sctx.TypeStats[model.TypeResearch] = &model.TypeStats{Count: 3, LastAgentID: "agent-b"}

		got, ok := NewAffinity().SelectAgent(task, candidates, sctx)
		if !ok || got != "agent-b" {
			t.Errorf("SelectAgent() = %q, want agent-b", got)
		}
	})

	t.Run("saturated agent falls back", func(t *testing.T) {
		saturated := []*model.Agent{
			agent("agent-a", 0, 0, "research"),
			agent("agent-b", 1, saturationThreshold, "research"),
		}
		sctx := sctxFor(saturated, 10)
		sctx.TypeStats[model.TypeResearch] = &model.TypeStats{Count: 3, LastAgentID: "agent-b"}

		got, ok := NewAffinity().SelectAgent(task, saturated, sctx)
		if !ok || got != "agent-a" {
			t.Errorf("SelectAgent() = %q, want agent-a (fallback)", got)
		}
	})

	t.Run("no history falls back", func(t *testing.T) {
		sctx := sctxFor(candidates, 10)

		got, ok := NewAffinity().SelectAgent(task, candidates, sctx)
		if !ok || got == "" {
			t.Error("expected fallback selection")
		}
	})

	t.Run("departed agent falls back", func(t *testing.T) {
		sctx := sctxFor(candidates, 10)
		sctx.TypeStats[model.TypeResearch] = &model.TypeStats{Count: 3, LastAgentID: "agent-gone"}

		got, ok := NewAffinity().SelectAgent(task, candidates, sctx)
		if !ok || got == "" {
			t.Error("expected fallback selection")
		}
	})
}

// TestRegistry verifies lookup, duplicate registration, and unknown names.
func TestRegistry(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{NameCapabilityMatch, NameRoundRobin, NameLeastLoaded, NameAffinity} {
		s, err := r.Get(name)
		if err != nil {
			t.Errorf("Get(%q) error: %v", name, err)
			continue
		}
		if s.Name() != name {
			t.Errorf("Get(%q).Name() = %q", name, s.Name())
		}
	}

	if _, err := r.Get("no-such-strategy"); !errors.Is(err, errors.ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}

	if err := r.Register(NewRoundRobin()); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	names := r.Names()
	if len(names) != 4 {
		t.Errorf("Names() = %v, want 4 built-ins", names)
	}
}
