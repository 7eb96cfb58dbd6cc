package coordinator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mlanders/swarmd/internal/errors"
	"github.com/mlanders/swarmd/internal/model"
	"github.com/mlanders/swarmd/internal/store"
)

// newStoreHarness builds a harness whose coordinator writes snapshots to
// the given store. A nil store gets a fresh in-memory one.
func newStoreHarness(t *testing.T, st store.SnapshotStore) (*harness, store.SnapshotStore) {
	t.Helper()

	if st == nil {
		mem, err := store.NewMemoryStore(context.Background())
		if err != nil {
			t.Fatalf("NewMemoryStore: %v", err)
		}
		t.Cleanup(func() { mem.Close() })
		st = mem
	}

	h := &harness{
		clock: newFakeClock(),
		cfg:   testConfig(),
		dec:   &stubDecomposer{},
		exec:  newScriptExec(nil),
	}
	c, err := New(Options{Config: h.cfg, Executor: h.exec, Decomposer: h.dec, Snapshots: st})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.now = h.clock.Now
	h.c = c
	return h, st
}

// TestSnapshot_RoundTrip saves mid-flight state from one coordinator and
// restores it into a second. Completed work survives, the interrupted
// execution returns to pending without consuming an attempt, and the
// queued assignment stays on its agent and resumes.
func TestSnapshot_RoundTrip(t *testing.T) {
	h1, st := newStoreHarness(t, nil)
	h1.createObjective(t, task("a"), task("b"), task("c"), task("d"))
	w1 := h1.registerAgent(t, "worker-1")

	now := h1.clock.Now()
	h1.c.mu.Lock()
	a, _ := h1.c.graph.Get("a")
	a.Status = model.TaskCompleted
	a.CompletedAt = &now
	a.Result = &model.Result{Output: "done", AgentID: w1.ID, FinishedAt: now}

	b, _ := h1.c.graph.Get("b")
	b.Status = model.TaskRunning
	b.AgentID = w1.ID
	b.Attempts = 1
	b.StartedAt = &now

	cTask, _ := h1.c.graph.Get("c")
	cTask.Status = model.TaskAssigned
	cTask.AgentID = w1.ID
	cTask.AssignedAt = &now

	agent := h1.c.agents[w1.ID]
	agent.Status = model.AgentBusy
	agent.CurrentTaskID = "b"
	agent.Enqueue("c")

	h1.c.recordTypeSuccessLocked(model.TypeImplementation, w1.ID, 2*time.Second)
	h1.c.mu.Unlock()

	if err := h1.c.saveSnapshot(context.Background()); err != nil {
		t.Fatalf("saveSnapshot: %v", err)
	}

	h2, _ := newStoreHarness(t, st)
	if err := h2.c.LoadSnapshot(context.Background()); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	if got := h2.taskStatus(t, "a"); got != model.TaskCompleted {
		t.Errorf("task a = %s, want completed", got)
	}

	interrupted, _ := h2.c.GetTask("b")
	if interrupted.Status != model.TaskPending {
		t.Errorf("interrupted task = %s, want pending", interrupted.Status)
	}
	if interrupted.AgentID != "" || interrupted.StartedAt != nil {
		t.Errorf("interrupted task keeps execution state: agent=%q started=%v",
			interrupted.AgentID, interrupted.StartedAt)
	}
	if interrupted.Attempts != 1 {
		t.Errorf("interrupted task attempts = %d, want 1 preserved", interrupted.Attempts)
	}

	queued, _ := h2.c.GetTask("c")
	if queued.Status != model.TaskAssigned || queued.AgentID != w1.ID {
		t.Errorf("queued task = %s on %q, want assigned on %s", queued.Status, queued.AgentID, w1.ID)
	}

	restored, err := h2.c.GetAgent(w1.ID)
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if restored.Status != model.AgentIdle || restored.CurrentTaskID != "" {
		t.Errorf("agent = %s current=%q, want idle with no task", restored.Status, restored.CurrentTaskID)
	}
	if len(restored.Queue) != 1 || restored.Queue[0] != "c" {
		t.Errorf("agent queue = %v, want [c]", restored.Queue)
	}
	if restored.Workload != 1 {
		t.Errorf("agent workload = %d, want 1", restored.Workload)
	}

	h2.c.mu.Lock()
	stats := h2.c.typeStats[model.TypeImplementation]
	h2.c.mu.Unlock()
	if stats == nil || stats.Count != 1 || stats.LastAgentID != w1.ID {
		t.Errorf("type stats = %+v, want count 1 from %s", stats, w1.ID)
	}

	// Admission sequence continues past restored tasks.
	obj := h2.c.Objectives()[0]
	added, err := h2.c.AddTask(context.Background(), obj.ID, TaskSpec{Name: "post-restore"})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if added.Seq != 5 {
		t.Errorf("new task seq = %d, want 5", added.Seq)
	}

	// The queued assignment resumes on the first pass.
	h2.start(t)
	h2.c.schedulePass(context.Background())
	waitFor(t, func() bool { return h2.taskStatus(t, "c") == model.TaskCompleted },
		"queued task did not resume after restore")
}

// TestSnapshot_DropsOrphanedAssignments verifies an assigned task whose
// agent vanished between save and restore returns to pending.
func TestSnapshot_DropsOrphanedAssignments(t *testing.T) {
	h1, st := newStoreHarness(t, nil)
	h1.createObjective(t, task("a"))

	h1.c.mu.Lock()
	a, _ := h1.c.graph.Get("a")
	a.Status = model.TaskAssigned
	a.AgentID = "agent-gone"
	h1.c.mu.Unlock()

	if err := h1.c.saveSnapshot(context.Background()); err != nil {
		t.Fatalf("saveSnapshot: %v", err)
	}

	h2, _ := newStoreHarness(t, st)
	if err := h2.c.LoadSnapshot(context.Background()); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	got, _ := h2.c.GetTask("a")
	if got.Status != model.TaskPending || got.AgentID != "" {
		t.Errorf("orphaned task = %s on %q, want pending unassigned", got.Status, got.AgentID)
	}
}

// TestLoadSnapshot_RequiresNotStarted verifies restore is rejected once
// the coordinator has started.
func TestLoadSnapshot_RequiresNotStarted(t *testing.T) {
	h, _ := newStoreHarness(t, nil)
	h.createObjective(t, task("a"))
	if err := h.c.saveSnapshot(context.Background()); err != nil {
		t.Fatalf("saveSnapshot: %v", err)
	}
	h.start(t)

	err := h.c.LoadSnapshot(context.Background())
	var ise *errors.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("LoadSnapshot after start = %v, want InvalidStateError", err)
	}
}

// TestLoadSnapshot_MissingSnapshot verifies a store with no saved state
// surfaces not-found rather than silently starting empty.
func TestLoadSnapshot_MissingSnapshot(t *testing.T) {
	h, _ := newStoreHarness(t, nil)

	err := h.c.LoadSnapshot(context.Background())
	var nf *errors.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("LoadSnapshot = %v, want NotFoundError", err)
	}
}

// TestLoadSnapshot_NoStore verifies restore without a configured store is
// an explicit error.
func TestLoadSnapshot_NoStore(t *testing.T) {
	h := newHarness(t)

	err := h.c.LoadSnapshot(context.Background())
	var ise *errors.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("LoadSnapshot = %v, want InvalidStateError", err)
	}
}

// TestSnapshot_PeriodicGating verifies the sync loop saves on its first
// pass and then not again until the interval elapses.
func TestSnapshot_PeriodicGating(t *testing.T) {
	h, st := newStoreHarness(t, nil)
	h.createObjective(t, task("a"))
	h.start(t)

	h.c.syncPass(context.Background())

	key := h.c.snapshotKey()
	if _, err := st.Load(context.Background(), key); err != nil {
		t.Fatalf("no snapshot after first sync pass: %v", err)
	}

	h.c.mu.Lock()
	due := h.c.snapshotDueLocked()
	h.c.mu.Unlock()
	if due {
		t.Error("snapshot due immediately after saving")
	}

	h.clock.Advance(h.cfg.Store.Interval + time.Minute)
	h.c.mu.Lock()
	due = h.c.snapshotDueLocked()
	h.c.mu.Unlock()
	if !due {
		t.Error("snapshot not due after interval elapsed")
	}
}

// TestStop_SavesFinalSnapshot verifies shutdown writes a last snapshot
// reflecting the cancelled queue.
func TestStop_SavesFinalSnapshot(t *testing.T) {
	h, st := newStoreHarness(t, nil)
	h.createObjective(t, task("a"))
	h.start(t)

	if err := h.c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	blob, err := st.Load(context.Background(), h.c.snapshotKey())
	if err != nil {
		t.Fatalf("no snapshot after stop: %v", err)
	}

	var snap snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if len(snap.Tasks) != 1 {
		t.Fatalf("snapshot tasks = %d, want 1", len(snap.Tasks))
	}
	if snap.Tasks[0].Status != model.TaskCancelled {
		t.Errorf("snapshot task = %s, want cancelled by shutdown", snap.Tasks[0].Status)
	}
}
