package coordinator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mlanders/swarmd/internal/config"
	"github.com/mlanders/swarmd/internal/errors"
	"github.com/mlanders/swarmd/internal/events"
	"github.com/mlanders/swarmd/internal/model"
)

// TestBreaker_OpensAfterConsecutiveFailures verifies an agent that fails
// repeatedly is removed from the candidate pool once the threshold trips.
func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	exec := newScriptExec(func(ctx context.Context, task *model.Task, call int) (*model.Result, error) {
		return nil, errors.New("agent wedged")
	})
	h := newHarnessExec(t, exec, func(cfg *config.Config) {
		cfg.Breaker.Threshold = 3
	})

	tasks := []*model.Task{task("f1"), task("f2"), task("f3"), task("f4")}
	for _, ft := range tasks {
		ft.MaxRetries = 1
	}
	h.createObjective(t, tasks...)
	agent := h.registerAgent(t, "worker-1")
	h.start(t)

	for i := 0; i < 3; i++ {
		h.c.schedulePass(context.Background())
		id := tasks[i].ID
		waitFor(t, func() bool { return h.taskStatus(t, id) == model.TaskFailed }, "permanent failure")
	}

	if got := h.c.breakers.state(agent.ID); got != gobreaker.StateOpen {
		t.Fatalf("breaker state = %s, want open after 3 consecutive failures", got)
	}

	// The open breaker removes the agent from the pool; f4 stays pending.
	h.c.schedulePass(context.Background())
	time.Sleep(20 * time.Millisecond)
	if got := h.taskStatus(t, "f4"); got != model.TaskPending {
		t.Errorf("task f4 status = %s, want pending while breaker open", got)
	}
	if exec.callCount("f4") != 0 {
		t.Errorf("f4 executed %d times through an open breaker", exec.callCount("f4"))
	}
}

// TestBreaker_CooldownAdmitsTrialThenCloses verifies the open breaker
// re-admits the agent after the cool-down and a successful trial closes it.
func TestBreaker_CooldownAdmitsTrialThenCloses(t *testing.T) {
	exec := newScriptExec(func(ctx context.Context, task *model.Task, call int) (*model.Result, error) {
		if task.ID == "f" {
			return nil, errors.New("agent wedged")
		}
		return &model.Result{Output: "ok"}, nil
	})
	h := newHarnessExec(t, exec, func(cfg *config.Config) {
		cfg.Breaker.Threshold = 1
		cfg.Breaker.Cooldown = 50 * time.Millisecond
	})

	f := task("f")
	f.MaxRetries = 1
	h.createObjective(t, f, task("g"))
	agent := h.registerAgent(t, "worker-1")
	h.start(t)

	h.c.schedulePass(context.Background())
	waitFor(t, func() bool { return h.taskStatus(t, "f") == model.TaskFailed }, "trip failure")

	if got := h.c.breakers.state(agent.ID); got != gobreaker.StateOpen {
		t.Fatalf("breaker state = %s, want open", got)
	}
	h.c.schedulePass(context.Background())
	if got := h.taskStatus(t, "g"); got != model.TaskPending {
		t.Fatalf("task g status = %s, want pending during cool-down", got)
	}

	// After the cool-down the half-open breaker admits one trial.
	time.Sleep(70 * time.Millisecond)
	h.c.schedulePass(context.Background())
	waitFor(t, func() bool { return h.taskStatus(t, "g") == model.TaskCompleted }, "trial completion")

	if got := h.c.breakers.state(agent.ID); got != gobreaker.StateClosed {
		t.Errorf("breaker state = %s, want closed after successful trial", got)
	}
}

// TestBreaker_HalfOpenAdmitsSingleTrial exercises the registry directly: in
// half-open state a second concurrent execution is rejected while the first
// trial is still in flight.
func TestBreaker_HalfOpenAdmitsSingleTrial(t *testing.T) {
	reg := newBreakerRegistry(1, 30*time.Millisecond, nil)
	cb := reg.get("agent-x")

	if _, err := cb.Execute(func() (interface{}, error) {
		return nil, errors.New("boom")
	}); err == nil {
		t.Fatal("expected failure")
	}
	if got := reg.state("agent-x"); got != gobreaker.StateOpen {
		t.Fatalf("state = %s, want open", got)
	}
	if _, err := cb.Execute(func() (interface{}, error) { return nil, nil }); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected ErrOpenState, got %v", err)
	}

	time.Sleep(40 * time.Millisecond)

	entered := make(chan struct{})
	release := make(chan struct{})
	trialDone := make(chan error, 1)
	go func() {
		_, err := cb.Execute(func() (interface{}, error) {
			close(entered)
			<-release
			return "ok", nil
		})
		trialDone <- err
	}()
	<-entered

	// The single half-open slot is taken; a second request is refused.
	if _, err := cb.Execute(func() (interface{}, error) { return nil, nil }); !errors.Is(err, gobreaker.ErrTooManyRequests) {
		t.Fatalf("expected ErrTooManyRequests, got %v", err)
	}

	close(release)
	if err := <-trialDone; err != nil {
		t.Fatalf("trial failed: %v", err)
	}
	if got := reg.state("agent-x"); got != gobreaker.StateClosed {
		t.Errorf("state = %s, want closed after trial success", got)
	}
}

// TestBreaker_CancellationIsNotAFailure verifies supervisor-initiated
// cancellation never counts against the agent, while deadline expiry does.
func TestBreaker_CancellationIsNotAFailure(t *testing.T) {
	reg := newBreakerRegistry(1, time.Minute, nil)
	cb := reg.get("agent-x")

	if _, err := cb.Execute(func() (interface{}, error) {
		return nil, context.Canceled
	}); err == nil {
		t.Fatal("expected the cancellation error to propagate")
	}
	if got := reg.state("agent-x"); got != gobreaker.StateClosed {
		t.Fatalf("state = %s, want closed after cancellation", got)
	}

	if _, err := cb.Execute(func() (interface{}, error) {
		return nil, context.DeadlineExceeded
	}); err == nil {
		t.Fatal("expected the timeout error to propagate")
	}
	if got := reg.state("agent-x"); got != gobreaker.StateOpen {
		t.Errorf("state = %s, want open after deadline expiry", got)
	}
}

// TestBreaker_RejectionRequeuesWithoutAttempt verifies a dispatch refused by
// an open breaker returns the task to pending without consuming an attempt.
func TestBreaker_RejectionRequeuesWithoutAttempt(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Breaker.Threshold = 1
	})
	ch := h.c.Events().Subscribe(events.TopicTask, 32)
	h.createObjective(t, task("a"))
	agent := h.registerAgent(t, "worker-1")
	h.start(t)

	// Trip the breaker outside the scheduler, then force a dispatch into it.
	cb := h.c.breakers.get(agent.ID)
	_, _ = cb.Execute(func() (interface{}, error) { return nil, errors.New("boom") })

	h.c.mu.Lock()
	a, _ := h.c.graph.Get("a")
	ag := h.c.agents[agent.ID]
	h.c.assignLocked(a, ag)
	h.c.promoteLocked(ag)
	h.c.mu.Unlock()

	waitFor(t, func() bool {
		got, _ := h.c.GetTask("a")
		return got.Status == model.TaskPending && got.AgentID == ""
	}, "breaker rejection to requeue")

	got, _ := h.c.GetTask("a")
	if got.Attempts != 0 {
		t.Errorf("attempts = %d, want 0; rejection is not an execution failure", got.Attempts)
	}
	if h.exec.callCount("a") != 0 {
		t.Errorf("executor ran %d times through an open breaker", h.exec.callCount("a"))
	}

	ev := nextEvent(t, ch, events.EventTypeTaskRequeued).(events.TaskRequeuedEvent)
	if !strings.Contains(ev.Reason, "circuit breaker") {
		t.Errorf("requeue reason = %q, want breaker named", ev.Reason)
	}

	gotAgent, _ := h.c.GetAgent(agent.ID)
	if gotAgent.Status != model.AgentIdle || gotAgent.CurrentTaskID != "" {
		t.Errorf("agent not released: %s %q", gotAgent.Status, gotAgent.CurrentTaskID)
	}
}
