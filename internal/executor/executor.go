// Package executor defines the execution capability agents run tasks
// through, and its built-in implementations: a subprocess runner for real
// work and a simulated runner for demos and tests.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mlanders/swarmd/internal/model"
)

// Executor runs one task attempt. Implementations must honor context
// cancellation; the supervisor sets the deadline and owns the timeout
// decision. The result payload is opaque to the scheduler.
type Executor interface {
	Execute(ctx context.Context, task *model.Task) (*model.Result, error)
}

// Func adapts a plain function to the Executor interface.
type Func func(ctx context.Context, task *model.Task) (*model.Result, error)

// Execute calls the wrapped function.
func (f Func) Execute(ctx context.Context, task *model.Task) (*model.Result, error) {
	return f(ctx, task)
}

// Executor type names accepted by the factory.
const (
	TypeCommand   = "command"
	TypeSimulated = "simulated"
)

// Config selects and parameterizes an executor implementation.
type Config struct {
	Type    string        // "command" or "simulated"
	Command string        // Binary to run for the command executor
	Args    []string      // Fixed arguments placed before task data
	Delay   time.Duration // Simulated execution time
}

// New creates an executor from configuration.
func New(cfg Config, pm *ProcessManager, log *slog.Logger) (Executor, error) {
	switch cfg.Type {
	case TypeCommand:
		if cfg.Command == "" {
			return nil, fmt.Errorf("command executor requires a command")
		}
		return NewCommand(cfg.Command, cfg.Args, pm, log), nil
	case TypeSimulated, "":
		return NewSimulated(cfg.Delay), nil
	default:
		return nil, fmt.Errorf("unknown executor type: %s", cfg.Type)
	}
}

// Simulated pretends to execute tasks by sleeping. Useful for exercising
// the scheduler without real workers.
type Simulated struct {
	delay time.Duration
}

// NewSimulated creates a simulated executor. Zero delay defaults to 100ms.
func NewSimulated(delay time.Duration) *Simulated {
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	return &Simulated{delay: delay}
}

// Execute sleeps for the configured delay, honoring cancellation.
func (s *Simulated) Execute(ctx context.Context, task *model.Task) (*model.Result, error) {
	start := time.Now()

	t := time.NewTimer(s.delay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
	}

	return &model.Result{
		Output:     fmt.Sprintf("simulated %s: %s", task.Type, task.Name),
		Duration:   time.Since(start),
		FinishedAt: time.Now(),
	}, nil
}
