package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mlanders/swarmd/internal/model"
)

// Command executes each task as a subprocess. The task's instructions are
// written to stdin, task identity rides in the environment, and stdout
// becomes the result payload.
type Command struct {
	name string
	args []string
	pm   *ProcessManager
	log  *slog.Logger
}

// NewCommand creates a subprocess executor.
func NewCommand(name string, args []string, pm *ProcessManager, log *slog.Logger) *Command {
	if pm == nil {
		pm = NewProcessManager()
	}
	return &Command{name: name, args: args, pm: pm, log: log}
}

// Execute runs the configured command for one task attempt.
func (c *Command) Execute(ctx context.Context, task *model.Task) (*model.Result, error) {
	start := time.Now()

	cmd := newCommand(ctx, c.name, c.args...)
	cmd.Stdin = strings.NewReader(task.Instructions)
	cmd.Env = append(os.Environ(),
		"SWARMD_TASK_ID="+task.ID,
		"SWARMD_TASK_NAME="+task.Name,
		"SWARMD_TASK_TYPE="+string(task.Type),
		"SWARMD_OBJECTIVE_ID="+task.ObjectiveID,
	)

	stdout, stderr, err := run(ctx, cmd, c.pm)
	if err != nil {
		// Context errors take precedence so the supervisor can tell a
		// timeout from an executor failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if c.log != nil {
			c.log.Warn("command executor failed",
				"task_id", task.ID,
				"error", err,
				"stderr_bytes", len(stderr))
		}
		return nil, fmt.Errorf("execute %s: %w", task.ID, err)
	}

	return &model.Result{
		Output:     string(stdout),
		Duration:   time.Since(start),
		FinishedAt: time.Now(),
	}, nil
}
