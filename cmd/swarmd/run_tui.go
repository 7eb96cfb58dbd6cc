package main

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mlanders/swarmd/internal/config"
	"github.com/mlanders/swarmd/internal/coordinator"
	"github.com/mlanders/swarmd/internal/tui"
)

// runDashboardMode runs the objective under the live dashboard. The model
// subscribes to the bus before the objective is created so the first
// decomposition events already land in the panes.
func runDashboardMode(ctx context.Context, stop context.CancelFunc, c *coordinator.Coordinator, cfg *config.Config) error {
	model := tui.New(c.Events(), cfg, config.UserConfigPath(), config.ProjectConfigPath())

	if _, err := createObjectiveFromFlags(ctx, c); err != nil {
		_ = c.Stop(context.Background())
		return err
	}

	// Bubble Tea runs in a goroutine so this function can react to signals.
	p := tea.NewProgram(model, tea.WithAltScreen())

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	select {
	case err := <-errChan:
		// User quit the dashboard.
		stopErr := c.Stop(context.Background())
		if err != nil {
			return err
		}
		return stopErr

	case <-ctx.Done():
		// Restore default signal handling so a second Ctrl+C force-exits.
		stop()

		err := c.Stop(context.Background())
		p.Quit()

		// Give the TUI a bounded window to unwind the terminal.
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		select {
		case <-errChan:
		case <-drainCtx.Done():
		}
		return err
	}
}
