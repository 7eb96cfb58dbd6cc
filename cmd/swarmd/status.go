package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mlanders/swarmd/internal/errors"
	"github.com/mlanders/swarmd/internal/model"
	"github.com/mlanders/swarmd/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last saved coordinator state",
	Long: `Display objectives, tasks, and agents from the most recent snapshot.

Snapshots are written periodically while 'swarmd run' executes and once
more at shutdown, so this reflects the last run, or the live one within
one snapshot interval.`,
	RunE: runStatus,
}

// snapshotView names the snapshot fields the display reads. The blob is
// written by the coordinator; unknown fields are ignored.
type snapshotView struct {
	SavedAt    time.Time          `json:"saved_at"`
	Objectives []*model.Objective `json:"objectives"`
	Tasks      []*model.Task      `json:"tasks"`
	Agents     []*model.Agent     `json:"agents"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Path == "" {
		fmt.Println("No snapshot store configured. Set store.path to enable snapshots.")
		return nil
	}

	ctx := cmd.Context()
	st, err := store.NewSQLiteStore(ctx, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer st.Close()

	blob, err := st.Load(ctx, cfg.Store.Namespace+"/state")
	if err != nil {
		var nf *errors.NotFoundError
		if errors.As(err, &nf) {
			fmt.Println("No snapshot found. Run 'swarmd run' to create one.")
			return nil
		}
		return err
	}

	var snap snapshotView
	if err := json.Unmarshal(blob, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	fmt.Printf("Snapshot from %s ago (%s)\n", formatDuration(time.Since(snap.SavedAt)), cfg.Store.Path)
	fmt.Println()

	displayObjectives(snap.Objectives)
	displayTasks(snap.Tasks)
	displayAgents(snap.Agents)
	return nil
}

func displayObjectives(objectives []*model.Objective) {
	if len(objectives) == 0 {
		fmt.Println("Objectives: none")
		return
	}

	fmt.Println("Objectives:")
	for _, obj := range objectives {
		fmt.Printf("  %s  [%s]  %d/%d tasks  %q\n",
			obj.ID, obj.Status, obj.Progress.Completed, obj.Progress.Total, obj.Name)
	}
}

func displayTasks(tasks []*model.Task) {
	byStatus := make(map[model.TaskStatus]int, len(tasks))
	for _, t := range tasks {
		byStatus[t.Status]++
	}

	fmt.Printf("\nTasks: %d total\n", len(tasks))
	order := []model.TaskStatus{
		model.TaskPending,
		model.TaskAssigned,
		model.TaskRunning,
		model.TaskCompleted,
		model.TaskFailed,
		model.TaskCancelled,
	}
	for _, s := range order {
		if n := byStatus[s]; n > 0 {
			fmt.Printf("  %-10s %d\n", s, n)
		}
	}
}

func displayAgents(agents []*model.Agent) {
	if len(agents) == 0 {
		fmt.Println("\nAgents: none")
		return
	}

	fmt.Printf("\nAgents: %d\n", len(agents))
	for _, a := range agents {
		fmt.Printf("  %s  [%s]  %d completed, %d failed\n",
			a.Name, a.Status, a.Stats.Completed, a.Stats.Failed)
	}
}

// formatDuration renders a duration at the coarsest sensible unit.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dd", int(d.Hours())/24)
}
