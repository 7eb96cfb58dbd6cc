package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mlanders/swarmd/internal/events"
)

// TaskPaneModel shows scheduling progress: counts by status and a bar.
// It keeps the last known status per task so counts stay consistent no
// matter which transition events arrive.
type TaskPaneModel struct {
	statuses   map[string]string // taskID -> status
	objectives int
	width      int
	height     int
	focused    bool
}

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		statuses: make(map[string]string),
	}
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.ObjectiveCreatedEvent:
		m.objectives++

	case events.TaskCreatedEvent:
		m.statuses[msg.ID] = "pending"
	case events.TaskAssignedEvent:
		m.statuses[msg.ID] = "assigned"
	case events.TaskStartedEvent:
		m.statuses[msg.ID] = "running"
	case events.TaskCompletedEvent:
		m.statuses[msg.ID] = "completed"
	case events.TaskFailedEvent:
		m.statuses[msg.ID] = "failed"
	case events.TaskCancelledEvent:
		m.statuses[msg.ID] = "cancelled"
	case events.TaskRetriedEvent:
		m.statuses[msg.ID] = "pending"
	case events.TaskRequeuedEvent:
		m.statuses[msg.ID] = "pending"
	}

	return m, nil
}

// counts tallies tasks by status.
func (m TaskPaneModel) counts() (total, pending, running, completed, failed, cancelled int) {
	for _, s := range m.statuses {
		total++
		switch s {
		case "pending", "assigned":
			pending++
		case "running":
			running++
		case "completed":
			completed++
		case "failed":
			failed++
		case "cancelled":
			cancelled++
		}
	}
	return
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	total, pending, running, completed, failed, cancelled := m.counts()

	b.WriteString(fmt.Sprintf("Objectives: %d\n", m.objectives))
	b.WriteString(fmt.Sprintf("Total:      %d\n", total))
	b.WriteString(fmt.Sprintf("Completed:  %s\n", StyleStatusComplete.Render(fmt.Sprintf("%d", completed))))
	b.WriteString(fmt.Sprintf("Running:    %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", running))))
	b.WriteString(fmt.Sprintf("Failed:     %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", failed))))
	b.WriteString(fmt.Sprintf("Cancelled:  %s\n", StyleStatusOffline.Render(fmt.Sprintf("%d", cancelled))))
	b.WriteString(fmt.Sprintf("Pending:    %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", pending))))

	b.WriteString("\n")

	if total > 0 {
		barWidth := min(m.width-4, 40)
		completedWidth := (completed * barWidth) / total
		failedWidth := ((failed + cancelled) * barWidth) / total
		runningWidth := (running * barWidth) / total
		pendingWidth := barWidth - completedWidth - failedWidth - runningWidth

		bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

		b.WriteString(fmt.Sprintf("[%s]  %d/%d\n", bar, completed, total))
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
