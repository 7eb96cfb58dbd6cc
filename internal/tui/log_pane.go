package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mlanders/swarmd/internal/events"
)

// maxLogLines bounds the retained event history.
const maxLogLines = 500

// LogPaneModel is a scrollable feed of coordinator events.
type LogPaneModel struct {
	lines     []string
	viewport  viewport.Model
	width     int
	height    int
	focused   bool
	updateTag int // for debouncing under event bursts
}

// NewLogPaneModel creates a new log pane model.
func NewLogPaneModel() LogPaneModel {
	vp := viewport.New(0, 0)
	return LogPaneModel{
		viewport: vp,
	}
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// Update handles messages for the log pane.
func (m LogPaneModel) Update(msg tea.Msg) (LogPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		m.viewport, cmd = m.viewport.Update(msg)

	case events.Event:
		line := formatEvent(msg)
		if line == "" {
			break
		}
		m.lines = append(m.lines, line)
		if len(m.lines) > maxLogLines {
			m.lines = m.lines[len(m.lines)-maxLogLines:]
		}
		m.updateTag++
		tag := m.updateTag
		return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
			return tickMsg{tag: tag}
		})

	case tickMsg:
		// Only refresh when this tick matches the latest tag.
		if msg.tag == m.updateTag {
			m.refreshContent()
		}
	}

	return m, cmd
}

// formatEvent renders one event as a log line. Heartbeats are elided; at
// one per agent per interval they would drown everything else.
func formatEvent(ev events.Event) string {
	stamp := func(t time.Time) string { return t.Format("15:04:05") }

	switch e := ev.(type) {
	case events.ObjectiveCreatedEvent:
		return fmt.Sprintf("%s objective %s created (%d tasks, %s)", stamp(e.Timestamp), e.ID, e.TaskCount, e.Strategy)
	case events.ObjectiveStartedEvent:
		return fmt.Sprintf("%s objective %s started", stamp(e.Timestamp), e.ID)
	case events.ObjectiveCompletedEvent:
		return stamp(e.Timestamp) + " " + StyleStatusComplete.Render(fmt.Sprintf("objective %s completed in %s", e.ID, e.Duration.Round(time.Millisecond)))
	case events.ObjectiveFailedEvent:
		return stamp(e.Timestamp) + " " + StyleStatusFailed.Render(fmt.Sprintf("objective %s failed: %s", e.ID, e.Reason))
	case events.TaskCreatedEvent:
		return fmt.Sprintf("%s task %s created (%s, %s)", stamp(e.Timestamp), e.ID, e.Type, e.Priority)
	case events.TaskAssignedEvent:
		return fmt.Sprintf("%s task %s assigned to %s", stamp(e.Timestamp), e.ID, e.AgentID)
	case events.TaskStartedEvent:
		return fmt.Sprintf("%s task %s started on %s (attempt %d)", stamp(e.Timestamp), e.ID, e.AgentID, e.Attempt)
	case events.TaskCompletedEvent:
		return stamp(e.Timestamp) + " " + StyleStatusComplete.Render(fmt.Sprintf("task %s completed in %s", e.ID, e.Duration.Round(time.Millisecond)))
	case events.TaskFailedEvent:
		return stamp(e.Timestamp) + " " + StyleStatusFailed.Render(fmt.Sprintf("task %s failed after %d attempts: %s", e.ID, e.Attempts, e.Err))
	case events.TaskRetriedEvent:
		return fmt.Sprintf("%s task %s retrying in %s (attempt %d failed: %s)", stamp(e.Timestamp), e.ID, e.Delay, e.Attempt, e.Err)
	case events.TaskCancelledEvent:
		return fmt.Sprintf("%s task %s cancelled: %s", stamp(e.Timestamp), e.ID, e.Reason)
	case events.TaskRequeuedEvent:
		return fmt.Sprintf("%s task %s requeued: %s", stamp(e.Timestamp), e.ID, e.Reason)
	case events.TaskStolenEvent:
		return fmt.Sprintf("%s task %s stolen %s -> %s", stamp(e.Timestamp), e.ID, e.FromAgent, e.ToAgent)
	case events.AgentRegisteredEvent:
		return fmt.Sprintf("%s agent %s (%s) registered", stamp(e.Timestamp), e.Name, e.ID)
	case events.AgentHeartbeatEvent:
		return ""
	case events.AgentOfflineEvent:
		return stamp(e.Timestamp) + " " + StyleStatusFailed.Render(fmt.Sprintf("agent %s offline: %s", e.ID, e.Reason))
	case events.AgentOnlineEvent:
		return fmt.Sprintf("%s agent %s back online", stamp(e.Timestamp), e.ID)
	case events.BreakerStateEvent:
		return stamp(e.Timestamp) + " " + StyleBreakerOpen.Render(fmt.Sprintf("breaker for %s: %s -> %s", e.AgentID, e.From, e.To))
	case events.StartedEvent:
		return fmt.Sprintf("%s coordinator started", stamp(e.Timestamp))
	case events.StoppedEvent:
		return fmt.Sprintf("%s coordinator stopped", stamp(e.Timestamp))
	default:
		return fmt.Sprintf("%s %s %s", stamp(time.Now()), ev.EventType(), ev.Subject())
	}
}

// View renders the log pane.
func (m LogPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	title := StyleTitle.Render("Events")
	header := title + "\n" + strings.Repeat("=", lipgloss.Width(title)) + "\n"

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(header + m.viewport.View())
}

// refreshContent pushes accumulated lines into the viewport.
func (m *LogPaneModel) refreshContent() {
	if len(m.lines) == 0 {
		m.viewport.SetContent(StyleStatusPending.Render("Waiting for events..."))
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

// resizeViewport resizes the viewport based on pane dimensions.
func (m *LogPaneModel) resizeViewport() {
	w := m.width - 4
	h := m.height - 5 // borders plus the title block

	if w < 10 {
		w = 10
	}
	if h < 3 {
		h = 3
	}

	m.viewport.Width = w
	m.viewport.Height = h
	m.refreshContent()
}

// SetSize updates the pane dimensions.
func (m *LogPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *LogPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
