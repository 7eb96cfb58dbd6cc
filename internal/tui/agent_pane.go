package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mlanders/swarmd/internal/events"
)

// AgentRow is the display state of one registered agent, reconstructed
// from the event stream.
type AgentRow struct {
	ID          string
	Name        string
	Type        string
	Status      string // "idle", "busy", "offline"
	CurrentTask string
	Completed   int
	Failed      int
	Breaker     string // last reported breaker state, "" means closed
	OfflineWhy  string
	LastBeat    time.Time
}

// AgentPaneModel lists registered agents with their live status.
type AgentPaneModel struct {
	agents      map[string]*AgentRow
	agentOrder  []string // registration order for display
	selectedIdx int
	width       int
	height      int
	focused     bool
}

// NewAgentPaneModel creates a new agent pane model.
func NewAgentPaneModel() AgentPaneModel {
	return AgentPaneModel{
		agents: make(map[string]*AgentRow),
	}
}

// Update handles messages for the agent pane.
func (m AgentPaneModel) Update(msg tea.Msg) (AgentPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.agentOrder)-1 {
				m.selectedIdx++
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
		}

	case events.AgentRegisteredEvent:
		if _, exists := m.agents[msg.ID]; !exists {
			m.agents[msg.ID] = &AgentRow{
				ID:       msg.ID,
				Name:     msg.Name,
				Type:     msg.Type,
				Status:   "idle",
				LastBeat: msg.Timestamp,
			}
			m.agentOrder = append(m.agentOrder, msg.ID)
		}

	case events.AgentHeartbeatEvent:
		if row, exists := m.agents[msg.ID]; exists {
			row.LastBeat = msg.Timestamp
		}

	case events.AgentOfflineEvent:
		if row, exists := m.agents[msg.ID]; exists {
			row.Status = "offline"
			row.OfflineWhy = msg.Reason
			row.CurrentTask = ""
		}

	case events.AgentOnlineEvent:
		if row, exists := m.agents[msg.ID]; exists {
			row.Status = "idle"
			row.OfflineWhy = ""
		}

	case events.BreakerStateEvent:
		if row, exists := m.agents[msg.AgentID]; exists {
			if msg.To == "closed" {
				row.Breaker = ""
			} else {
				row.Breaker = msg.To
			}
		}

	case events.TaskStartedEvent:
		if row, exists := m.agents[msg.AgentID]; exists {
			row.Status = "busy"
			row.CurrentTask = msg.ID
		}

	case events.TaskCompletedEvent:
		if row, exists := m.agents[msg.AgentID]; exists {
			row.Completed++
			m.releaseRow(row, msg.ID)
		}

	case events.TaskFailedEvent:
		if row, exists := m.agents[msg.AgentID]; exists {
			row.Failed++
			m.releaseRow(row, msg.ID)
		}

	case events.TaskRetriedEvent:
		// The retrying agent is released; find it by current task.
		for _, row := range m.agents {
			m.releaseRow(row, msg.ID)
		}

	case events.TaskCancelledEvent:
		for _, row := range m.agents {
			m.releaseRow(row, msg.ID)
		}
	}

	return m, nil
}

// releaseRow returns an agent to idle if it was busy with the given task.
// Offline agents stay offline.
func (m *AgentPaneModel) releaseRow(row *AgentRow, taskID string) {
	if row.CurrentTask != taskID {
		return
	}
	row.CurrentTask = ""
	if row.Status == "busy" {
		row.Status = "idle"
	}
}

// View renders the agent pane.
func (m AgentPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Agents")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(m.width-2, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.agentOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("No agents registered"))
	} else {
		for i, id := range m.agentOrder {
			row := m.agents[id]
			line := m.renderRow(row)
			if i == m.selectedIdx && m.focused {
				line = StyleSelected.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}

		if sel := m.selectedRow(); sel != nil {
			b.WriteString("\n")
			b.WriteString(m.renderDetail(sel))
		}
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

// renderRow renders a single agent line.
func (m AgentPaneModel) renderRow(row *AgentRow) string {
	icon := m.StatusIcon(row.Status)

	name := row.Name
	maxName := m.width - 14
	if maxName > 3 && len(name) > maxName {
		name = name[:maxName-3] + "..."
	}

	suffix := ""
	if row.Breaker != "" {
		suffix = " " + StyleBreakerOpen.Render("[breaker "+row.Breaker+"]")
	}

	return fmt.Sprintf("%s %s (%d/%d)%s", icon, name, row.Completed, row.Completed+row.Failed, suffix)
}

// renderDetail renders the detail block for the selected agent.
func (m AgentPaneModel) renderDetail(row *AgentRow) string {
	var b strings.Builder
	b.WriteString(StyleDim.Render(fmt.Sprintf("id:    %s", row.ID)))
	b.WriteString("\n")
	b.WriteString(StyleDim.Render(fmt.Sprintf("type:  %s", row.Type)))
	b.WriteString("\n")
	switch {
	case row.Status == "offline":
		b.WriteString(StyleStatusFailed.Render(fmt.Sprintf("offline: %s", row.OfflineWhy)))
	case row.CurrentTask != "":
		b.WriteString(StyleStatusRunning.Render(fmt.Sprintf("running: %s", row.CurrentTask)))
	default:
		b.WriteString(StyleDim.Render("waiting for work"))
	}
	return b.String()
}

// StatusIcon returns a styled status indicator.
func (m AgentPaneModel) StatusIcon(status string) string {
	switch status {
	case "busy":
		return StyleStatusRunning.Render("●")
	case "idle":
		return StyleStatusComplete.Render("○")
	case "offline":
		return StyleStatusOffline.Render("✗")
	default:
		return StyleStatusPending.Render("?")
	}
}

// selectedRow returns the currently selected agent, or nil.
func (m AgentPaneModel) selectedRow() *AgentRow {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.agentOrder) {
		return m.agents[m.agentOrder[m.selectedIdx]]
	}
	return nil
}

// SetSize updates the pane dimensions.
func (m *AgentPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *AgentPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
