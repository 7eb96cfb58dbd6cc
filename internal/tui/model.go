// Package tui renders a live dashboard over the coordinator's event bus:
// agent pool, task progress, and a scrolling event feed.
package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mlanders/swarmd/internal/config"
	"github.com/mlanders/swarmd/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneAgents PaneID = iota
	PaneLog
	PaneTasks
)

// Model is the root Bubble Tea model for the dashboard.
type Model struct {
	agentPane    AgentPaneModel
	taskPane     TaskPaneModel
	logPane      LogPaneModel
	settingsPane SettingsPaneModel
	spinner      spinner.Model
	focusedPane  PaneID
	eventSub     <-chan events.Event
	width        int
	height       int
	quitting     bool
	stopped      bool
	showSettings bool
}

// New creates the dashboard model. It subscribes to all coordinator events.
func New(bus *events.EventBus, cfg *config.Config, userPath, projectPath string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))

	m := Model{
		agentPane:    NewAgentPaneModel(),
		taskPane:     NewTaskPaneModel(),
		logPane:      NewLogPaneModel(),
		settingsPane: NewSettingsPaneModel(cfg, userPath, projectPath),
		spinner:      sp,
		focusedPane:  PaneAgents,
		eventSub:     bus.SubscribeAll(256),
	}
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.eventSub), m.spinner.Tick)
}

// waitForEvent returns a command that waits for the next bus event.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// An open settings panel captures all keys (modal behavior).
		if m.showSettings {
			switch msg.String() {
			case KeySettings, "esc":
				m.showSettings = false
				m.settingsPane.SetVisible(false)
			default:
				var cmd tea.Cmd
				m.settingsPane, cmd = m.settingsPane.Update(msg)
				cmds = append(cmds, cmd)

				// The pane closes itself after a save.
				if !m.settingsPane.IsVisible() {
					m.showSettings = false
				}
			}
			return m, tea.Batch(cmds...)
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % 3
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + 2) % 3 // +2 is -1 mod 3
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneAgents
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneLog
			m.updateFocusStates()

		case KeyPane3:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		default:
			// Delegate to the focused pane.
			var cmd tea.Cmd
			switch m.focusedPane {
			case PaneAgents:
				m.agentPane, cmd = m.agentPane.Update(msg)
			case PaneLog:
				m.logPane, cmd = m.logPane.Update(msg)
			case PaneTasks:
				m.taskPane, cmd = m.taskPane.Update(msg)
			}
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case spinner.TickMsg:
		if !m.stopped {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tickMsg:
		// Log pane debounce timer.
		var cmd tea.Cmd
		m.logPane, cmd = m.logPane.Update(msg)
		cmds = append(cmds, cmd)

	case events.Event:
		if _, ok := msg.(events.StoppedEvent); ok {
			m.stopped = true
		}

		// Every pane sees every event and keeps what it understands.
		var cmd tea.Cmd
		m.agentPane, cmd = m.agentPane.Update(msg)
		cmds = append(cmds, cmd)
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)
		m.logPane, cmd = m.logPane.Update(msg)
		cmds = append(cmds, cmd)

		cmds = append(cmds, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.showSettings {
		return m.settingsPane.View()
	}

	header := m.headerView()

	leftPane := m.agentPane.View()
	rightPane := lipgloss.JoinVertical(lipgloss.Left, m.logPane.View(), m.taskPane.View())
	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)

	return lipgloss.JoinVertical(lipgloss.Left, header, mainContent, HelpView())
}

// headerView renders the one-line status header.
func (m Model) headerView() string {
	status := m.spinner.View() + " running"
	if m.stopped {
		status = StyleStatusOffline.Render("stopped")
	}
	return StyleHeader.Render("swarmd") + " " + status
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	availableHeight := m.height - 2 // header and help bar

	leftWidth := (m.width * 35) / 100
	rightWidth := m.width - leftWidth
	logHeight := (availableHeight * 60) / 100
	taskHeight := availableHeight - logHeight

	m.agentPane.SetSize(leftWidth, availableHeight)
	m.logPane.SetSize(rightWidth, logHeight)
	m.taskPane.SetSize(rightWidth, taskHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.agentPane.SetFocused(m.focusedPane == PaneAgents)
	m.logPane.SetFocused(m.focusedPane == PaneLog)
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
}
