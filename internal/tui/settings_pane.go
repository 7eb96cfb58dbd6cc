package tui

import (
	"fmt"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/mlanders/swarmd/internal/config"
	"github.com/mlanders/swarmd/internal/strategy"
)

// SettingsPaneModel manages the settings form overlay. Edits are written
// to a config file and take effect on the next run; the live coordinator
// keeps the configuration it started with.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.Config
	userPath    string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings (strings for Huh)
	saveTarget    string
	strategyName  string
	interval      string
	maxConcurrent string
	taskTimeout   string
	logLevel      string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.Config, userPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		userPath:    userPath,
		projectPath: projectPath,

		saveTarget:    "user",
		strategyName:  cfg.Scheduling.Strategy,
		interval:      cfg.Scheduling.Interval.String(),
		maxConcurrent: strconv.Itoa(cfg.Limits.MaxConcurrentTasks),
		taskTimeout:   cfg.Scheduling.TaskTimeout.String(),
		logLevel:      cfg.Logging.Level,
	}

	m.buildForm()
	return m
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("User ("+m.userPath+")", "user"),
					huh.NewOption("Project (.swarmd.yaml)", "project"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Key("strategy").
				Title("Scheduling Strategy").
				Options(
					huh.NewOption("Capability match", strategy.NameCapabilityMatch),
					huh.NewOption("Round robin", strategy.NameRoundRobin),
					huh.NewOption("Least loaded", strategy.NameLeastLoaded),
					huh.NewOption("Affinity", strategy.NameAffinity),
				).
				Value(&m.strategyName),

			huh.NewInput().
				Key("interval").
				Title("Scheduling Interval").
				Value(&m.interval).
				Placeholder("500ms").
				Validate(validateDuration),

			huh.NewInput().
				Key("maxConcurrent").
				Title("Max Concurrent Tasks").
				Value(&m.maxConcurrent).
				Placeholder("10").
				Validate(validatePositiveInt),

			huh.NewInput().
				Key("taskTimeout").
				Title("Default Task Timeout").
				Value(&m.taskTimeout).
				Placeholder("5m").
				Validate(validateDuration),
		).Title("Scheduling"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Key("logLevel").
				Title("Log Level").
				Options(
					huh.NewOption("Debug", "debug"),
					huh.NewOption("Info", "info"),
					huh.NewOption("Warn", "warn"),
					huh.NewOption("Error", "error"),
				).
				Value(&m.logLevel),
		).Title("Logging"),
	)
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("not a duration (try 500ms, 5s, 2m)")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not a number")
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1")
	}
	return nil
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "esc" {
			// Cancel without saving
			m.visible = false
			m.saved = false
			return m, nil
		}
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.applyFormToConfig()

		targetPath := m.userPath
		if m.saveTarget == "project" {
			targetPath = m.projectPath
		}

		if err := config.Save(m.config, targetPath); err != nil {
			m.err = err
			m.saved = false
		} else {
			m.saved = true
			m.err = nil
			m.visible = false
		}
	}

	return m, cmd
}

// applyFormToConfig copies validated form values back to the config struct.
func (m *SettingsPaneModel) applyFormToConfig() {
	m.config.Scheduling.Strategy = m.strategyName
	if d, err := time.ParseDuration(m.interval); err == nil {
		m.config.Scheduling.Interval = d
	}
	if n, err := strconv.Atoi(m.maxConcurrent); err == nil {
		m.config.Limits.MaxConcurrentTasks = n
	}
	if d, err := time.ParseDuration(m.taskTimeout); err == nil {
		m.config.Scheduling.TaskTimeout = d
	}
	m.config.Logging.Level = m.logLevel
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string
	switch {
	case m.saved && m.form.State == huh.StateCompleted:
		content = StyleStatusComplete.Render("✓ Settings saved; they apply on the next run")
	case m.err != nil:
		content = StyleStatusFailed.Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	default:
		content = m.form.View()
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := StyleHeader.Render("⚙ Settings")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	// Rebuild on show so a cancelled edit does not linger.
	if v && m.form != nil {
		m.buildForm()
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}
