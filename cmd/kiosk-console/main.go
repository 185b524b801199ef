package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kiosk-gateway/entities"
)

const (
	defaultURL   = "http://localhost:5001"
	refreshEvery = 3 * time.Second
	eventRows    = 10
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(14)

	normalStyle = lipgloss.NewStyle().
			PaddingLeft(2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)
)

type model struct {
	api      *client
	status   entities.DeviceStatus
	health   entities.HealthSnapshot
	events   []entities.DeviceEvent
	message  string
	busy     bool
	updated  time.Time
	quitting bool
}

type snapshotMsg struct {
	status entities.DeviceStatus
	health entities.HealthSnapshot
	events []entities.DeviceEvent
}
type actionDoneMsg struct{ text string }
type tickMsg struct{}
type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

func initialModel(api *client) model {
	return model{api: api}
}

func (m model) Init() tea.Cmd {
	return refresh(m.api)
}

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(time.Time) tea.Msg { return tickMsg{} })
}

func refresh(api *client) tea.Cmd {
	return func() tea.Msg {
		status, err := api.status()
		if err != nil {
			return errMsg{err}
		}
		health, err := api.health()
		if err != nil {
			return errMsg{err}
		}
		events, err := api.recentEvents(eventRows)
		if err != nil {
			return errMsg{err}
		}
		return snapshotMsg{status: status, health: health, events: events}
	}
}

func runAction(text string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return errMsg{err}
		}
		return actionDoneMsg{text: text}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit

		case "r":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.message = "Resetting device..."
			return m, runAction("Device reset completed", m.api.reset)

		case "m":
			if m.busy {
				return m, nil
			}
			m.busy = true
			if m.status.Status == string(entities.StateMaintenance) {
				m.message = "Leaving maintenance..."
				return m, runAction("Maintenance stopped", m.api.stopMaintenance)
			}
			m.message = "Entering maintenance..."
			return m, runAction("Maintenance started", func() error {
				return m.api.startMaintenance("Operator console")
			})
		}

	case snapshotMsg:
		m.status = msg.status
		m.health = msg.health
		m.events = msg.events
		m.updated = time.Now()
		return m, tick()

	case actionDoneMsg:
		m.busy = false
		m.message = successStyle.Render("✓ " + msg.text)
		return m, refresh(m.api)

	case tickMsg:
		return m, refresh(m.api)

	case errMsg:
		m.busy = false
		m.message = errorStyle.Render("✗ " + msg.err.Error())
		return m, tick()
	}

	return m, nil
}

func stateStyle(state string) lipgloss.Style {
	switch entities.DeviceState(state) {
	case entities.StateReady, entities.StatePrinting, entities.StateCalling:
		return successStyle
	case entities.StateError:
		return errorStyle
	}
	return warnStyle
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("Kiosk Console " + m.api.baseURL))
	s.WriteString("\n")

	state := m.status.Status
	if state == "" {
		state = "unknown"
	}
	s.WriteString(labelStyle.Render("Device") + m.status.DeviceID + "\n")
	s.WriteString(labelStyle.Render("State") + stateStyle(state).Render(state) + "\n")
	s.WriteString(labelStyle.Render("Printer") + m.status.PrinterStatus + "\n")
	if !m.updated.IsZero() {
		s.WriteString(labelStyle.Render("Updated") + m.updated.Format("15:04:05") + "\n")
	}

	s.WriteString("\n" + titleStyle.Render("Components") + "\n")
	keys := make([]string, 0, len(m.health.Components))
	for k := range m.health.Components {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c := m.health.Components[k]
		mark := successStyle.Render("●")
		if !c.IsHealthy {
			mark = errorStyle.Render("●")
		}
		s.WriteString(normalStyle.Render(fmt.Sprintf("%s %-12s %s", mark, k, c.Status)) + "\n")
	}

	s.WriteString("\n" + titleStyle.Render("Recent events") + "\n")
	if len(m.events) == 0 {
		s.WriteString(normalStyle.Render("(none)") + "\n")
	}
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		s.WriteString(normalStyle.Render(fmt.Sprintf("%s  %-16s %s", e.Timestamp.Local().Format("15:04:05"), e.Type, e.Description)) + "\n")
	}

	if m.message != "" {
		s.WriteString("\n" + m.message + "\n")
	}
	s.WriteString(helpStyle.Render("r reset • m toggle maintenance • q quit"))
	s.WriteString("\n")
	return s.String()
}

func main() {
	url := flag.String("url", envOr("KIOSK_URL", defaultURL), "base URL of the kiosk gateway")
	flag.Parse()

	p := tea.NewProgram(initialModel(newClient(*url)))
	if _, err := p.Run(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
