// Package tui provides the Bubbletea-based process monitor for rig.
package tui

import (
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tessro/rig/internal/daemon"
)

// listWidth is the project list's share of the screen.
const listWidth = 32

// Model is the main Bubbletea model for the rig monitor.
type Model struct {
	width  int
	height int

	ready bool
	err   error
	focus Focus

	header      Header
	projectList ProjectList
	outputView  OutputView
	helpBar     HelpBar

	client    Client
	eventChan <-chan daemon.EventResult

	connState      ConnectionState
	reconnectDelay time.Duration
	reconnectCount int
	maxReconnects  int

	keys KeyBindings
}

// New creates a monitor model backed by client.
func New(client Client) Model {
	return Model{
		header:         NewHeader(),
		projectList:    NewProjectList(),
		outputView:     NewOutputView(),
		helpBar:        NewHelpBar(),
		client:         client,
		connState:      ConnectionConnected,
		reconnectDelay: 500 * time.Millisecond,
		maxReconnects:  10,
		keys:           DefaultKeyBindings(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if m.client == nil {
		return nil
	}
	return tea.Batch(m.fetchProjects(), attachToStreamCmd(m.client))
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.header.View()
	content := lipgloss.JoinHorizontal(lipgloss.Top, m.projectList.View(), m.outputView.View())
	status := m.helpBar.View()

	return fmt.Sprintf("%s\n%s\n%s", header, content, status)
}

// Run starts the monitor with a connected daemon client.
func Run(client Client) error {
	slog.Debug("tui.Run: starting")
	p := tea.NewProgram(
		New(client),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err := p.Run()
	slog.Debug("tui.Run: program exited", "error", err)
	return err
}
