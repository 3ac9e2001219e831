package tui

import (
	"fmt"
	"log/slog"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tessro/rig/internal/daemon"
)

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.layout()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if msg.Button == tea.MouseButtonWheelUp {
			m.outputView.ScrollUp(3)
		} else if msg.Button == tea.MouseButtonWheelDown {
			m.outputView.ScrollDown(3)
		}

	case projectListMsg:
		if msg.Err != nil {
			cmds = append(cmds, m.setError(msg.Err))
			break
		}
		m.projectList.SetProjects(msg.Projects)
		m.syncSelection()

	case actionResultMsg:
		if msg.Err != nil {
			cmds = append(cmds, m.setError(msg.Err))
		}
		cmds = append(cmds, m.fetchProjects())

	case streamStartMsg:
		m.eventChan = msg.EventChan
		m.connState = ConnectionConnected
		m.header.SetConnectionState(ConnectionConnected)
		cmds = append(cmds, m.waitForEvent())

	case streamEventMsg:
		if msg.Err != nil {
			slog.Debug("tui: event stream error", "error", msg.Err)
			m.eventChan = nil
			m.connState = ConnectionDisconnected
			m.header.SetConnectionState(ConnectionDisconnected)
			if m.client != nil && m.reconnectCount < m.maxReconnects {
				m.connState = ConnectionReconnecting
				m.header.SetConnectionState(ConnectionReconnecting)
				m.reconnectCount++
				cmds = append(cmds, m.attemptReconnect())
			}
			break
		}
		m.handleStreamEvent(msg.Event)
		cmds = append(cmds, m.waitForEvent())

	case reconnectMsg:
		if !msg.Success {
			if m.reconnectCount < m.maxReconnects {
				m.reconnectCount++
				cmds = append(cmds, m.attemptReconnect())
			} else {
				m.connState = ConnectionDisconnected
				m.header.SetConnectionState(ConnectionDisconnected)
				cmds = append(cmds, m.setError(fmt.Errorf("daemon unreachable: %w", msg.Err)))
			}
			break
		}
		m.reconnectCount = 0
		m.eventChan = msg.EventChan
		m.connState = ConnectionConnected
		m.header.SetConnectionState(ConnectionConnected)
		cmds = append(cmds, m.waitForEvent(), m.fetchProjects())

	case clearErrorMsg:
		m.err = nil
		m.helpBar.ClearError()
	}

	m.header.SetCounts(len(m.projectList.Projects()), m.projectList.RunningCount())
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Tab):
		if m.focus == FocusProjectList {
			m.setFocus(FocusOutputView)
		} else {
			m.setFocus(FocusProjectList)
		}

	case key.Matches(msg, m.keys.Reconnect):
		if m.connState == ConnectionDisconnected && m.client != nil {
			m.reconnectCount = 0
			m.connState = ConnectionReconnecting
			m.header.SetConnectionState(ConnectionReconnecting)
			return m, m.attemptReconnect()
		}

	case key.Matches(msg, m.keys.Up):
		if m.focus == FocusProjectList {
			m.projectList.MoveUp()
			m.syncSelection()
		} else {
			m.outputView.ScrollUp(1)
		}

	case key.Matches(msg, m.keys.Down):
		if m.focus == FocusProjectList {
			m.projectList.MoveDown()
			m.syncSelection()
		} else {
			m.outputView.ScrollDown(1)
		}

	case key.Matches(msg, m.keys.Top):
		if m.focus == FocusProjectList {
			m.projectList.MoveToTop()
			m.syncSelection()
		} else {
			m.outputView.ScrollToTop()
		}

	case key.Matches(msg, m.keys.Bottom):
		if m.focus == FocusProjectList {
			m.projectList.MoveToBottom()
			m.syncSelection()
		} else {
			m.outputView.ScrollToBottom()
		}

	case key.Matches(msg, m.keys.PageUp):
		m.outputView.PageUp()

	case key.Matches(msg, m.keys.PageDown):
		m.outputView.PageDown()

	case key.Matches(msg, m.keys.Start):
		if p := m.projectList.SelectedName(); p != "" && m.client != nil {
			return m, m.startProject(p)
		}

	case key.Matches(msg, m.keys.Stop):
		if p := m.projectList.SelectedName(); p != "" && m.client != nil {
			return m, m.stopProject(p)
		}

	case key.Matches(msg, m.keys.Clear):
		m.outputView.Clear()
	}
	return m, nil
}

// handleStreamEvent applies one daemon event to the view.
func (m *Model) handleStreamEvent(ev *daemon.StreamEvent) {
	if ev == nil {
		return
	}
	switch ev.Type {
	case daemon.EventOutput:
		m.outputView.Append(ev.Project, ev.Data, ev.Stream == "stderr")
	case daemon.EventStarted:
		started := ev.Time
		m.projectList.SetStatus(ev.Project, "running", ev.PID, &started)
		m.outputView.Note(ev.Project, fmt.Sprintf("-- started (pid %d)", ev.PID))
	case daemon.EventStopped:
		m.projectList.SetStatus(ev.Project, "stopped", 0, nil)
		m.outputView.Note(ev.Project, "-- stopped")
	case daemon.EventExited:
		// An exit from a run that was already replaced leaves the row alone.
		if pid := m.projectList.PIDOf(ev.Project); pid == 0 || pid == ev.PID {
			m.projectList.SetStatus(ev.Project, "stopped", 0, nil)
		}
		note := "-- exited"
		if ev.ExitCode != nil {
			note = fmt.Sprintf("-- exited with code %d", *ev.ExitCode)
		}
		m.outputView.Note(ev.Project, note)
	}
	if m.outputView.Project() == "" {
		m.syncSelection()
	}
}

func (m *Model) setFocus(f Focus) {
	m.focus = f
	m.outputView.SetFocused(f == FocusOutputView)
	m.helpBar.SetFocus(f)
}

// syncSelection shows the selected project's output.
func (m *Model) syncSelection() {
	m.outputView.SetProject(m.projectList.SelectedName())
}

func (m *Model) layout() {
	// Header and help bar take one row each.
	contentHeight := max(m.height-2, 1)
	lw := min(listWidth, m.width/3)

	m.header.SetWidth(m.width)
	m.helpBar.SetWidth(m.width)
	m.projectList.SetSize(lw, contentHeight)
	m.outputView.SetSize(m.width-lw, contentHeight)
}
