package tui

import (
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tessro/rig/internal/daemon"
)

// errStreamClosed is reported when the daemon closes the event stream.
var errStreamClosed = errors.New("event stream closed")

// Client is the daemon API the TUI needs. *daemon.Client implements it.
type Client interface {
	Connect() error
	IsConnected() bool
	ProjectList() (*daemon.ProjectListResponse, error)
	Start(project string) (*daemon.StartResponse, error)
	Stop(project string) (*daemon.StopResponse, error)
	StreamEvents(projects []string) (<-chan daemon.EventResult, error)
}

// attachToStreamCmd connects to the daemon event stream.
func attachToStreamCmd(client Client) tea.Cmd {
	return func() tea.Msg {
		if client == nil {
			return nil
		}
		eventChan, err := client.StreamEvents(nil)
		if err != nil {
			return streamEventMsg{Err: err}
		}
		return streamStartMsg{EventChan: eventChan}
	}
}

// waitForEventCmd waits for the next event from a channel.
func waitForEventCmd(eventChan <-chan daemon.EventResult) tea.Cmd {
	if eventChan == nil {
		return nil
	}
	return func() tea.Msg {
		result, ok := <-eventChan
		if !ok {
			return streamEventMsg{Err: errStreamClosed}
		}
		return streamEventMsg{Event: result.Event, Err: result.Err}
	}
}

// clearErrorCmd clears the error after a delay.
func clearErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
		return clearErrorMsg{}
	})
}

// setError shows err and schedules clearing it.
func (m *Model) setError(err error) tea.Cmd {
	m.err = err
	m.helpBar.SetError(err.Error())
	return clearErrorCmd()
}

func (m Model) waitForEvent() tea.Cmd {
	return waitForEventCmd(m.eventChan)
}

// attemptReconnect tries to reconnect to the daemon after a delay.
func (m Model) attemptReconnect() tea.Cmd {
	delay := m.reconnectDelay
	client := m.client
	return func() tea.Msg {
		time.Sleep(delay)

		if !client.IsConnected() {
			if err := client.Connect(); err != nil {
				return reconnectMsg{Err: err}
			}
		}
		eventChan, err := client.StreamEvents(nil)
		if err != nil {
			return reconnectMsg{Err: err}
		}
		return reconnectMsg{Success: true, EventChan: eventChan}
	}
}

// fetchProjects retrieves every project with its process state.
func (m Model) fetchProjects() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		if client == nil {
			return nil
		}
		resp, err := client.ProjectList()
		if err != nil {
			return projectListMsg{Err: err}
		}
		return projectListMsg{Projects: resp.Projects}
	}
}

// startProject asks the daemon to start project.
func (m Model) startProject(project string) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		resp, err := client.Start(project)
		if err != nil {
			return actionResultMsg{Project: project, Err: err}
		}
		return actionResultMsg{Project: project, Message: resp.Message}
	}
}

// stopProject asks the daemon to stop project.
func (m Model) stopProject(project string) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		resp, err := client.Stop(project)
		if err != nil {
			return actionResultMsg{Project: project, Err: err}
		}
		return actionResultMsg{Project: project, Message: resp.Message}
	}
}
