package tui

import (
	"github.com/tessro/rig/internal/daemon"
)

// streamEventMsg wraps a daemon stream event for Bubble Tea.
type streamEventMsg struct {
	Event *daemon.StreamEvent
	Err   error
}

// streamStartMsg is sent when the event stream is started successfully.
type streamStartMsg struct {
	EventChan <-chan daemon.EventResult
}

// projectListMsg contains the project list from the daemon.
type projectListMsg struct {
	Projects []daemon.ProcessInfo
	Err      error
}

// actionResultMsg is the result of a start or stop request.
type actionResultMsg struct {
	Project string
	Message string
	Err     error
}

// reconnectMsg signals the result of a reconnection attempt.
type reconnectMsg struct {
	Success   bool
	Err       error
	EventChan <-chan daemon.EventResult
}

// clearErrorMsg is sent to clear the error display after a timeout.
type clearErrorMsg struct{}
