package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ConnectionState is the daemon connection status shown in the header.
type ConnectionState int

const (
	ConnectionConnected ConnectionState = iota
	ConnectionDisconnected
	ConnectionReconnecting
)

// Header displays branding, connection state and process counts.
type Header struct {
	width int

	projectCount int
	runningCount int

	connState ConnectionState
}

// NewHeader creates a new header component.
func NewHeader() Header {
	return Header{connState: ConnectionConnected}
}

// SetWidth updates the header width.
func (h *Header) SetWidth(width int) {
	h.width = width
}

// SetCounts updates the project statistics.
func (h *Header) SetCounts(total, running int) {
	h.projectCount = total
	h.runningCount = running
}

// SetConnectionState updates the connection state display.
func (h *Header) SetConnectionState(state ConnectionState) {
	h.connState = state
}

// View renders the header.
func (h Header) View() string {
	brand := headerBrandStyle.Render("rig")

	var connStatus string
	switch h.connState {
	case ConnectionDisconnected:
		connStatus = headerConnDisconnectedStyle.Render(" ● disconnected")
	case ConnectionReconnecting:
		connStatus = headerConnReconnectingStyle.Render(" ◌ reconnecting...")
	}

	var stats string
	if h.connState == ConnectionConnected {
		stats = headerStatsStyle.Render(fmt.Sprintf("%d/%d running", h.runningCount, h.projectCount))
	}

	left := brand + connStatus
	spacerWidth := h.width - lipgloss.Width(left) - lipgloss.Width(stats)
	if spacerWidth < 0 {
		spacerWidth = 0
	}
	spacer := headerContainerStyle.Render(strings.Repeat(" ", spacerWidth))

	return left + spacer + stats
}
