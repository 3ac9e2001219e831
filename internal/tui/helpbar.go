package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// Focus indicates which panel is focused.
type Focus int

const (
	FocusProjectList Focus = iota
	FocusOutputView
)

// HelpBar displays context-sensitive keyboard shortcuts at the bottom of the TUI.
type HelpBar struct {
	width int
	keys  KeyBindings
	focus Focus

	errorMsg string
}

// NewHelpBar creates a new help bar component.
func NewHelpBar() HelpBar {
	return HelpBar{keys: DefaultKeyBindings()}
}

// SetWidth updates the help bar width.
func (h *HelpBar) SetWidth(width int) {
	h.width = width
}

// SetFocus updates which pane's shortcuts are shown.
func (h *HelpBar) SetFocus(focus Focus) {
	h.focus = focus
}

// SetError sets the error message to display.
func (h *HelpBar) SetError(msg string) {
	h.errorMsg = msg
}

// ClearError clears the error message.
func (h *HelpBar) ClearError() {
	h.errorMsg = ""
}

// View renders the help bar.
func (h HelpBar) View() string {
	if h.errorMsg != "" {
		return errorBarStyle.Width(h.width).Render("Error: " + h.errorMsg)
	}

	var bindings []key.Binding
	switch h.focus {
	case FocusProjectList:
		bindings = []key.Binding{h.keys.Up, h.keys.Down, h.keys.Start, h.keys.Stop, h.keys.Tab, h.keys.Quit}
	case FocusOutputView:
		bindings = []key.Binding{h.keys.Up, h.keys.Down, h.keys.PageUp, h.keys.PageDown, h.keys.Clear, h.keys.Tab, h.keys.Quit}
	}

	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		help := b.Help()
		parts = append(parts, helpKeyStyle.Render(help.Key)+" "+help.Desc)
	}
	return helpBarStyle.Width(h.width).Render(strings.Join(parts, "  "))
}
