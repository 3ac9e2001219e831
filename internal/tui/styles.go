package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	primaryColor   = lipgloss.Color("#0EA5E9") // Sky
	secondaryColor = lipgloss.Color("#10B981") // Green
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	errorColor     = lipgloss.Color("#EF4444") // Red
	warningColor   = lipgloss.Color("#F59E0B") // Amber

	// Header styles
	headerContainerStyle = lipgloss.NewStyle().
				Background(primaryColor)

	headerBrandStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(primaryColor).
				Padding(0, 1)

	headerStatsStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#E0E0E0")).
				Background(primaryColor).
				Padding(0, 1)

	headerConnDisconnectedStyle = lipgloss.NewStyle().
					Foreground(errorColor).
					Background(primaryColor)

	headerConnReconnectingStyle = lipgloss.NewStyle().
					Foreground(warningColor).
					Background(primaryColor)

	// Project list styles
	listEmptyStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(1, 2)

	listRowStyle = lipgloss.NewStyle().
			Padding(0, 1)

	listRowSelectedStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("#3B3B3B")).
				Padding(0, 1)

	listNameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true)

	listPIDStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	// Output view styles
	outputBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(mutedColor)

	outputBorderFocusedStyle = lipgloss.NewStyle().
					Border(lipgloss.RoundedBorder()).
					BorderForeground(primaryColor)

	outputHeaderStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("#2D2D2D")).
				Padding(0, 1)

	outputHeaderFocusedStyle = lipgloss.NewStyle().
					Background(primaryColor).
					Padding(0, 1)

	outputProjectStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFFFF")).
				Bold(true)

	outputEmptyStyle = lipgloss.NewStyle().
				Foreground(mutedColor).
				Padding(1, 2)

	stderrStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	lifecycleStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	// Help bar styles
	helpBarStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	errorBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(errorColor).
			Padding(0, 1)

	runningStyle = lipgloss.NewStyle().Foreground(secondaryColor)
	stoppedStyle = lipgloss.NewStyle().Foreground(mutedColor)
)
