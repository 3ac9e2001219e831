package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tessro/rig/internal/daemon"
)

// ProjectList shows every project and whether its process is running.
type ProjectList struct {
	projects []daemon.ProcessInfo
	selected int
	width    int
	height   int
}

// NewProjectList creates an empty project list.
func NewProjectList() ProjectList {
	return ProjectList{}
}

// SetSize updates the component dimensions.
func (l *ProjectList) SetSize(width, height int) {
	l.width = width
	l.height = height
}

// SetProjects replaces the list, keeping the selection on the same project
// when it still exists.
func (l *ProjectList) SetProjects(projects []daemon.ProcessInfo) {
	current := l.SelectedName()
	l.projects = projects
	l.selected = 0
	for i, p := range projects {
		if p.Project == current {
			l.selected = i
			break
		}
	}
}

// Projects returns the listed projects.
func (l *ProjectList) Projects() []daemon.ProcessInfo {
	return l.projects
}

// SelectedName returns the selected project's name, or empty.
func (l *ProjectList) SelectedName() string {
	if l.selected < 0 || l.selected >= len(l.projects) {
		return ""
	}
	return l.projects[l.selected].Project
}

// RunningCount returns how many listed projects are running.
func (l *ProjectList) RunningCount() int {
	n := 0
	for _, p := range l.projects {
		if p.Status == "running" {
			n++
		}
	}
	return n
}

// SetStatus updates one project's status in place. Unknown projects are
// appended.
func (l *ProjectList) SetStatus(project, status string, pid int, startedAt *time.Time) {
	for i := range l.projects {
		if l.projects[i].Project == project {
			l.projects[i].Status = status
			l.projects[i].PID = pid
			l.projects[i].StartedAt = startedAt
			return
		}
	}
	l.projects = append(l.projects, daemon.ProcessInfo{Project: project, Status: status, PID: pid, StartedAt: startedAt})
}

// PIDOf returns the listed PID of project, or zero.
func (l *ProjectList) PIDOf(project string) int {
	for _, p := range l.projects {
		if p.Project == project {
			return p.PID
		}
	}
	return 0
}

// MoveUp moves the selection up.
func (l *ProjectList) MoveUp() {
	if l.selected > 0 {
		l.selected--
	}
}

// MoveDown moves the selection down.
func (l *ProjectList) MoveDown() {
	if l.selected < len(l.projects)-1 {
		l.selected++
	}
}

// MoveToTop selects the first project.
func (l *ProjectList) MoveToTop() {
	l.selected = 0
}

// MoveToBottom selects the last project.
func (l *ProjectList) MoveToBottom() {
	if len(l.projects) > 0 {
		l.selected = len(l.projects) - 1
	}
}

// View renders the project list.
func (l ProjectList) View() string {
	if len(l.projects) == 0 {
		return listEmptyStyle.Width(l.width).Height(l.height).Render("No projects")
	}

	rows := make([]string, 0, len(l.projects))
	for i, p := range l.projects {
		rows = append(rows, l.renderProject(i, p))
	}
	return lipgloss.NewStyle().Width(l.width).Height(l.height).Render(strings.Join(rows, "\n"))
}

func (l ProjectList) renderProject(index int, p daemon.ProcessInfo) string {
	icon, style := "○", stoppedStyle
	if p.Status == "running" {
		icon, style = "●", runningStyle
	}

	left := lipgloss.JoinHorizontal(lipgloss.Center,
		style.Render(icon), " ",
		listNameStyle.Render(p.Project),
	)

	var right string
	if p.Status == "running" {
		info := fmt.Sprintf("pid %d", p.PID)
		if p.StartedAt != nil {
			info += " " + formatDuration(time.Since(*p.StartedAt).Truncate(time.Second))
		}
		right = listPIDStyle.Render(info)
	}

	spacerWidth := l.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	row := left + strings.Repeat(" ", spacerWidth) + right

	if index == l.selected {
		return listRowSelectedStyle.Width(l.width).Render(row)
	}
	return listRowStyle.Width(l.width).Render(row)
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
