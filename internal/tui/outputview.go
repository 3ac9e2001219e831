package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

// maxLines caps the lines kept per project.
const maxLines = 2000

// outputLine is one line of process output or a lifecycle note.
type outputLine struct {
	text   string
	stderr bool
	note   bool
}

// projectOutput accumulates one project's output. Chunks are split on
// newlines; a trailing partial line stays open for the next chunk.
type projectOutput struct {
	lines   []outputLine
	partial bool
}

func (o *projectOutput) append(data string, stderr bool) {
	for data != "" {
		line, rest, found := strings.Cut(data, "\n")
		if o.partial && len(o.lines) > 0 && o.lines[len(o.lines)-1].stderr == stderr {
			o.lines[len(o.lines)-1].text += line
		} else {
			o.lines = append(o.lines, outputLine{text: line, stderr: stderr})
		}
		o.partial = !found
		data = rest
	}
	o.trim()
}

func (o *projectOutput) note(text string) {
	o.lines = append(o.lines, outputLine{text: text, note: true})
	o.partial = false
	o.trim()
}

func (o *projectOutput) trim() {
	if len(o.lines) > maxLines {
		o.lines = o.lines[len(o.lines)-maxLines:]
	}
}

// OutputView shows the selected project's output in a scrolling viewport.
type OutputView struct {
	outputs  map[string]*projectOutput
	project  string
	width    int
	height   int
	focused  bool
	viewport viewport.Model
	ready    bool
}

// NewOutputView creates an empty output view.
func NewOutputView() OutputView {
	return OutputView{outputs: make(map[string]*projectOutput)}
}

// SetSize updates the component dimensions.
func (v *OutputView) SetSize(width, height int) {
	v.width = width
	v.height = height

	// Border takes two columns and rows; the header one more row.
	contentWidth := max(width-2, 1)
	contentHeight := max(height-3, 1)

	if !v.ready {
		v.viewport = viewport.New(contentWidth, contentHeight)
		v.ready = true
	} else {
		v.viewport.Width = contentWidth
		v.viewport.Height = contentHeight
	}
	v.updateContent()
}

// SetFocused sets the focus state.
func (v *OutputView) SetFocused(focused bool) {
	v.focused = focused
}

// SetProject switches the view to project's output.
func (v *OutputView) SetProject(project string) {
	if v.project == project {
		return
	}
	v.project = project
	v.updateContent()
	v.viewport.GotoBottom()
}

// Project returns the project being shown.
func (v *OutputView) Project() string {
	return v.project
}

// Append adds an output chunk for project.
func (v *OutputView) Append(project, data string, stderr bool) {
	v.output(project).append(data, stderr)
	v.refresh(project)
}

// Note adds a lifecycle line for project.
func (v *OutputView) Note(project, text string) {
	v.output(project).note(text)
	v.refresh(project)
}

// Clear drops the buffered output of the shown project.
func (v *OutputView) Clear() {
	delete(v.outputs, v.project)
	v.updateContent()
}

// Lines returns project's buffered lines as plain text.
func (v *OutputView) Lines(project string) []string {
	o := v.outputs[project]
	if o == nil {
		return nil
	}
	out := make([]string, len(o.lines))
	for i, l := range o.lines {
		out[i] = l.text
	}
	return out
}

func (v *OutputView) output(project string) *projectOutput {
	o := v.outputs[project]
	if o == nil {
		o = &projectOutput{}
		v.outputs[project] = o
	}
	return o
}

// refresh re-renders if project is shown, following the tail when the
// viewport was already at the bottom.
func (v *OutputView) refresh(project string) {
	if project != v.project {
		return
	}
	atBottom := v.viewport.AtBottom()
	v.updateContent()
	if atBottom {
		v.viewport.GotoBottom()
	}
}

// ScrollUp scrolls the viewport up.
func (v *OutputView) ScrollUp(n int) { v.viewport.LineUp(n) }

// ScrollDown scrolls the viewport down.
func (v *OutputView) ScrollDown(n int) { v.viewport.LineDown(n) }

// ScrollToTop scrolls to the top.
func (v *OutputView) ScrollToTop() { v.viewport.GotoTop() }

// ScrollToBottom scrolls to the bottom.
func (v *OutputView) ScrollToBottom() { v.viewport.GotoBottom() }

// PageUp scrolls up by one page.
func (v *OutputView) PageUp() { v.viewport.ViewUp() }

// PageDown scrolls down by one page.
func (v *OutputView) PageDown() { v.viewport.ViewDown() }

func (v *OutputView) updateContent() {
	if !v.ready {
		return
	}
	o := v.outputs[v.project]
	if o == nil {
		v.viewport.SetContent("")
		return
	}

	wrapAt := max(v.viewport.Width, 1)
	rendered := make([]string, 0, len(o.lines))
	for _, l := range o.lines {
		text := wordwrap.String(l.text, wrapAt)
		switch {
		case l.note:
			text = lifecycleStyle.Render(text)
		case l.stderr:
			text = stderrStyle.Render(text)
		}
		rendered = append(rendered, text)
	}
	v.viewport.SetContent(strings.Join(rendered, "\n"))
}

// View renders the output view.
func (v OutputView) View() string {
	border := outputBorderStyle
	headerStyle := outputHeaderStyle
	if v.focused {
		border = outputBorderFocusedStyle
		headerStyle = outputHeaderFocusedStyle
	}

	if v.project == "" {
		empty := outputEmptyStyle.Width(v.width - 2).Height(v.height - 2).Render("Select a project to view output")
		return border.Render(empty)
	}

	header := headerStyle.Width(v.width - 2).Render(outputProjectStyle.Render(v.project))

	var content string
	if o := v.outputs[v.project]; o == nil || len(o.lines) == 0 {
		content = outputEmptyStyle.Width(v.width - 2).Height(v.height - 3).Render("No output yet")
	} else {
		content = v.viewport.View()
	}

	return border.Render(lipgloss.JoinVertical(lipgloss.Left, header, content))
}
