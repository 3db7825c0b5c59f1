package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/existflow/ironsync/internal/model"
)

const sidebarWidth = 26

// View renders the UI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	sidebar := m.renderSidebar()
	taskList := m.renderTaskList()
	statusBar := m.renderStatusBar()

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, taskList)

	if m.mode == ModeAddTask || m.mode == ModeAddProject {
		mainContent = lipgloss.Place(
			m.width, m.height-2,
			lipgloss.Center, lipgloss.Center,
			m.renderModal(),
			lipgloss.WithWhitespaceChars(" "),
		)
	}

	if m.mode == ModeHelp {
		mainContent = m.renderHelp()
	}

	return lipgloss.JoinVertical(lipgloss.Left, mainContent, statusBar)
}

func (m Model) renderSidebar() string {
	var b strings.Builder

	now := time.Now().Format("15:04:05")
	b.WriteString(HeaderStyle.Render("ironsync") + "\n")
	b.WriteString(HelpStyle.Render(now) + "\n")
	if m.unread > 0 {
		b.WriteString(UnreadStyle.Render(fmt.Sprintf("● %d unread", m.unread)) + "\n")
	} else {
		b.WriteString(HelpStyle.Render("no unread") + "\n")
	}
	b.WriteString(rule(sidebarWidth-5) + "\n\n")

	if len(m.projects) == 0 {
		b.WriteString(HelpStyle.Render("No projects yet"))
	}

	for i, p := range m.projects {
		cursor := "  "
		style := ProjectItemStyle
		if i == m.projCursor {
			cursor = "❯ "
			if m.pane == PaneSidebar {
				style = ProjectItemSelectedStyle
			}
		}

		var line string
		if p.Provisional {
			line = cursor + truncate(p.Name, 12) + " " + SavingStyle.Render("saving")
		} else {
			line = fmt.Sprintf("%s%-12s %3d", cursor, truncate(p.Name, 12), m.store.TaskCount(p.ID))
		}
		b.WriteString(style.Render(line) + "\n")
	}

	b.WriteString("\n" + rule(sidebarWidth-5) + "\n")
	b.WriteString(HelpStyle.Render("p new project"))

	return SidebarStyle.Width(sidebarWidth).Height(m.height - 2).Render(b.String())
}

// openTasks counts the selected project's confirmed tasks not yet completed
func (m Model) openTasks() int {
	open := 0
	for _, t := range m.tasks {
		if !t.Provisional && t.Status != model.TaskCompleted {
			open++
		}
	}
	return open
}

func (m Model) renderTaskList() string {
	width := m.width - sidebarWidth - 2
	var b strings.Builder

	proj := m.currentProject()
	if proj == nil {
		return TaskListStyle.Width(width).Height(m.height - 2).Render("No project selected")
	}

	header := fmt.Sprintf("%s (%d open)", proj.Name, m.openTasks())
	if status, ok := model.ProjectStatusFromID(proj.StatusID); ok {
		header += "  " + HelpStyle.Render(string(status))
	}
	if !proj.DueDate.IsZero() {
		header += "  " + HelpStyle.Render("due "+proj.DueDate.String())
	}
	b.WriteString(HeaderStyle.Render(header) + "\n")
	b.WriteString(rule(max(width-4, 1)) + "\n\n")

	if len(m.tasks) == 0 {
		b.WriteString(HelpStyle.Render("  No tasks. Press 'a' to add one."))
	}

	now := time.Now()
	titleWidth := max(width-36, 10)
	for i, t := range m.tasks {
		cursor := "  "
		style := TaskItemStyle
		if i == m.taskCursor && m.pane == PaneTaskList {
			cursor = "❯ "
			style = TaskItemSelectedStyle
		}
		if t.Status == model.TaskCompleted {
			style = TaskDoneStyle
		}

		check := style.Render(cursor + StatusIcon(t.Status))
		title := style.Render(fmt.Sprintf(" %-*s ", titleWidth, truncate(t.Title, titleWidth)))

		var tail string
		switch {
		case t.Provisional:
			tail = SavingStyle.Render("saving")
		case t.Pending:
			tail = SavingStyle.Render("syncing")
		case t.IsOverdue(now):
			tail = ErrorStyle.Render("overdue " + t.DueDate.String())
		case t.IsDue(now):
			tail = DueSoonStyle.Render("due today")
		case !t.DueDate.IsZero():
			tail = HelpStyle.Render("due " + t.DueDate.String())
		}

		b.WriteString(check + title + FormatPriority(t.Priority) + " " + tail + "\n")
	}

	return TaskListStyle.Width(width).Height(m.height - 2).Render(b.String())
}

func (m Model) renderStatusBar() string {
	help := "a:add  x:done  s:status  1-4:priority  p:project  n:read  ?:help  q:quit"
	if m.message != "" {
		help = m.message
		if m.failed {
			help = ErrorStyle.Render(m.message)
		}
	}

	if m.inFlight > 0 {
		right := fmt.Sprintf("saving %d", m.inFlight)
		if avail := m.width - lipgloss.Width(help) - len(right) - 2; avail > 0 {
			help += strings.Repeat(" ", avail) + right
		} else {
			help += " " + right
		}
	}

	return StatusBarStyle.Width(m.width).Render(help)
}

func (m Model) renderModal() string {
	title := "New Project"
	if m.mode == ModeAddTask {
		title = "Add Task"
		if proj := m.currentProject(); proj != nil {
			title = fmt.Sprintf("Add Task to: %s", proj.Name)
		}
	}

	content := lipgloss.NewStyle().Bold(true).Render(title) + "\n\n"
	content += m.input.View() + "\n\n"
	content += HelpStyle.Render("Enter:save  Esc:cancel")

	return ModalStyle.Render(content)
}

// helpSections groups the bindings shown on the help screen.
var helpSections = []struct {
	title    string
	bindings []key.Binding
}{
	{"Navigation", []key.Binding{keys.Up, keys.Down, keys.Left, keys.Right, keys.Tab}},
	{"Edit", []key.Binding{keys.Add, keys.Project, keys.Done, keys.Status, keys.Priority, keys.Read}},
	{"Other", []key.Binding{keys.Help, keys.Quit}},
}

func (m Model) renderHelp() string {
	var b strings.Builder
	for i, sec := range helpSections {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(HeaderStyle.Render(sec.title) + "\n")
		for _, kb := range sec.bindings {
			h := kb.Help()
			fmt.Fprintf(&b, "  %-8s %s\n", h.Key, h.Desc)
		}
	}
	b.WriteString("\n" + HelpStyle.Render("any key closes this screen"))
	return lipgloss.Place(m.width, m.height-2, lipgloss.Center, lipgloss.Center, ModalStyle.Render(b.String()))
}
