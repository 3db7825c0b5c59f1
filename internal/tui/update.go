package tui

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/existflow/ironsync/internal/gateway"
	"github.com/existflow/ironsync/internal/logger"
	"github.com/existflow/ironsync/internal/model"
)

// tickMsg is sent every second for the clock
type tickMsg time.Time

// storeChangedMsg is sent after the store changed
type storeChangedMsg struct{}

// mutationMsg reports a finished gateway call
type mutationMsg struct {
	done string
	err  error
}

// Init starts the clock and the store listener
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.waitForChange())
}

func tickCmd() tea.Cmd {
	return tea.Every(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForChange blocks until the store reports a change
func (m Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		<-m.changes
		return storeChangedMsg{}
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tickCmd()

	case storeChangedMsg:
		m.loadData()
		return m, m.waitForChange()

	case mutationMsg:
		m.inFlight--
		if msg.err != nil {
			m.failed = true
			m.message = errorText(msg.err)
			m.log.Warn("Mutation failed", logger.F("error", msg.err))
		} else {
			m.failed = false
			m.message = msg.done
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case ModeAddTask, ModeAddProject:
			return m.updateInput(msg)
		case ModeHelp:
			m.mode = ModeNormal
			return m, nil
		}
		return m.handleNormalKeys(msg)
	}

	return m, nil
}

// handleNormalKeys handles key presses in normal mode
func (m Model) handleNormalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Tab):
		if m.pane == PaneSidebar {
			m.pane = PaneTaskList
		} else {
			m.pane = PaneSidebar
		}

	case key.Matches(msg, keys.Left):
		m.pane = PaneSidebar

	case key.Matches(msg, keys.Right):
		m.pane = PaneTaskList

	case key.Matches(msg, keys.Up):
		m.handleUp()

	case key.Matches(msg, keys.Down):
		m.handleDown()

	case key.Matches(msg, keys.Enter):
		if m.pane == PaneSidebar {
			m.pane = PaneTaskList
			return m, nil
		}
		return m.toggleDone()

	case key.Matches(msg, keys.Done):
		return m.toggleDone()

	case key.Matches(msg, keys.Status):
		if t := m.currentTask(); t != nil {
			return m.updateTask(*t, model.TaskPatch{Status: model.Some(nextStatus(t.Status))})
		}

	case key.Matches(msg, keys.Priority):
		if t := m.currentTask(); t != nil {
			return m.updateTask(*t, model.TaskPatch{Priority: model.Some(priorityKeys[msg.String()])})
		}

	case key.Matches(msg, keys.Add):
		return m.startInput(ModeAddTask, "Task title...")

	case key.Matches(msg, keys.Project):
		return m.startInput(ModeAddProject, "Project name...")

	case key.Matches(msg, keys.Read):
		return m.markRead()

	case key.Matches(msg, keys.Help):
		m.mode = ModeHelp
	}

	return m, nil
}

func (m *Model) handleUp() {
	if m.pane == PaneSidebar {
		if m.projCursor > 0 {
			m.projCursor--
			m.taskCursor = 0
			m.loadData()
		}
		return
	}
	if m.taskCursor > 0 {
		m.taskCursor--
	}
}

func (m *Model) handleDown() {
	if m.pane == PaneSidebar {
		if m.projCursor < len(m.projects)-1 {
			m.projCursor++
			m.taskCursor = 0
			m.loadData()
		}
		return
	}
	if m.taskCursor < len(m.tasks)-1 {
		m.taskCursor++
	}
}

func (m Model) startInput(mode Mode, placeholder string) (tea.Model, tea.Cmd) {
	if mode == ModeAddTask && m.currentProject() == nil {
		m.message = "Create a project first (p)"
		return m, nil
	}
	m.mode = mode
	m.input.Reset()
	m.input.Placeholder = placeholder
	m.input.Focus()
	return m, textinput.Blink
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Escape):
		m.mode = ModeNormal
		m.input.Blur()
		return m, nil

	case key.Matches(msg, keys.Enter):
		value := m.input.Value()
		mode := m.mode
		m.mode = ModeNormal
		m.input.Blur()
		if value == "" {
			return m, nil
		}

		switch mode {
		case ModeAddTask:
			proj := m.currentProject()
			if proj == nil {
				return m, nil
			}
			in := gateway.CreateTaskInput{ProjectID: proj.ID, Title: value}
			return m.run(fmt.Sprintf("Added: %s", value), func() error {
				_, err := m.gw.CreateTask(m.ctx, in)
				return err
			})
		case ModeAddProject:
			team := m.teamForNewProject()
			in := gateway.CreateProjectInput{TeamID: team, Name: value}
			return m.run(fmt.Sprintf("Created project: %s", value), func() error {
				_, err := m.gw.CreateProject(m.ctx, in)
				return err
			})
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// teamForNewProject is the selected project's team, or the user's first team
func (m Model) teamForNewProject() string {
	if p := m.currentProject(); p != nil {
		return p.TeamID
	}
	if len(m.identity.TeamIDs) > 0 {
		return m.identity.TeamIDs[0]
	}
	return ""
}

func (m Model) toggleDone() (tea.Model, tea.Cmd) {
	t := m.currentTask()
	if t == nil {
		return m, nil
	}
	status := model.TaskCompleted
	if t.Status == model.TaskCompleted {
		status = model.TaskTodo
	}
	return m.updateTask(*t, model.TaskPatch{Status: model.Some(status)})
}

func (m Model) updateTask(t model.Task, patch model.TaskPatch) (tea.Model, tea.Cmd) {
	if t.Provisional {
		m.message = "Still saving, try again in a moment"
		return m, nil
	}
	return m.run(fmt.Sprintf("Updated: %s", t.Title), func() error {
		_, err := m.gw.UpdateTask(m.ctx, t.ID, patch)
		return err
	})
}

func (m Model) markRead() (tea.Model, tea.Cmd) {
	n := m.oldestUnread()
	if n == nil {
		m.message = "No unread notifications"
		return m, nil
	}
	id, title := n.ID, n.Title
	return m.run(fmt.Sprintf("Read: %s", title), func() error {
		return m.gw.MarkNotificationRead(m.ctx, id)
	})
}

// run performs a gateway call off the update loop. The optimistic change is
// already in the store when the call starts, so the view updates at once.
func (m Model) run(done string, call func() error) (tea.Model, tea.Cmd) {
	m.inFlight++
	m.message = "Saving..."
	m.failed = false
	return m, func() tea.Msg {
		return mutationMsg{done: done, err: call()}
	}
}

func errorText(err error) string {
	var ve *gateway.ValidationError
	if errors.As(err, &ve) {
		return fmt.Sprintf("Invalid %s: %s", ve.Field, ve.Message)
	}
	var me *gateway.MutationError
	if errors.As(err, &me) {
		return fmt.Sprintf("Could not %s: %s", me.Op, me.Message())
	}
	return err.Error()
}
