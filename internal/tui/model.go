package tui

import (
	"context"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"

	"github.com/existflow/ironsync/internal/gateway"
	"github.com/existflow/ironsync/internal/logger"
	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/store"
)

// Pane represents which pane is focused
type Pane int

const (
	PaneSidebar Pane = iota
	PaneTaskList
)

// Mode represents the current UI mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeAddTask
	ModeAddProject
	ModeHelp
)

// Mutator is the part of the gateway the dashboard drives
type Mutator interface {
	CreateProject(ctx context.Context, in gateway.CreateProjectInput) (model.Project, error)
	CreateTask(ctx context.Context, in gateway.CreateTaskInput) (model.Task, error)
	UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// Model is the main TUI model. Everything it shows is read from the store;
// edits go through the gateway and come back as store changes.
type Model struct {
	ctx      context.Context
	store    *store.Store
	gw       Mutator
	identity model.Identity
	log      *logger.Logger

	changes chan struct{}
	unsub   *unsubscriber

	projects []model.Project
	tasks    []model.Task
	notes    []model.Notification
	unread   int

	// UI state
	width      int
	height     int
	pane       Pane
	mode       Mode
	projCursor int
	taskCursor int
	inFlight   int

	// Input
	input textinput.Model

	message string
	failed  bool
}

type unsubscriber struct {
	once sync.Once
	fn   func()
}

// NewModel creates a dashboard over st for the signed-in user
func NewModel(ctx context.Context, st *store.Store, gw Mutator, id model.Identity, log *logger.Logger) Model {
	if log == nil {
		log = logger.Nop()
	}

	ti := textinput.New()
	ti.CharLimit = 200
	ti.Width = 50

	m := Model{
		ctx:      ctx,
		store:    st,
		gw:       gw,
		identity: id,
		log:      log.Component("tui"),
		changes:  make(chan struct{}, 1),
		pane:     PaneSidebar,
		mode:     ModeNormal,
		input:    ti,
	}

	// Coalesce bursts of store changes into one pending refresh.
	changes := m.changes
	m.unsub = &unsubscriber{fn: st.Subscribe(func(store.Change) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})}

	m.loadData()
	m.log.Debug("TUI model initialized",
		logger.F("projects", len(m.projects)),
		logger.F("tasks", len(m.tasks)))
	return m
}

// Close stops listening to the store
func (m Model) Close() {
	m.unsub.once.Do(m.unsub.fn)
}

func (m *Model) loadData() {
	m.projects = m.projects[:0]
	for _, team := range m.identity.TeamIDs {
		m.projects = append(m.projects, m.store.Projects(team)...)
	}
	if m.projCursor >= len(m.projects) {
		m.projCursor = max(len(m.projects)-1, 0)
	}

	m.tasks = nil
	if p := m.currentProject(); p != nil {
		m.tasks = m.store.Tasks(p.ID)
	}
	if m.taskCursor >= len(m.tasks) {
		m.taskCursor = max(len(m.tasks)-1, 0)
	}

	m.notes = m.store.Notifications(m.identity.UserID)
	m.unread = m.store.UnreadCount(m.identity.UserID)
}

func (m Model) currentProject() *model.Project {
	if m.projCursor < 0 || m.projCursor >= len(m.projects) {
		return nil
	}
	return &m.projects[m.projCursor]
}

func (m Model) currentTask() *model.Task {
	if m.taskCursor < 0 || m.taskCursor >= len(m.tasks) {
		return nil
	}
	return &m.tasks[m.taskCursor]
}

// oldestUnread is the notification n marks read
func (m Model) oldestUnread() *model.Notification {
	for i := len(m.notes) - 1; i >= 0; i-- {
		if !m.notes[i].Read {
			return &m.notes[i]
		}
	}
	return nil
}
