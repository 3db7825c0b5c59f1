package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/existflow/ironsync/internal/gateway"
	"github.com/existflow/ironsync/internal/logger"
	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/store"
)

type fakeMutator struct {
	mu      sync.Mutex
	updates map[string]model.TaskPatch
	created []gateway.CreateTaskInput
	read    []string
	err     error
}

func (f *fakeMutator) CreateProject(context.Context, gateway.CreateProjectInput) (model.Project, error) {
	return model.Project{}, f.err
}

func (f *fakeMutator) CreateTask(_ context.Context, in gateway.CreateTaskInput) (model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, in)
	return model.Task{}, f.err
}

func (f *fakeMutator) UpdateTask(_ context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = map[string]model.TaskPatch{}
	}
	f.updates[id] = patch
	return model.Task{}, f.err
}

func (f *fakeMutator) MarkNotificationRead(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, id)
	return f.err
}

var created = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(logger.Nop())
	t.Cleanup(st.Close)

	st.AddProject("team-1", model.ProjectPatch{
		ID: "p1", Name: model.Some("Website"), StatusID: model.Some("planning"),
		CreatedAt: model.Some(created), UpdatedAt: model.Some(created),
	})
	st.AddTask("p1", model.TaskPatch{
		ID: "t1", Title: model.Some("Write copy"), Status: model.Some(model.TaskTodo),
		Priority: model.Some(model.PriorityHigh),
		CreatedAt: model.Some(created), UpdatedAt: model.Some(created),
	})
	st.AddNotification("u1", model.NotificationPatch{
		ID: "n1", Type: model.Some(model.NotifyProjectCreated), Title: model.Some("Project created"),
		CreatedAt: model.Some(created),
	})
	return st
}

func newTestModel(t *testing.T, st *store.Store, gw Mutator) Model {
	t.Helper()
	m := NewModel(context.Background(), st, gw, model.Identity{UserID: "u1", TeamIDs: []string{"team-1"}}, nil)
	t.Cleanup(m.Close)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return next.(Model)
}

func press(m Model, k string) (Model, tea.Cmd) {
	msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	switch k {
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	}
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestViewShowsStoreContents(t *testing.T) {
	m := newTestModel(t, seededStore(t), &fakeMutator{})

	view := m.View()
	assert.Contains(t, view, "Website")
	assert.Contains(t, view, "Write copy")
	assert.Contains(t, view, "1 unread")
	assert.Equal(t, 1, m.unread)
}

func TestStoreChangeRefreshesModel(t *testing.T) {
	st := seededStore(t)
	m := newTestModel(t, st, &fakeMutator{})
	cmd := m.waitForChange()

	st.PutProvisionalTask(model.Task{ID: "tmp-1", ProjectID: "p1", Title: "Draft", Status: model.TaskTodo, Priority: model.PriorityMedium})

	msg := cmd()
	require.IsType(t, storeChangedMsg{}, msg)
	next, _ := m.Update(msg)
	m = next.(Model)

	require.Len(t, m.tasks, 2)
	assert.Contains(t, m.View(), "saving")
	assert.Equal(t, 1, st.TaskCount("p1"))
}

func TestToggleDoneCallsGateway(t *testing.T) {
	gw := &fakeMutator{}
	m := newTestModel(t, seededStore(t), gw)

	m, _ = press(m, "tab")
	m, cmd := press(m, "x")
	require.NotNil(t, cmd)
	assert.Equal(t, 1, m.inFlight)

	msg := cmd()
	require.Equal(t, model.TaskCompleted, gw.updates["t1"].Status.Value)

	next, _ := m.Update(msg)
	m = next.(Model)
	assert.Equal(t, 0, m.inFlight)
	assert.Equal(t, "Updated: Write copy", m.message)
}

func TestPriorityKey(t *testing.T) {
	gw := &fakeMutator{}
	m := newTestModel(t, seededStore(t), gw)

	m, _ = press(m, "tab")
	_, cmd := press(m, "1")
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, model.PriorityUrgent, gw.updates["t1"].Priority.Value)
}

func TestAddTaskThroughInput(t *testing.T) {
	gw := &fakeMutator{}
	m := newTestModel(t, seededStore(t), gw)

	m, _ = press(m, "a")
	require.Equal(t, ModeAddTask, m.mode)
	for _, r := range "Ship it" {
		m, _ = press(m, string(r))
	}
	m, cmd := press(m, "enter")
	require.NotNil(t, cmd)
	assert.Equal(t, ModeNormal, m.mode)

	cmd()
	require.Len(t, gw.created, 1)
	assert.Equal(t, gateway.CreateTaskInput{ProjectID: "p1", Title: "Ship it"}, gw.created[0])
}

func TestMutationFailureShown(t *testing.T) {
	gw := &fakeMutator{err: &gateway.MutationError{Op: "update task", Err: errors.New("boom")}}
	m := newTestModel(t, seededStore(t), gw)

	m, _ = press(m, "tab")
	m, cmd := press(m, "x")
	next, _ := m.Update(cmd())
	m = next.(Model)

	assert.True(t, m.failed)
	assert.Equal(t, "Could not update task: boom", m.message)
}

func TestMarkRead(t *testing.T) {
	gw := &fakeMutator{}
	m := newTestModel(t, seededStore(t), gw)

	_, cmd := press(m, "n")
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, []string{"n1"}, gw.read)
}

func TestHelpListsBindings(t *testing.T) {
	m := newTestModel(t, seededStore(t), &fakeMutator{})

	m, _ = press(m, "?")
	require.Equal(t, ModeHelp, m.mode)
	view := m.View()
	assert.Contains(t, view, "next status")
	assert.Contains(t, view, "mark notification read")

	m, _ = press(m, "j")
	assert.Equal(t, ModeNormal, m.mode)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ünï...", truncate("ünïcodé!", 6))
}
