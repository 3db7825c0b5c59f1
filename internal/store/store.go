// Package store holds the client-side view of projects, tasks and
// notifications. All mutation goes through the methods here; values handed
// out are copies.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/existflow/ironsync/internal/logger"
	"github.com/existflow/ironsync/internal/model"
)

type stagedProject struct {
	base model.Project
	edit model.ProjectPatch
}

type stagedTask struct {
	base model.Task
	edit model.TaskPatch
}

type listener struct {
	id int
	fn func(Change)
}

// Store is an in-memory keyed collection per entity type. It is empty when
// created and inert after Close.
type Store struct {
	log *logger.Logger

	mu            sync.RWMutex
	projects      map[string]model.Project
	byTeam        index
	tasks         map[string]model.Task
	byProject     index
	notifications map[string]model.Notification
	byUser        index
	tombstones    map[Entity]map[string]struct{}

	// Staged local edits. The base is the confirmed value with every accepted
	// event folded in; edit holds the fields still awaiting the backend.
	stagedProjects map[string]stagedProject
	stagedTasks    map[string]stagedTask
	stagedReads    map[string]bool

	listeners    []listener
	nextListener int
	closed       bool
}

// New creates an empty store
func New(log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	s := &Store{log: log.Component("store")}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.projects = make(map[string]model.Project)
	s.byTeam = make(index)
	s.tasks = make(map[string]model.Task)
	s.byProject = make(index)
	s.notifications = make(map[string]model.Notification)
	s.byUser = make(index)
	s.tombstones = map[Entity]map[string]struct{}{
		EntityProject:      {},
		EntityTask:         {},
		EntityNotification: {},
	}
	s.stagedProjects = make(map[string]stagedProject)
	s.stagedTasks = make(map[string]stagedTask)
	s.stagedReads = make(map[string]bool)
}

// Subscribe registers fn to run after every state-changing mutation. fn runs
// synchronously on the mutating goroutine, after the store lock is released.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return func() {}
	}
	s.nextListener++
	id := s.nextListener
	s.listeners = append(s.listeners, listener{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Close drops all state and listeners. Later mutations are no-ops.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.listeners = nil
	s.reset()
}

// Closed reports whether Close was called
func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// mutate runs fn under the write lock and notifies listeners about the
// resulting change.
func (s *Store) mutate(op string, fn func() (Change, string)) Outcome {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.Debug("Mutation after close dropped", logger.F("op", op))
		return ConflictIgnored
	}

	ch, reason := fn()

	var targets []func(Change)
	if ch.visible() {
		targets = make([]func(Change), len(s.listeners))
		for i, l := range s.listeners {
			targets[i] = l.fn
		}
	}
	s.mu.Unlock()

	if ch.Outcome == ConflictIgnored {
		s.log.Debug("Merge conflict ignored",
			logger.F("op", op),
			logger.F("entity", ch.Entity),
			logger.F("id", ch.ID),
			logger.F("reason", reason))
	}

	for _, fn := range targets {
		fn(ch)
	}
	return ch.Outcome
}

// Reads

// Project returns a copy of the project with id
func (s *Store) Project(id string) (model.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	return p, ok
}

// Projects lists a team's projects, oldest first
func (s *Store) Projects(teamID string) []model.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Project, 0, len(s.byTeam[teamID]))
	for id := range s.byTeam[teamID] {
		out = append(out, s.projects[id])
	}
	sort.Slice(out, func(i, j int) bool {
		return lessByCreated(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out
}

// Teams lists the team ids that currently hold projects
func (s *Store) Teams() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.byTeam))
	for id := range s.byTeam {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Task returns a copy of the task with id
func (s *Store) Task(id string) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Tasks lists a project's tasks, most urgent first
func (s *Store) Tasks(projectID string) []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Task, 0, len(s.byProject[projectID]))
	for id := range s.byProject[projectID] {
		out = append(out, s.tasks[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if ri, rj := out[i].Priority.Rank(), out[j].Priority.Rank(); ri != rj {
			return ri < rj
		}
		return lessByCreated(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out
}

// TaskCount counts the confirmed tasks of a project. Placeholders do not count.
func (s *Store) TaskCount(projectID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for id := range s.byProject[projectID] {
		if !s.tasks[id].Provisional {
			n++
		}
	}
	return n
}

// Notifications lists a user's notifications, newest first
func (s *Store) Notifications(userID string) []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Notification, 0, len(s.byUser[userID]))
	for id := range s.byUser[userID] {
		out = append(out, s.notifications[id])
	}
	sort.Slice(out, func(i, j int) bool {
		return lessByCreated(out[j].CreatedAt, out[i].CreatedAt, out[j].ID, out[i].ID)
	})
	return out
}

// Notification returns a copy of the notification with id
func (s *Store) Notification(id string) (model.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	return n, ok
}

// UnreadCount counts a user's unread notifications
func (s *Store) UnreadCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for id := range s.byUser[userID] {
		if !s.notifications[id].Read {
			n++
		}
	}
	return n
}

// Snapshot returns every confirmed entry. Entries with edits in flight are
// reported as the backend last confirmed them.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap Snapshot
	for _, p := range s.projects {
		if st, ok := s.stagedProjects[p.ID]; ok && p.Pending {
			p = st.base
		}
		if !p.Provisional && !p.Pending {
			snap.Projects = append(snap.Projects, p)
		}
	}
	for _, t := range s.tasks {
		if st, ok := s.stagedTasks[t.ID]; ok && t.Pending {
			t = st.base
		}
		if !t.Provisional && !t.Pending {
			snap.Tasks = append(snap.Tasks, t)
		}
	}
	for _, n := range s.notifications {
		if prev, ok := s.stagedReads[n.ID]; ok {
			n.Read = prev
		}
		snap.Notifications = append(snap.Notifications, n)
	}
	sort.Slice(snap.Projects, func(i, j int) bool { return snap.Projects[i].ID < snap.Projects[j].ID })
	sort.Slice(snap.Tasks, func(i, j int) bool { return snap.Tasks[i].ID < snap.Tasks[j].ID })
	sort.Slice(snap.Notifications, func(i, j int) bool { return snap.Notifications[i].ID < snap.Notifications[j].ID })
	return snap
}

// Seed merges a snapshot into the store under one lock and emits a single
// EntityAll change. Newer entries already present win.
func (s *Store) Seed(snap Snapshot) Outcome {
	return s.mutate("seed", func() (Change, string) {
		applied := 0
		for _, p := range snap.Projects {
			if ch, _ := s.upsertProject(p.Patch()); ch.visible() {
				applied++
			}
		}
		for _, t := range snap.Tasks {
			if ch, _ := s.upsertTask(t.Patch()); ch.visible() {
				applied++
			}
		}
		for _, n := range snap.Notifications {
			if ch, _ := s.upsertNotification(notificationPatch(n)); ch.visible() {
				applied++
			}
		}
		ch := Change{Entity: EntityAll, Outcome: Unchanged}
		if applied > 0 {
			ch.Outcome = Merged
		}
		return ch, ""
	})
}

func lessByCreated(a, b time.Time, idA, idB string) bool {
	if !a.Equal(b) {
		return a.Before(b)
	}
	return idA < idB
}

// stale reports whether an incoming timestamp is older than the stored one
func stale(current time.Time, incoming model.Opt[time.Time]) bool {
	return incoming.Set && !incoming.Value.IsZero() && !current.IsZero() && incoming.Value.Before(current)
}

func (s *Store) tombstoned(e Entity, id string) bool {
	_, dead := s.tombstones[e][id]
	return dead
}

func notificationPatch(n model.Notification) model.NotificationPatch {
	return model.NotificationPatch{
		ID:        n.ID,
		UserID:    model.Some(n.UserID),
		Type:      model.Some(n.Type),
		Title:     model.Some(n.Title),
		Message:   model.Some(n.Message),
		Read:      model.Some(n.Read),
		ActionURL: model.Some(n.ActionURL),
		CreatedAt: model.Some(n.CreatedAt),
	}
}
