// Package gateway turns user intents into an optimistic store update plus
// one remote write, and settles the store with the outcome.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/existflow/ironsync/internal/logger"
	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/reconcile"
	"github.com/existflow/ironsync/internal/store"
)

// PlaceholderPrefix starts every provisional id
const PlaceholderPrefix = "tmp-"

// Persister is the remote persistence API
type Persister interface {
	Create(ctx context.Context, table string, fields map[string]interface{}) (json.RawMessage, error)
	Update(ctx context.Context, table, id string, fields map[string]interface{}) (json.RawMessage, error)
}

// Gateway performs optimistic mutations. Failed remote calls are rolled back:
// a placeholder is discarded, a staged edit is restored.
type Gateway struct {
	store  *store.Store
	remote Persister
	log    *logger.Logger
	seq    atomic.Uint64
	now    func() time.Time
}

// New creates a gateway writing through p
func New(s *store.Store, p Persister, log *logger.Logger) *Gateway {
	if log == nil {
		log = logger.Nop()
	}
	return &Gateway{
		store:  s,
		remote: p,
		log:    log.Component("gateway"),
		now:    time.Now,
	}
}

// IsPlaceholder reports whether id was minted locally
func IsPlaceholder(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}

func (g *Gateway) placeholder() string {
	return fmt.Sprintf("%s%d", PlaceholderPrefix, g.seq.Add(1))
}

// CreateProjectInput is a new project as entered by the user
type CreateProjectInput struct {
	TeamID      string              `json:"team_id" validate:"required"`
	Name        string              `json:"name" validate:"required,max=200"`
	Description string              `json:"description"`
	Status      model.ProjectStatus `json:"status" validate:"omitempty,project_status"`
	DueDate     string              `json:"due_date" validate:"omitempty,isodate"`
}

// CreateProject puts a placeholder in the store, creates the project remotely
// and swaps the placeholder for the confirmed record
func (g *Gateway) CreateProject(ctx context.Context, in CreateProjectInput) (model.Project, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.TeamID = strings.TrimSpace(in.TeamID)
	if in.Status == "" {
		in.Status = model.ProjectPlanning
	}
	if err := validate(in); err != nil {
		return model.Project{}, err
	}
	if g.store.Closed() {
		return model.Project{}, ErrClosed
	}

	now := g.now().UTC()
	tmp := model.Project{
		ID:          g.placeholder(),
		TeamID:      in.TeamID,
		Name:        in.Name,
		Description: in.Description,
		StatusID:    in.Status.ID(),
		DueDate:     model.Date(in.DueDate),
		Slug:        model.Slugify(in.Name),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	g.store.PutProvisionalProject(tmp)

	rec, err := g.remote.Create(ctx, model.TableProjects, map[string]interface{}{
		"team_id":     tmp.TeamID,
		"name":        tmp.Name,
		"description": tmp.Description,
		"status_id":   tmp.StatusID,
		"due_date":    nullable(in.DueDate),
	})
	if err == nil {
		var patch model.ProjectPatch
		if patch, err = reconcile.DecodeProjectRecord(rec); err == nil {
			g.store.ConfirmProject(tmp.ID, patch)
			g.log.Info("Project created", logger.F("placeholder", tmp.ID), logger.F("id", patch.ID))
			return confirmedProject(g.store, patch), nil
		}
		err = fmt.Errorf("invalid response: %w", err)
	}

	g.store.DiscardProject(tmp.ID)
	g.log.Warn("Project create failed, placeholder discarded",
		logger.F("placeholder", tmp.ID), logger.F("error", err))
	return model.Project{}, &MutationError{Op: "create project", Err: err}
}

// CreateTaskInput is a new task as entered by the user
type CreateTaskInput struct {
	ProjectID   string             `json:"project_id" validate:"required"`
	Title       string             `json:"title" validate:"required,max=500"`
	Description string             `json:"description"`
	Priority    model.TaskPriority `json:"priority" validate:"omitempty,task_priority"`
	Status      model.TaskStatus   `json:"status" validate:"omitempty,task_status"`
	DueDate     string             `json:"due_date" validate:"omitempty,isodate"`
}

// CreateTask is CreateProject for tasks. The parent project must be confirmed.
func (g *Gateway) CreateTask(ctx context.Context, in CreateTaskInput) (model.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	if in.Status == "" {
		in.Status = model.TaskTodo
	}
	if err := validate(in); err != nil {
		return model.Task{}, err
	}
	if p, ok := g.store.Project(in.ProjectID); IsPlaceholder(in.ProjectID) || (ok && p.Provisional) {
		return model.Task{}, &ValidationError{Field: "project_id", Message: "project is not saved yet"}
	}
	if g.store.Closed() {
		return model.Task{}, ErrClosed
	}

	now := g.now().UTC()
	tmp := model.Task{
		ID:          g.placeholder(),
		ProjectID:   in.ProjectID,
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		Status:      in.Status,
		DueDate:     model.Date(in.DueDate),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	g.store.PutProvisionalTask(tmp)

	rec, err := g.remote.Create(ctx, model.TableTasks, map[string]interface{}{
		"project_id":  tmp.ProjectID,
		"title":       tmp.Title,
		"description": tmp.Description,
		"priority":    tmp.Priority,
		"status":      tmp.Status,
		"due_date":    nullable(in.DueDate),
	})
	if err == nil {
		var patch model.TaskPatch
		if patch, err = reconcile.DecodeTaskRecord(rec); err == nil {
			g.store.ConfirmTask(tmp.ID, patch)
			g.log.Info("Task created", logger.F("placeholder", tmp.ID), logger.F("id", patch.ID))
			return confirmedTask(g.store, patch), nil
		}
		err = fmt.Errorf("invalid response: %w", err)
	}

	g.store.DiscardTask(tmp.ID)
	g.log.Warn("Task create failed, placeholder discarded",
		logger.F("placeholder", tmp.ID), logger.F("error", err))
	return model.Task{}, &MutationError{Op: "create task", Err: err}
}

// confirmedProject reads back the merged record, falling back to the
// response itself when the store no longer holds it
func confirmedProject(s *store.Store, patch model.ProjectPatch) model.Project {
	if p, ok := s.Project(patch.ID); ok {
		return p
	}
	var p model.Project
	p.Apply(patch)
	return p
}

func confirmedTask(s *store.Store, patch model.TaskPatch) model.Task {
	if t, ok := s.Task(patch.ID); ok {
		return t
	}
	var t model.Task
	t.Apply(patch)
	return t
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
