package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/existflow/ironsync/internal/logger"
	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/reconcile"
	"github.com/existflow/ironsync/internal/store"
)

type projectEdit struct {
	TeamID   *string `json:"team_id" validate:"omitnil,min=1"`
	Name     *string `json:"name" validate:"omitnil,min=1,max=200"`
	StatusID *string `json:"status_id" validate:"omitnil,oneof=planning in_progress review completed"`
	DueDate  *string `json:"due_date" validate:"omitnil,isodate"`
	Slug     *string `json:"slug" validate:"omitnil,min=1"`
}

type taskEdit struct {
	ProjectID *string             `json:"project_id" validate:"omitnil,min=1"`
	Title     *string             `json:"title" validate:"omitnil,min=1,max=500"`
	Priority  *model.TaskPriority `json:"priority" validate:"omitnil,task_priority"`
	Status    *model.TaskStatus   `json:"status" validate:"omitnil,task_status"`
	DueDate   *string             `json:"due_date" validate:"omitnil,isodate"`
}

// UpdateProject stages patch in the store, writes it remotely and merges the
// confirmed record. On failure the staged edit is rolled back.
func (g *Gateway) UpdateProject(ctx context.Context, id string, patch model.ProjectPatch) (model.Project, error) {
	patch.ID = id
	patch.Name = trimmed(patch.Name)
	patch.TeamID = trimmed(patch.TeamID)
	patch.Slug = trimmed(patch.Slug)
	// Timestamps come from the backend only.
	patch.CreatedAt = model.Opt[time.Time]{}
	patch.UpdatedAt = model.Opt[time.Time]{}

	if err := validate(projectEdit{
		TeamID:   ptr(patch.TeamID),
		Name:     ptr(patch.Name),
		StatusID: ptr(patch.StatusID),
		DueDate:  datePtr(patch.DueDate),
		Slug:     ptr(patch.Slug),
	}); err != nil {
		return model.Project{}, err
	}
	if g.store.Closed() {
		return model.Project{}, ErrClosed
	}
	if IsPlaceholder(id) {
		return model.Project{}, &ValidationError{Field: "id", Message: "project is not saved yet"}
	}

	fields := projectFields(patch)
	if len(fields) == 0 {
		return model.Project{}, &ValidationError{Field: "input", Message: "nothing to update"}
	}

	prev, out := g.store.StageProject(patch)
	if out == store.ConflictIgnored {
		return model.Project{}, &ValidationError{Field: "id", Message: "unknown project"}
	}

	rec, err := g.remote.Update(ctx, model.TableProjects, id, fields)
	if err == nil {
		var confirmed model.ProjectPatch
		if confirmed, err = reconcile.DecodeProjectRecord(rec); err == nil {
			g.store.CommitProject(patch, confirmed)
			return confirmedProject(g.store, confirmed), nil
		}
		err = fmt.Errorf("invalid response: %w", err)
	}

	g.store.RestoreProject(prev)
	g.log.Warn("Project update failed, edit rolled back", logger.F("id", id), logger.F("error", err))
	return model.Project{}, &MutationError{Op: "update project", Err: err}
}

// UpdateTask is UpdateProject for tasks
func (g *Gateway) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	patch.ID = id
	patch.Title = trimmed(patch.Title)
	patch.ProjectID = trimmed(patch.ProjectID)
	patch.CreatedAt = model.Opt[time.Time]{}
	patch.UpdatedAt = model.Opt[time.Time]{}

	if err := validate(taskEdit{
		ProjectID: ptr(patch.ProjectID),
		Title:     ptr(patch.Title),
		Priority:  ptr(patch.Priority),
		Status:    ptr(patch.Status),
		DueDate:   datePtr(patch.DueDate),
	}); err != nil {
		return model.Task{}, err
	}
	if g.store.Closed() {
		return model.Task{}, ErrClosed
	}
	if IsPlaceholder(id) {
		return model.Task{}, &ValidationError{Field: "id", Message: "task is not saved yet"}
	}
	if target, ok := patch.ProjectID.Get(); ok {
		if p, found := g.store.Project(target); IsPlaceholder(target) || (found && p.Provisional) {
			return model.Task{}, &ValidationError{Field: "project_id", Message: "project is not saved yet"}
		}
	}

	fields := taskFields(patch)
	if len(fields) == 0 {
		return model.Task{}, &ValidationError{Field: "input", Message: "nothing to update"}
	}

	prev, out := g.store.StageTask(patch)
	if out == store.ConflictIgnored {
		return model.Task{}, &ValidationError{Field: "id", Message: "unknown task"}
	}

	rec, err := g.remote.Update(ctx, model.TableTasks, id, fields)
	if err == nil {
		var confirmed model.TaskPatch
		if confirmed, err = reconcile.DecodeTaskRecord(rec); err == nil {
			g.store.CommitTask(patch, confirmed)
			return confirmedTask(g.store, confirmed), nil
		}
		err = fmt.Errorf("invalid response: %w", err)
	}

	g.store.RestoreTask(prev)
	g.log.Warn("Task update failed, edit rolled back", logger.F("id", id), logger.F("error", err))
	return model.Task{}, &MutationError{Op: "update task", Err: err}
}

// MarkNotificationRead flips read optimistically and reverts it if the
// backend refuses, unless an event has settled the flag in the meantime
func (g *Gateway) MarkNotificationRead(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return &ValidationError{Field: "id", Message: "is required"}
	}
	if g.store.Closed() {
		return ErrClosed
	}
	if g.store.StageNotificationRead(id) == store.ConflictIgnored {
		return &ValidationError{Field: "id", Message: "unknown notification"}
	}

	rec, err := g.remote.Update(ctx, model.TableNotifications, id, map[string]interface{}{"read": true})
	if err == nil {
		var confirmed model.NotificationPatch
		if confirmed, err = reconcile.DecodeNotificationRecord(rec); err == nil {
			g.store.UpdateNotification(id, confirmed)
			return nil
		}
		err = fmt.Errorf("invalid response: %w", err)
	}

	g.store.RestoreNotificationRead(id)
	g.log.Warn("Mark read failed, rolled back", logger.F("id", id), logger.F("error", err))
	return &MutationError{Op: "mark notification read", Err: err}
}

func projectFields(p model.ProjectPatch) map[string]interface{} {
	f := make(map[string]interface{})
	setField(f, "team_id", p.TeamID)
	setField(f, "name", p.Name)
	setField(f, "description", p.Description)
	setField(f, "status_id", p.StatusID)
	setField(f, "slug", p.Slug)
	if p.DueDate.Set {
		f["due_date"] = nullable(string(p.DueDate.Value))
	}
	return f
}

func taskFields(t model.TaskPatch) map[string]interface{} {
	f := make(map[string]interface{})
	setField(f, "project_id", t.ProjectID)
	setField(f, "title", t.Title)
	setField(f, "description", t.Description)
	setField(f, "priority", t.Priority)
	setField(f, "status", t.Status)
	if t.DueDate.Set {
		f["due_date"] = nullable(string(t.DueDate.Value))
	}
	return f
}

func setField[T any](f map[string]interface{}, key string, o model.Opt[T]) {
	if o.Set {
		f[key] = o.Value
	}
}

func ptr[T any](o model.Opt[T]) *T {
	if !o.Set {
		return nil
	}
	v := o.Value
	return &v
}

func datePtr(o model.Opt[model.Date]) *string {
	if !o.Set {
		return nil
	}
	s := string(o.Value)
	return &s
}
