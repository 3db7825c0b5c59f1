package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/existflow/ironsync/internal/model"
)

const maxBody = 64 << 10

type createProjectRequest struct {
	TeamID      string  `json:"team_id" validate:"required,uuid"`
	Name        string  `json:"name" validate:"required,max=200"`
	Description string  `json:"description" validate:"max=10000"`
	StatusID    string  `json:"status_id" validate:"omitempty,oneof=planning in_progress review completed"`
	DueDate     *string `json:"due_date" validate:"omitnil,isodate"`
}

type updateProjectRequest struct {
	TeamID      *string `json:"team_id" validate:"omitnil,uuid"`
	Name        *string `json:"name" validate:"omitnil,min=1,max=200"`
	Description *string `json:"description" validate:"omitnil,max=10000"`
	StatusID    *string `json:"status_id" validate:"omitnil,oneof=planning in_progress review completed"`
	DueDate     *string `json:"due_date" validate:"omitnil,isodate"`
	Slug        *string `json:"slug" validate:"omitnil,min=1,max=200"`
}

type createTaskRequest struct {
	ProjectID   string  `json:"project_id" validate:"required"`
	Title       string  `json:"title" validate:"required,max=500"`
	Description string  `json:"description" validate:"max=10000"`
	Priority    string  `json:"priority" validate:"omitempty,task_priority"`
	Status      string  `json:"status" validate:"omitempty,task_status"`
	DueDate     *string `json:"due_date" validate:"omitnil,isodate"`
}

type updateTaskRequest struct {
	ProjectID   *string `json:"project_id" validate:"omitnil,min=1"`
	Title       *string `json:"title" validate:"omitnil,min=1,max=500"`
	Description *string `json:"description" validate:"omitnil,max=10000"`
	Priority    *string `json:"priority" validate:"omitnil,task_priority"`
	Status      *string `json:"status" validate:"omitnil,task_status"`
	DueDate     *string `json:"due_date" validate:"omitnil,isodate"`
}

type updateNotificationRequest struct {
	Read *bool `json:"read" validate:"required"`
}

// nullable columns accept an explicit null; all others reject it
var nullableColumns = map[string]bool{
	"status_id": true,
	"due_date":  true,
}

// handleCreateRow inserts a project or task. Notifications are created by
// database triggers only.
func (s *Server) handleCreateRow(c echo.Context) error {
	ctx := c.Request().Context()

	switch c.Param("table") {
	case model.TableProjects:
		var req createProjectRequest
		if _, err := bindStrict(c, &req); err != nil {
			return err
		}
		req.Name = strings.TrimSpace(req.Name)
		if err := validateRequest(req); err != nil {
			return err
		}
		if err := s.requireMember(c, req.TeamID); err != nil {
			return err
		}
		if req.StatusID == "" {
			req.StatusID = model.ProjectPlanning.ID()
		}

		p, err := s.repo.CreateProject(ctx, model.Project{
			TeamID:      req.TeamID,
			Name:        req.Name,
			Description: req.Description,
			StatusID:    req.StatusID,
			DueDate:     model.Date(deref(req.DueDate)),
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, p)

	case model.TableTasks:
		var req createTaskRequest
		if _, err := bindStrict(c, &req); err != nil {
			return err
		}
		req.Title = strings.TrimSpace(req.Title)
		if err := validateRequest(req); err != nil {
			return err
		}
		if err := s.requireProjectAccess(c, req.ProjectID); err != nil {
			return err
		}
		if req.Priority == "" {
			req.Priority = string(model.PriorityMedium)
		}
		if req.Status == "" {
			req.Status = string(model.TaskTodo)
		}

		t, err := s.repo.CreateTask(ctx, model.Task{
			ProjectID:   req.ProjectID,
			Title:       req.Title,
			Description: req.Description,
			Priority:    model.TaskPriority(req.Priority),
			Status:      model.TaskStatus(req.Status),
			DueDate:     model.Date(deref(req.DueDate)),
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, t)

	case model.TableNotifications:
		return &apiError{Status: http.StatusMethodNotAllowed, Code: "read_only", Message: "notifications are created by the server"}
	}
	return unknownTable(c.Param("table"))
}

// handleUpdateRow changes the fields present in the body. Explicit null
// clears a nullable column.
func (s *Server) handleUpdateRow(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	switch c.Param("table") {
	case model.TableProjects:
		cur, err := s.repo.Project(ctx, id)
		if err != nil {
			return err
		}
		if err := s.requireMember(c, cur.TeamID); err != nil {
			return err
		}

		var req updateProjectRequest
		present, err := bindStrict(c, &req)
		if err != nil {
			return err
		}
		if req.Name != nil {
			*req.Name = strings.TrimSpace(*req.Name)
		}
		if err := validateRequest(req); err != nil {
			return err
		}
		if req.TeamID != nil && *req.TeamID != cur.TeamID {
			if err := s.requireMember(c, *req.TeamID); err != nil {
				return err
			}
		}

		cols, err := columns(present, map[string]interface{}{
			"team_id":     req.TeamID,
			"name":        req.Name,
			"description": req.Description,
			"status_id":   req.StatusID,
			"due_date":    req.DueDate,
			"slug":        req.Slug,
		})
		if err != nil {
			return err
		}
		p, err := s.repo.UpdateProject(ctx, id, cols)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, p)

	case model.TableTasks:
		cur, err := s.repo.Task(ctx, id)
		if err != nil {
			return err
		}
		if err := s.requireProjectAccess(c, cur.ProjectID); err != nil {
			return err
		}

		var req updateTaskRequest
		present, err := bindStrict(c, &req)
		if err != nil {
			return err
		}
		if req.Title != nil {
			*req.Title = strings.TrimSpace(*req.Title)
		}
		if err := validateRequest(req); err != nil {
			return err
		}
		if req.ProjectID != nil && *req.ProjectID != cur.ProjectID {
			if err := s.requireProjectAccess(c, *req.ProjectID); err != nil {
				return err
			}
		}

		cols, err := columns(present, map[string]interface{}{
			"project_id":  req.ProjectID,
			"title":       req.Title,
			"description": req.Description,
			"priority":    req.Priority,
			"status":      req.Status,
			"due_date":    req.DueDate,
		})
		if err != nil {
			return err
		}
		t, err := s.repo.UpdateTask(ctx, id, cols)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, t)

	case model.TableNotifications:
		n, err := s.repo.Notification(ctx, id)
		if err != nil {
			return err
		}
		if n.UserID != userID(c) {
			return ErrNotFound
		}

		var req updateNotificationRequest
		if _, err := bindStrict(c, &req); err != nil {
			return err
		}
		if err := validateRequest(req); err != nil {
			return err
		}
		n, err = s.repo.MarkNotificationRead(ctx, id, *req.Read)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, n)
	}
	return unknownTable(c.Param("table"))
}

// handleDeleteRow removes a row. Deleting a project removes its tasks.
func (s *Server) handleDeleteRow(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	switch c.Param("table") {
	case model.TableProjects:
		cur, err := s.repo.Project(ctx, id)
		if err != nil {
			return err
		}
		if err := s.requireMember(c, cur.TeamID); err != nil {
			return err
		}
		if err := s.repo.DeleteProject(ctx, id); err != nil {
			return err
		}

	case model.TableTasks:
		cur, err := s.repo.Task(ctx, id)
		if err != nil {
			return err
		}
		if err := s.requireProjectAccess(c, cur.ProjectID); err != nil {
			return err
		}
		if err := s.repo.DeleteTask(ctx, id); err != nil {
			return err
		}

	case model.TableNotifications:
		n, err := s.repo.Notification(ctx, id)
		if err != nil {
			return err
		}
		if n.UserID != userID(c) {
			return ErrNotFound
		}
		if err := s.repo.DeleteNotification(ctx, id); err != nil {
			return err
		}

	default:
		return unknownTable(c.Param("table"))
	}
	return c.NoContent(http.StatusNoContent)
}

// requireProjectAccess resolves the project's team and checks membership. An
// unknown project reads as a bad reference, not a missing route.
func (s *Server) requireProjectAccess(c echo.Context, projectID string) error {
	p, err := s.repo.Project(c.Request().Context(), projectID)
	if errors.Is(err, ErrNotFound) {
		return badRequest("unknown_project", "project_id does not name a project")
	}
	if err != nil {
		return err
	}
	return s.requireMember(c, p.TeamID)
}

// bindStrict decodes the body into dst, rejecting unknown keys, and returns
// the set of keys present
func bindStrict(c echo.Context, dst interface{}) (map[string]json.RawMessage, error) {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBody+1))
	if err != nil {
		return nil, badRequest("invalid_body", "could not read body")
	}
	if len(data) > maxBody {
		return nil, &apiError{Status: http.StatusRequestEntityTooLarge, Code: "too_large", Message: "body too large"}
	}

	var present map[string]json.RawMessage
	if err := json.Unmarshal(data, &present); err != nil || present == nil {
		return nil, badRequest("invalid_body", "body must be a JSON object")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return nil, badRequest("invalid_body", err.Error())
	}
	return present, nil
}

func validateRequest(v interface{}) error {
	err := model.Validate(v)
	if err == nil {
		return nil
	}
	fields := model.FieldErrors(err)
	if len(fields) == 0 {
		return badRequest("validation", err.Error())
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return badRequest("validation", fmt.Sprintf("%s failed %q", names[0], fields[names[0]]))
}

// columns maps the present keys to column values. values holds pointer
// fields from the request: nil with the key present is an explicit null.
func columns(present map[string]json.RawMessage, values map[string]interface{}) (map[string]interface{}, error) {
	cols := make(map[string]interface{})
	for key := range present {
		v, known := values[key]
		if !known {
			continue
		}
		ptr, _ := v.(*string)
		if ptr == nil {
			if !nullableColumns[key] {
				return nil, badRequest("validation", key+" must not be null")
			}
			cols[key] = nil
			continue
		}
		if *ptr == "" && nullableColumns[key] {
			cols[key] = nil
			continue
		}
		cols[key] = *ptr
	}
	if len(cols) == 0 {
		return nil, badRequest("validation", "nothing to update")
	}
	return cols, nil
}

func unknownTable(table string) error {
	return &apiError{Status: http.StatusNotFound, Code: "unknown_table", Message: fmt.Sprintf("unknown table %q", table)}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
