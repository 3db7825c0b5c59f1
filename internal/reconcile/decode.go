package reconcile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/existflow/ironsync/internal/model"
)

// Kind is what happened to a row
type Kind string

const (
	Created Kind = "created"
	Updated Kind = "updated"
	Deleted Kind = "deleted"
)

// ErrUnknownTable is returned for events about tables the store does not hold
var ErrUnknownTable = errors.New("unknown table")

// SchemaError reports a payload that failed boundary validation
type SchemaError struct {
	Table string
	Field string
	Err   error
}

func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s row: %s: %v", e.Table, e.Field, e.Err)
	}
	return fmt.Sprintf("invalid %s row: %v", e.Table, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Event is a decoded change event. Exactly one of the row variants is set,
// matching Table.
type Event struct {
	Kind  Kind
	Table string

	Project      *model.ProjectPatch
	Task         *model.TaskPatch
	Notification *model.NotificationPatch
}

// ID returns the id of the row the event is about
func (e Event) ID() string {
	switch {
	case e.Project != nil:
		return e.Project.ID
	case e.Task != nil:
		return e.Task.ID
	case e.Notification != nil:
		return e.Notification.ID
	}
	return ""
}

type envelope struct {
	Kind  string          `json:"kind"`
	Table string          `json:"table"`
	Scope json.RawMessage `json:"scope,omitempty"`
	Row   json.RawMessage `json:"row"`
}

// Row shapes, one per table. Keys not listed here are rejected.

type projectRow struct {
	ID          string     `json:"id" validate:"required"`
	TeamID      *string    `json:"team_id" validate:"omitnil,min=1"`
	Name        *string    `json:"name" validate:"omitnil,min=1"`
	Description *string    `json:"description"`
	StatusID    *string    `json:"status_id"`
	DueDate     *string    `json:"due_date" validate:"omitnil,isodate"`
	Slug        *string    `json:"slug" validate:"omitnil,min=1"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

type taskRow struct {
	ID          string              `json:"id" validate:"required"`
	ProjectID   *string             `json:"project_id" validate:"omitnil,min=1"`
	Title       *string             `json:"title" validate:"omitnil,min=1"`
	Description *string             `json:"description"`
	Priority    *model.TaskPriority `json:"priority" validate:"omitnil,task_priority"`
	Status      *model.TaskStatus   `json:"status" validate:"omitnil,task_status"`
	DueDate     *string             `json:"due_date" validate:"omitnil,isodate"`
	CreatedAt   *time.Time          `json:"created_at"`
	UpdatedAt   *time.Time          `json:"updated_at"`
}

type notificationRow struct {
	ID        string                  `json:"id" validate:"required"`
	UserID    *string                 `json:"user_id" validate:"omitnil,min=1"`
	Type      *model.NotificationType `json:"type" validate:"omitnil,notification_type"`
	Title     *string                 `json:"title"`
	Message   *string                 `json:"message"`
	Read      *bool                   `json:"read"`
	ActionURL *string                 `json:"action_url"`
	CreatedAt *time.Time              `json:"created_at"`
}

// Decode parses and validates a raw change frame. This is the only place
// loosely shaped payloads are accepted; everything past it is typed.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("malformed event: %w", err)
	}

	kind, err := parseKind(env.Kind)
	if err != nil {
		return Event{}, err
	}
	if len(env.Row) == 0 || bytes.Equal(env.Row, []byte("null")) {
		return Event{}, &SchemaError{Table: env.Table, Err: errors.New("missing row")}
	}

	ev := Event{Kind: kind, Table: env.Table}
	switch env.Table {
	case model.TableProjects:
		p, err := decodeProject(env.Row)
		if err != nil {
			return Event{}, err
		}
		ev.Project = &p
	case model.TableTasks:
		t, err := decodeTask(env.Row)
		if err != nil {
			return Event{}, err
		}
		ev.Task = &t
	case model.TableNotifications:
		n, err := decodeNotification(env.Row)
		if err != nil {
			return Event{}, err
		}
		ev.Notification = &n
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownTable, env.Table)
	}
	return ev, nil
}

func parseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "created", "insert":
		return Created, nil
	case "updated", "update":
		return Updated, nil
	case "deleted", "delete":
		return Deleted, nil
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// keys records which row keys were present, so explicit nulls can be told
// apart from absent fields.
type keys struct {
	table   string
	present map[string]json.RawMessage
	err     error
}

func strictDecode(table string, raw []byte, dst interface{}) (*keys, error) {
	k := &keys{table: table}
	if err := json.Unmarshal(raw, &k.present); err != nil {
		return nil, &SchemaError{Table: table, Err: err}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return nil, &SchemaError{Table: table, Err: err}
	}
	if err := model.Validate(dst); err != nil {
		for field, rule := range model.FieldErrors(err) {
			return nil, &SchemaError{Table: table, Field: field, Err: fmt.Errorf("failed %q rule", rule)}
		}
		return nil, &SchemaError{Table: table, Err: err}
	}
	return k, nil
}

// pick turns a decoded pointer into a patch field. nullable says whether an
// explicit null clears the field or is a schema violation.
func pick[T any](k *keys, key string, v *T, nullable bool) model.Opt[T] {
	if _, ok := k.present[key]; !ok || k.err != nil {
		return model.Opt[T]{}
	}
	if v == nil {
		if !nullable {
			k.err = &SchemaError{Table: k.table, Field: key, Err: errors.New("must not be null")}
			return model.Opt[T]{}
		}
		var zero T
		return model.Some(zero)
	}
	return model.Some(*v)
}

func pickDate(k *keys, key string, v *string) model.Opt[model.Date] {
	s := pick(k, key, v, true)
	return model.Opt[model.Date]{Set: s.Set, Value: model.Date(s.Value)}
}

func decodeProject(raw []byte) (model.ProjectPatch, error) {
	var row projectRow
	k, err := strictDecode(model.TableProjects, raw, &row)
	if err != nil {
		return model.ProjectPatch{}, err
	}
	p := model.ProjectPatch{
		ID:          row.ID,
		TeamID:      pick(k, "team_id", row.TeamID, false),
		Name:        pick(k, "name", row.Name, false),
		Description: pick(k, "description", row.Description, true),
		StatusID:    pick(k, "status_id", row.StatusID, true),
		DueDate:     pickDate(k, "due_date", row.DueDate),
		Slug:        pick(k, "slug", row.Slug, false),
		CreatedAt:   pick(k, "created_at", row.CreatedAt, false),
		UpdatedAt:   pick(k, "updated_at", row.UpdatedAt, false),
	}
	return p, k.err
}

func decodeTask(raw []byte) (model.TaskPatch, error) {
	var row taskRow
	k, err := strictDecode(model.TableTasks, raw, &row)
	if err != nil {
		return model.TaskPatch{}, err
	}
	t := model.TaskPatch{
		ID:          row.ID,
		ProjectID:   pick(k, "project_id", row.ProjectID, false),
		Title:       pick(k, "title", row.Title, false),
		Description: pick(k, "description", row.Description, true),
		Priority:    pick(k, "priority", row.Priority, false),
		Status:      pick(k, "status", row.Status, false),
		DueDate:     pickDate(k, "due_date", row.DueDate),
		CreatedAt:   pick(k, "created_at", row.CreatedAt, false),
		UpdatedAt:   pick(k, "updated_at", row.UpdatedAt, false),
	}
	return t, k.err
}

func decodeNotification(raw []byte) (model.NotificationPatch, error) {
	var row notificationRow
	k, err := strictDecode(model.TableNotifications, raw, &row)
	if err != nil {
		return model.NotificationPatch{}, err
	}
	n := model.NotificationPatch{
		ID:        row.ID,
		UserID:    pick(k, "user_id", row.UserID, false),
		Type:      pick(k, "type", row.Type, false),
		Title:     pick(k, "title", row.Title, true),
		Message:   pick(k, "message", row.Message, true),
		Read:      pick(k, "read", row.Read, false),
		ActionURL: pick(k, "action_url", row.ActionURL, true),
		CreatedAt: pick(k, "created_at", row.CreatedAt, false),
	}
	return n, k.err
}

// DecodeProjectRecord decodes one full project record, as returned by the
// persistence API
func DecodeProjectRecord(raw []byte) (model.ProjectPatch, error) {
	return decodeProject(raw)
}

// DecodeTaskRecord decodes one full task record
func DecodeTaskRecord(raw []byte) (model.TaskPatch, error) {
	return decodeTask(raw)
}

// DecodeNotificationRecord decodes one full notification record
func DecodeNotificationRecord(raw []byte) (model.NotificationPatch, error) {
	return decodeNotification(raw)
}
