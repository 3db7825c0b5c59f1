package server

import (
	"context"
	"errors"
	"time"

	"github.com/existflow/ironsync/internal/model"
)

var (
	// ErrNotFound means the row does not exist or is not visible to the caller
	ErrNotFound = errors.New("not found")
	// ErrConflict means a unique constraint could not be satisfied
	ErrConflict = errors.New("conflict")
)

// Repository is the storage the HTTP handlers run against. Column maps passed
// to the Update methods are already validated and hold only known columns.
type Repository interface {
	Session(ctx context.Context, token string) (userID string, expiresAt time.Time, err error)
	Teams(ctx context.Context, userID string) ([]string, error)
	IsMember(ctx context.Context, userID, teamID string) (bool, error)

	Projects(ctx context.Context, teamID string) ([]model.Project, error)
	Project(ctx context.Context, id string) (model.Project, error)
	CreateProject(ctx context.Context, p model.Project) (model.Project, error)
	UpdateProject(ctx context.Context, id string, cols map[string]interface{}) (model.Project, error)
	DeleteProject(ctx context.Context, id string) error

	Tasks(ctx context.Context, projectID string) ([]model.Task, error)
	Task(ctx context.Context, id string) (model.Task, error)
	CreateTask(ctx context.Context, t model.Task) (model.Task, error)
	UpdateTask(ctx context.Context, id string, cols map[string]interface{}) (model.Task, error)
	DeleteTask(ctx context.Context, id string) error

	Notifications(ctx context.Context, userID string) ([]model.Notification, error)
	Notification(ctx context.Context, id string) (model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string, read bool) (model.Notification, error)
	DeleteNotification(ctx context.Context, id string) error
}
