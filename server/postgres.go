package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/existflow/ironsync/internal/model"
)

const (
	projectColumns      = `id, team_id, name, description, COALESCE(status_id, ''), COALESCE(to_char(due_date, 'YYYY-MM-DD'), ''), slug, created_at, updated_at`
	taskColumns         = `id, project_id, title, description, priority, status, COALESCE(to_char(due_date, 'YYYY-MM-DD'), ''), created_at, updated_at`
	notificationColumns = `id, user_id, type, title, message, read, COALESCE(action_url, ''), created_at`
)

// pgRepo is the Postgres Repository
type pgRepo struct {
	db *sql.DB
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(row scanner) (model.Project, error) {
	var p model.Project
	var due string
	err := row.Scan(&p.ID, &p.TeamID, &p.Name, &p.Description, &p.StatusID, &due, &p.Slug, &p.CreatedAt, &p.UpdatedAt)
	p.DueDate = model.Date(due)
	return p, notFound(err)
}

func scanTask(row scanner) (model.Task, error) {
	var t model.Task
	var due, priority, status string
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &priority, &status, &due, &t.CreatedAt, &t.UpdatedAt)
	t.Priority = model.TaskPriority(priority)
	t.Status = model.TaskStatus(status)
	t.DueDate = model.Date(due)
	return t, notFound(err)
}

func scanNotification(row scanner) (model.Notification, error) {
	var n model.Notification
	var typ string
	err := row.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Message, &n.Read, &n.ActionURL, &n.CreatedAt)
	n.Type = model.NotificationType(typ)
	return n, notFound(err)
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// validID rejects non-UUID ids before they reach a uuid column
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *pgRepo) Session(ctx context.Context, token string) (string, time.Time, error) {
	var userID string
	var expires time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM sessions WHERE token = $1`, token).Scan(&userID, &expires)
	return userID, expires, notFound(err)
}

func (r *pgRepo) Teams(ctx context.Context, userID string) ([]string, error) {
	if !validID(userID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT team_id FROM team_members WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		teams = append(teams, id)
	}
	return teams, rows.Err()
}

func (r *pgRepo) IsMember(ctx context.Context, userID, teamID string) (bool, error) {
	if !validID(userID) || !validID(teamID) {
		return false, nil
	}
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM team_members WHERE user_id = $1 AND team_id = $2)`,
		userID, teamID).Scan(&ok)
	return ok, err
}

func (r *pgRepo) Projects(ctx context.Context, teamID string) ([]model.Project, error) {
	out := []model.Project{}
	if !validID(teamID) {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE team_id = $1 ORDER BY created_at`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *pgRepo) Project(ctx context.Context, id string) (model.Project, error) {
	if !validID(id) {
		return model.Project{}, ErrNotFound
	}
	return scanProject(r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
}

// CreateProject stores p under a slug unique across all projects. A
// concurrent insert taking the same slug is retried with the next free one.
func (r *pgRepo) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	base := slugBase(p.Name)
	for attempt := 0; attempt < 3; attempt++ {
		taken, err := r.slugsLike(ctx, base)
		if err != nil {
			return model.Project{}, err
		}
		slug := uniqueSlug(base, taken)

		created, err := scanProject(r.db.QueryRowContext(ctx, `
			INSERT INTO projects (team_id, name, description, status_id, due_date, slug)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, '')::date, $6)
			RETURNING `+projectColumns,
			p.TeamID, p.Name, p.Description, p.StatusID, string(p.DueDate), slug))
		if isUniqueViolation(err) {
			continue
		}
		return created, err
	}
	return model.Project{}, fmt.Errorf("%w: could not allocate a unique slug for %q", ErrConflict, base)
}

func (r *pgRepo) slugsLike(ctx context.Context, base string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT slug FROM projects WHERE slug = $1 OR slug LIKE $2`, base, likePattern(base))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *pgRepo) UpdateProject(ctx context.Context, id string, cols map[string]interface{}) (model.Project, error) {
	if !validID(id) {
		return model.Project{}, ErrNotFound
	}
	if slug, ok := cols["slug"].(string); ok {
		cols["slug"] = slugBase(slug)
	}
	query, args := updateQuery("projects", id, cols, projectColumns)
	p, err := scanProject(r.db.QueryRowContext(ctx, query, args...))
	if isUniqueViolation(err) {
		return model.Project{}, fmt.Errorf("%w: slug already taken", ErrConflict)
	}
	return p, err
}

func (r *pgRepo) DeleteProject(ctx context.Context, id string) error {
	return r.delete(ctx, "projects", id)
}

func (r *pgRepo) Tasks(ctx context.Context, projectID string) ([]model.Task, error) {
	out := []model.Task{}
	if !validID(projectID) {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *pgRepo) Task(ctx context.Context, id string) (model.Task, error) {
	if !validID(id) {
		return model.Task{}, ErrNotFound
	}
	return scanTask(r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
}

func (r *pgRepo) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	return scanTask(r.db.QueryRowContext(ctx, `
		INSERT INTO tasks (project_id, title, description, priority, status, due_date)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::date)
		RETURNING `+taskColumns,
		t.ProjectID, t.Title, t.Description, string(t.Priority), string(t.Status), string(t.DueDate)))
}

func (r *pgRepo) UpdateTask(ctx context.Context, id string, cols map[string]interface{}) (model.Task, error) {
	if !validID(id) {
		return model.Task{}, ErrNotFound
	}
	query, args := updateQuery("tasks", id, cols, taskColumns)
	return scanTask(r.db.QueryRowContext(ctx, query, args...))
}

func (r *pgRepo) DeleteTask(ctx context.Context, id string) error {
	return r.delete(ctx, "tasks", id)
}

func (r *pgRepo) Notifications(ctx context.Context, userID string) ([]model.Notification, error) {
	out := []model.Notification{}
	if !validID(userID) {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT 200`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *pgRepo) Notification(ctx context.Context, id string) (model.Notification, error) {
	if !validID(id) {
		return model.Notification{}, ErrNotFound
	}
	return scanNotification(r.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
}

func (r *pgRepo) MarkNotificationRead(ctx context.Context, id string, read bool) (model.Notification, error) {
	if !validID(id) {
		return model.Notification{}, ErrNotFound
	}
	return scanNotification(r.db.QueryRowContext(ctx,
		`UPDATE notifications SET read = $2 WHERE id = $1 RETURNING `+notificationColumns, id, read))
}

func (r *pgRepo) DeleteNotification(ctx context.Context, id string) error {
	return r.delete(ctx, "notifications", id)
}

func (r *pgRepo) delete(ctx context.Context, table, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SweepDueTasks runs the due-date notification function once
func (r *pgRepo) SweepDueTasks(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT notify_due_tasks()`).Scan(&n)
	return n, err
}

// EnsureUser returns the user with email, creating it and a personal team
// when missing
func (r *pgRepo) EnsureUser(ctx context.Context, email, team string) (userID, teamID string, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", "", err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (email) VALUES ($1)
		ON CONFLICT (email) DO UPDATE SET email = excluded.email
		RETURNING id`, email).Scan(&userID)
	if err != nil {
		return "", "", fmt.Errorf("failed to upsert user: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		SELECT t.id FROM teams t JOIN team_members m ON m.team_id = t.id
		WHERE m.user_id = $1 AND t.name = $2 LIMIT 1`, userID, team).Scan(&teamID)
	if errors.Is(err, sql.ErrNoRows) {
		if err = tx.QueryRowContext(ctx,
			`INSERT INTO teams (name) VALUES ($1) RETURNING id`, team).Scan(&teamID); err != nil {
			return "", "", fmt.Errorf("failed to create team: %w", err)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO team_members (team_id, user_id, role) VALUES ($1, $2, 'owner')`, teamID, userID); err != nil {
			return "", "", fmt.Errorf("failed to add team member: %w", err)
		}
	} else if err != nil {
		return "", "", err
	}

	return userID, teamID, tx.Commit()
}

// AddMember puts userID into teamID
func (r *pgRepo) AddMember(ctx context.Context, teamID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO team_members (team_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, teamID, userID)
	return err
}

// IssueToken creates a session for userID valid for ttl
func (r *pgRepo) IssueToken(ctx context.Context, userID string, ttl time.Duration) (string, time.Time, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, err
	}
	token := hex.EncodeToString(buf)
	expires := time.Now().Add(ttl)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, token, expires_at) VALUES ($1, $2, $3)`, userID, token, expires)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create session: %w", err)
	}
	return token, expires, nil
}

// updateQuery builds UPDATE ... SET ... RETURNING for known columns. Column
// names come from the handlers' whitelists, never from user input directly.
func updateQuery(table, id string, cols map[string]interface{}, returning string) (string, []interface{}) {
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names))
	args := []interface{}{id}
	for _, name := range names {
		args = append(args, cols[name])
		placeholder := fmt.Sprintf("$%d", len(args))
		if name == "due_date" {
			placeholder += "::date"
		}
		sets = append(sets, fmt.Sprintf("%s = %s", name, placeholder))
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $1 RETURNING %s", table, strings.Join(sets, ", "), returning)
	return query, args
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
