// Package cache keeps a SQLite copy of the confirmed store contents so a
// restart shows data before the first fetch completes
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/store"
)

// Cache wraps the SQLite database connection
type Cache struct {
	db *sql.DB
}

// DefaultPath returns the default cache path (~/.ironsync/cache.db)
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".ironsync", "cache.db"), nil
}

// Open opens or creates the cache at path
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	// One writer; avoids SQLITE_BUSY between Save and Load.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to cache: %w", err)
	}

	c := &Cache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return c, nil
}

// Close closes the database
func (c *Cache) Close() error {
	return c.db.Close()
}

// Save replaces the cached snapshot of userID with snap
func (c *Cache) Save(ctx context.Context, userID string, snap store.Snapshot) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"projects", "tasks", "notifications"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, p := range snap.Projects {
		if p.Provisional || p.Pending {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projects (id, team_id, name, description, status_id, due_date, slug, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.TeamID, p.Name, p.Description, p.StatusID, string(p.DueDate), p.Slug,
			formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to save project %s: %w", p.ID, err)
		}
	}

	for _, t := range snap.Tasks {
		if t.Provisional || t.Pending {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (id, project_id, title, description, priority, status, due_date, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.ProjectID, t.Title, t.Description, string(t.Priority), string(t.Status), string(t.DueDate),
			formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to save task %s: %w", t.ID, err)
		}
	}

	for _, n := range snap.Notifications {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO notifications (id, user_id, type, title, message, read, action_url, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID, n.UserID, string(n.Type), n.Title, n.Message, n.Read, n.ActionURL, formatTime(n.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to save notification %s: %w", n.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES ('user_id', ?), ('saved_at', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		userID, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save cache owner: %w", err)
	}

	return tx.Commit()
}

// Load returns the cached snapshot of userID. A cache written for another
// user, or never written, yields an empty snapshot.
func (c *Cache) Load(ctx context.Context, userID string) (store.Snapshot, error) {
	var snap store.Snapshot

	var owner string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'user_id'`).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userID) {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("failed to read cache owner: %w", err)
	}

	if snap.Projects, err = c.loadProjects(ctx); err != nil {
		return store.Snapshot{}, err
	}
	if snap.Tasks, err = c.loadTasks(ctx); err != nil {
		return store.Snapshot{}, err
	}
	if snap.Notifications, err = c.loadNotifications(ctx); err != nil {
		return store.Snapshot{}, err
	}
	return snap, nil
}

// SavedAt returns when the cache was last written
func (c *Cache) SavedAt(ctx context.Context) (time.Time, bool) {
	var v string
	if err := c.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'saved_at'`).Scan(&v); err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	return t, err == nil
}

func (c *Cache) loadProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, team_id, name, description, status_id, due_date, slug, created_at, updated_at
		FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		var p model.Project
		var due, created, updated string
		if err := rows.Scan(&p.ID, &p.TeamID, &p.Name, &p.Description, &p.StatusID, &due, &p.Slug, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.DueDate = model.Date(due)
		p.CreatedAt = parseTime(created)
		p.UpdatedAt = parseTime(updated)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *Cache) loadTasks(ctx context.Context) ([]model.Task, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, project_id, title, description, priority, status, due_date, created_at, updated_at
		FROM tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		var t model.Task
		var priority, status, due, created, updated string
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &priority, &status, &due, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.Priority = model.TaskPriority(priority)
		t.Status = model.TaskStatus(status)
		t.DueDate = model.Date(due)
		t.CreatedAt = parseTime(created)
		t.UpdatedAt = parseTime(updated)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (c *Cache) loadNotifications(ctx context.Context) ([]model.Notification, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, message, read, action_url, created_at
		FROM notifications ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		var typ, created string
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Message, &n.Read, &n.ActionURL, &created); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = model.NotificationType(typ)
		n.CreatedAt = parseTime(created)
		out = append(out, n)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
