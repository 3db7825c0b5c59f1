package server

import "fmt"

// migrate runs database migrations
func (s *Server) migrate() error {
	migrations := []string{
		migrationUsers,
		migrationTeams,
		migrationSessions,
		migrationProjectStatuses,
		migrationProjects,
		migrationTasks,
		migrationNotifications,
		migrationUpdatedAt,
		migrationRowChanges,
		migrationNotificationTriggers,
		migrationDueSweep,
	}

	for i, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}

const migrationUsers = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    email VARCHAR(255) UNIQUE NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const migrationTeams = `
CREATE TABLE IF NOT EXISTS teams (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS team_members (
    team_id UUID NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    role TEXT NOT NULL DEFAULT 'member',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (team_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_team_members_user ON team_members(user_id);
`

const migrationSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    token VARCHAR(64) UNIQUE NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_sessions_token ON sessions(token);
`

const migrationProjectStatuses = `
CREATE TABLE IF NOT EXISTS project_statuses (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    position INT NOT NULL
);

INSERT INTO project_statuses (id, name, position) VALUES
    ('planning', 'Planning', 1),
    ('in_progress', 'In Progress', 2),
    ('review', 'Review', 3),
    ('completed', 'Completed', 4)
ON CONFLICT (id) DO NOTHING;
`

// Row tables carry exactly the columns clients decode; the change trigger
// sends whole rows.
const migrationProjects = `
CREATE TABLE IF NOT EXISTS projects (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    team_id UUID NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    status_id TEXT REFERENCES project_statuses(id),
    due_date DATE,
    slug TEXT UNIQUE NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_projects_team ON projects(team_id);
`

const migrationTasks = `
CREATE TABLE IF NOT EXISTS tasks (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    priority TEXT NOT NULL DEFAULT 'medium'
        CHECK (priority IN ('low', 'medium', 'high', 'urgent')),
    status TEXT NOT NULL DEFAULT 'To Do'
        CHECK (status IN ('To Do', 'In Progress', 'Review', 'Completed')),
    due_date DATE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
`

const migrationNotifications = `
CREATE TABLE IF NOT EXISTS notifications (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    type TEXT NOT NULL
        CHECK (type IN ('DUE_DATE', 'TASK_OVERDUE', 'TEAM_MEMBER_ADDED', 'PROJECT_CREATED', 'TASK_ASSIGNED')),
    title TEXT NOT NULL DEFAULT '',
    message TEXT NOT NULL DEFAULT '',
    read BOOLEAN NOT NULL DEFAULT FALSE,
    action_url TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC);
`

const migrationUpdatedAt = `
CREATE OR REPLACE FUNCTION set_updated_at() RETURNS trigger AS $$
BEGIN
    NEW.updated_at := clock_timestamp();
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS projects_updated_at ON projects;
CREATE TRIGGER projects_updated_at BEFORE UPDATE ON projects
    FOR EACH ROW EXECUTE FUNCTION set_updated_at();

DROP TRIGGER IF EXISTS tasks_updated_at ON tasks;
CREATE TRIGGER tasks_updated_at BEFORE UPDATE ON tasks
    FOR EACH ROW EXECUTE FUNCTION set_updated_at();
`

// NOTIFY payloads are capped near 8000 bytes. Oversized rows go out as id
// plus routing keys, which clients merge as a no-op until the next fetch.
const migrationRowChanges = `
CREATE OR REPLACE FUNCTION notify_row_change() RETURNS trigger AS $$
DECLARE
    rec RECORD;
    kind TEXT;
    body JSONB;
    scope JSONB;
    payload TEXT;
BEGIN
    IF TG_OP = 'DELETE' THEN
        rec := OLD;
        kind := 'deleted';
    ELSIF TG_OP = 'INSERT' THEN
        rec := NEW;
        kind := 'created';
    ELSE
        rec := NEW;
        kind := 'updated';
    END IF;

    IF TG_TABLE_NAME = 'projects' THEN
        scope := jsonb_build_object('team_id', rec.team_id);
    ELSIF TG_TABLE_NAME = 'tasks' THEN
        scope := jsonb_build_object('team_id', (SELECT p.team_id FROM projects p WHERE p.id = rec.project_id));
    ELSE
        scope := jsonb_build_object('user_id', rec.user_id);
    END IF;

    IF TG_OP = 'DELETE' THEN
        body := jsonb_build_object('id', rec.id);
    ELSE
        body := to_jsonb(rec);
    END IF;

    payload := jsonb_build_object('kind', kind, 'table', TG_TABLE_NAME, 'scope', scope, 'row', body)::text;
    IF octet_length(payload) > 7900 THEN
        payload := jsonb_build_object('kind', kind, 'table', TG_TABLE_NAME, 'scope', scope,
            'row', jsonb_build_object('id', rec.id))::text;
    END IF;

    PERFORM pg_notify('row_changes', payload);
    RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS projects_notify ON projects;
CREATE TRIGGER projects_notify AFTER INSERT OR UPDATE OR DELETE ON projects
    FOR EACH ROW EXECUTE FUNCTION notify_row_change();

DROP TRIGGER IF EXISTS tasks_notify ON tasks;
CREATE TRIGGER tasks_notify AFTER INSERT OR UPDATE OR DELETE ON tasks
    FOR EACH ROW EXECUTE FUNCTION notify_row_change();

DROP TRIGGER IF EXISTS notifications_notify ON notifications;
CREATE TRIGGER notifications_notify AFTER INSERT OR UPDATE OR DELETE ON notifications
    FOR EACH ROW EXECUTE FUNCTION notify_row_change();
`

const migrationNotificationTriggers = `
CREATE OR REPLACE FUNCTION notify_project_created() RETURNS trigger AS $$
BEGIN
    INSERT INTO notifications (user_id, type, title, message, action_url)
    SELECT m.user_id, 'PROJECT_CREATED', 'New project', NEW.name, '/projects/' || NEW.slug
    FROM team_members m
    WHERE m.team_id = NEW.team_id;
    RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS projects_created_notification ON projects;
CREATE TRIGGER projects_created_notification AFTER INSERT ON projects
    FOR EACH ROW EXECUTE FUNCTION notify_project_created();

CREATE OR REPLACE FUNCTION notify_member_added() RETURNS trigger AS $$
BEGIN
    INSERT INTO notifications (user_id, type, title, message, action_url)
    SELECT m.user_id, 'TEAM_MEMBER_ADDED', 'New team member', u.email, NULL
    FROM team_members m, users u
    WHERE m.team_id = NEW.team_id AND m.user_id <> NEW.user_id AND u.id = NEW.user_id;
    RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS team_members_added_notification ON team_members;
CREATE TRIGGER team_members_added_notification AFTER INSERT ON team_members
    FOR EACH ROW EXECUTE FUNCTION notify_member_added();
`

// notify_due_tasks inserts at most one DUE_DATE or TASK_OVERDUE notification
// per task, member and day. The server calls it on a timer.
const migrationDueSweep = `
CREATE OR REPLACE FUNCTION notify_due_tasks() RETURNS INTEGER AS $$
DECLARE
    inserted INTEGER;
BEGIN
    INSERT INTO notifications (user_id, type, title, message, action_url)
    SELECT m.user_id,
           CASE WHEN t.due_date = CURRENT_DATE THEN 'DUE_DATE' ELSE 'TASK_OVERDUE' END,
           CASE WHEN t.due_date = CURRENT_DATE THEN 'Task due today' ELSE 'Task overdue' END,
           t.title,
           '/tasks/' || t.id
    FROM tasks t
    JOIN projects p ON p.id = t.project_id
    JOIN team_members m ON m.team_id = p.team_id
    WHERE t.status <> 'Completed'
      AND t.due_date IS NOT NULL
      AND t.due_date <= CURRENT_DATE
      AND NOT EXISTS (
          SELECT 1 FROM notifications n
          WHERE n.user_id = m.user_id
            AND n.action_url = '/tasks/' || t.id
            AND n.created_at::date = CURRENT_DATE
      );
    GET DIAGNOSTICS inserted = ROW_COUNT;
    RETURN inserted;
END;
$$ LANGUAGE plpgsql;
`
