package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/store"
)

// parseTaskStatus accepts display names and short forms such as "todo" or "done"
func parseTaskStatus(s string) (model.TaskStatus, error) {
	switch normalize(s) {
	case "todo", "to_do", "open":
		return model.TaskTodo, nil
	case "in_progress", "doing", "wip":
		return model.TaskInProgress, nil
	case "review":
		return model.TaskReview, nil
	case "completed", "done":
		return model.TaskCompleted, nil
	}
	return "", fmt.Errorf("unknown task status %q (todo, in_progress, review, completed)", s)
}

// parseProjectStatus accepts display names and status ids
func parseProjectStatus(s string) (model.ProjectStatus, error) {
	if st, ok := model.ProjectStatusFromID(normalize(s)); ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown project status %q (planning, in_progress, review, completed)", s)
}

// parsePriority accepts names or the P1-P4 scale, 1 being urgent
func parsePriority(s string) (model.TaskPriority, error) {
	switch normalize(strings.TrimPrefix(strings.ToLower(s), "p")) {
	case "1", "urgent":
		return model.PriorityUrgent, nil
	case "2", "high":
		return model.PriorityHigh, nil
	case "3", "medium":
		return model.PriorityMedium, nil
	case "4", "low":
		return model.PriorityLow, nil
	}
	return "", fmt.Errorf("unknown priority %q (low, medium, high, urgent or 1-4)", s)
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// findProject resolves an id, unique id prefix or slug among the visible projects
func findProject(st *store.Store, teams []string, ref string) (model.Project, error) {
	var matches []model.Project
	for _, team := range teams {
		for _, p := range st.Projects(team) {
			if p.ID == ref || p.Slug == ref {
				return p, nil
			}
			if strings.HasPrefix(p.ID, ref) {
				matches = append(matches, p)
			}
		}
	}
	switch len(matches) {
	case 0:
		return model.Project{}, fmt.Errorf("project not found: %s", ref)
	case 1:
		return matches[0], nil
	}
	return model.Project{}, fmt.Errorf("project id %q is ambiguous (%d matches)", ref, len(matches))
}

// findTask resolves a task id or unique id prefix
func findTask(st *store.Store, teams []string, ref string) (model.Task, error) {
	if t, ok := st.Task(ref); ok {
		return t, nil
	}
	var matches []model.Task
	for _, team := range teams {
		for _, p := range st.Projects(team) {
			for _, t := range st.Tasks(p.ID) {
				if strings.HasPrefix(t.ID, ref) {
					matches = append(matches, t)
				}
			}
		}
	}
	switch len(matches) {
	case 0:
		return model.Task{}, fmt.Errorf("task not found: %s", ref)
	case 1:
		return matches[0], nil
	}
	return model.Task{}, fmt.Errorf("task id %q is ambiguous (%d matches)", ref, len(matches))
}

// shortID is the id prefix shown in listings
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// describeChange renders one store change as a log line for plain output
func describeChange(st *store.Store, ch store.Change) string {
	if ch.Entity == store.EntityAll {
		snap := st.Snapshot()
		return fmt.Sprintf("seeded     %d projects, %d tasks, %d notifications",
			len(snap.Projects), len(snap.Tasks), len(snap.Notifications))
	}

	verb := ch.Outcome.String()
	if ch.Replaced != "" {
		verb = "confirmed"
	}

	var what string
	switch ch.Entity {
	case store.EntityProject:
		if p, ok := st.Project(ch.ID); ok {
			what = fmt.Sprintf("%q", p.Name)
			if p.Provisional {
				what += " (saving)"
			}
		}
	case store.EntityTask:
		if t, ok := st.Task(ch.ID); ok {
			what = fmt.Sprintf("%q [%s, %s]", t.Title, t.Status, t.Priority)
			if t.Provisional {
				what += " (saving)"
			}
		}
	case store.EntityNotification:
		if n, ok := st.Notification(ch.ID); ok {
			what = fmt.Sprintf("%s %q", n.Type, n.Title)
			if n.Read {
				what += " (read)"
			}
		}
	}

	line := fmt.Sprintf("%-10s %-13s %s", verb, strings.TrimSuffix(string(ch.Entity), "s"), ch.ID)
	if ch.Replaced != "" {
		line += " (was " + ch.Replaced + ")"
	}
	if what != "" {
		line += " " + what
	}
	return line
}

// sortedTeams returns the team ids of the visible projects in a stable order
func sortedTeams(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
