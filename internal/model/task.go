package model

import "time"

// TaskStatus is the workflow state of a task
type TaskStatus string

const (
	TaskTodo       TaskStatus = "To Do"
	TaskInProgress TaskStatus = "In Progress"
	TaskReview     TaskStatus = "Review"
	TaskCompleted  TaskStatus = "Completed"
)

// Valid reports whether s is a known task status
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskReview, TaskCompleted:
		return true
	}
	return false
}

// TaskPriority levels for tasks
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// Valid reports whether p is a known priority
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Rank orders priorities, urgent first
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 1
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 3
	default:
		return 4
	}
}

// Task belongs to exactly one project
type Task struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"project_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Priority    TaskPriority `json:"priority"`
	Status      TaskStatus   `json:"status"`
	DueDate     Date         `json:"due_date,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`

	Provisional bool `json:"-"`
	Pending     bool `json:"-"`
}

// TaskPatch is a partial task record. ID is always required.
type TaskPatch struct {
	ID          string
	ProjectID   Opt[string]
	Title       Opt[string]
	Description Opt[string]
	Priority    Opt[TaskPriority]
	Status      Opt[TaskStatus]
	DueDate     Opt[Date]
	CreatedAt   Opt[time.Time]
	UpdatedAt   Opt[time.Time]
}

// Apply merges the set fields of patch into t and reports whether t changed
func (t *Task) Apply(patch TaskPatch) bool {
	changed := false
	if t.ID == "" {
		t.ID = patch.ID
		changed = true
	}
	changed = assign(&t.ProjectID, patch.ProjectID) || changed
	changed = assign(&t.Title, patch.Title) || changed
	changed = assign(&t.Description, patch.Description) || changed
	changed = assign(&t.Priority, patch.Priority) || changed
	changed = assign(&t.Status, patch.Status) || changed
	changed = assign(&t.DueDate, patch.DueDate) || changed
	changed = assignTime(&t.CreatedAt, patch.CreatedAt) || changed
	changed = assignTime(&t.UpdatedAt, patch.UpdatedAt) || changed
	return changed
}

// Patch returns a patch carrying every field of t
func (t Task) Patch() TaskPatch {
	return TaskPatch{
		ID:          t.ID,
		ProjectID:   Some(t.ProjectID),
		Title:       Some(t.Title),
		Description: Some(t.Description),
		Priority:    Some(t.Priority),
		Status:      Some(t.Status),
		DueDate:     Some(t.DueDate),
		CreatedAt:   Some(t.CreatedAt),
		UpdatedAt:   Some(t.UpdatedAt),
	}
}

// Merge returns p with the set fields of o layered on top
func (p TaskPatch) Merge(o TaskPatch) TaskPatch {
	overlay(&p.ProjectID, o.ProjectID)
	overlay(&p.Title, o.Title)
	overlay(&p.Description, o.Description)
	overlay(&p.Priority, o.Priority)
	overlay(&p.Status, o.Status)
	overlay(&p.DueDate, o.DueDate)
	overlay(&p.CreatedAt, o.CreatedAt)
	overlay(&p.UpdatedAt, o.UpdatedAt)
	return p
}

// Without returns p minus every field o sets
func (p TaskPatch) Without(o TaskPatch) TaskPatch {
	unset(&p.ProjectID, o.ProjectID)
	unset(&p.Title, o.Title)
	unset(&p.Description, o.Description)
	unset(&p.Priority, o.Priority)
	unset(&p.Status, o.Status)
	unset(&p.DueDate, o.DueDate)
	unset(&p.CreatedAt, o.CreatedAt)
	unset(&p.UpdatedAt, o.UpdatedAt)
	return p
}

// Empty reports whether p sets no data field. Timestamps are not data.
func (p TaskPatch) Empty() bool {
	return !p.ProjectID.Set && !p.Title.Set && !p.Description.Set &&
		!p.Priority.Set && !p.Status.Set && !p.DueDate.Set
}

// IsDue returns true if the task is due today or overdue
func (t *Task) IsDue(now time.Time) bool {
	due, ok := t.DueDate.Time(now.Location())
	if !ok || t.Status == TaskCompleted {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return due.Before(today.Add(24 * time.Hour))
}

// IsOverdue returns true if the task is past its due date
func (t *Task) IsOverdue(now time.Time) bool {
	due, ok := t.DueDate.Time(now.Location())
	if !ok || t.Status == TaskCompleted {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return due.Before(today)
}
