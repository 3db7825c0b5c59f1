package model

import "time"

// NotificationType enumerates the server-side notification triggers
type NotificationType string

const (
	NotifyDueDate         NotificationType = "DUE_DATE"
	NotifyTaskOverdue     NotificationType = "TASK_OVERDUE"
	NotifyTeamMemberAdded NotificationType = "TEAM_MEMBER_ADDED"
	NotifyProjectCreated  NotificationType = "PROJECT_CREATED"
	NotifyTaskAssigned    NotificationType = "TASK_ASSIGNED"
)

// Valid reports whether t is a known notification type
func (t NotificationType) Valid() bool {
	switch t {
	case NotifyDueDate, NotifyTaskOverdue, NotifyTeamMemberAdded, NotifyProjectCreated, NotifyTaskAssigned:
		return true
	}
	return false
}

// Notification is created by the backend and only read by clients,
// except for the read flag.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	ActionURL string           `json:"action_url"`
	CreatedAt time.Time        `json:"created_at"`
}

// NotificationPatch is a partial notification record
type NotificationPatch struct {
	ID        string
	UserID    Opt[string]
	Type      Opt[NotificationType]
	Title     Opt[string]
	Message   Opt[string]
	Read      Opt[bool]
	ActionURL Opt[string]
	CreatedAt Opt[time.Time]
}

// Apply merges the set fields of patch into n and reports whether n changed
func (n *Notification) Apply(patch NotificationPatch) bool {
	changed := false
	if n.ID == "" {
		n.ID = patch.ID
		changed = true
	}
	changed = assign(&n.UserID, patch.UserID) || changed
	changed = assign(&n.Type, patch.Type) || changed
	changed = assign(&n.Title, patch.Title) || changed
	changed = assign(&n.Message, patch.Message) || changed
	changed = assign(&n.Read, patch.Read) || changed
	changed = assign(&n.ActionURL, patch.ActionURL) || changed
	changed = assignTime(&n.CreatedAt, patch.CreatedAt) || changed
	return changed
}
