package model

import (
	"strings"
	"time"
	"unicode"
)

// ProjectStatus is the user-facing status of a project
type ProjectStatus string

const (
	ProjectPlanning   ProjectStatus = "Planning"
	ProjectInProgress ProjectStatus = "In Progress"
	ProjectReview     ProjectStatus = "Review"
	ProjectCompleted  ProjectStatus = "Completed"
)

// ProjectStatuses lists the accepted statuses in display order
var ProjectStatuses = []ProjectStatus{ProjectPlanning, ProjectInProgress, ProjectReview, ProjectCompleted}

var projectStatusIDs = map[ProjectStatus]string{
	ProjectPlanning:   "planning",
	ProjectInProgress: "in_progress",
	ProjectReview:     "review",
	ProjectCompleted:  "completed",
}

// Valid reports whether s is one of the enumerated statuses
func (s ProjectStatus) Valid() bool {
	_, ok := projectStatusIDs[s]
	return ok
}

// ID returns the status row id the backend stores in projects.status_id
func (s ProjectStatus) ID() string {
	return projectStatusIDs[s]
}

// ProjectStatusFromID maps a status_id back to its display status
func ProjectStatusFromID(id string) (ProjectStatus, bool) {
	for s, sid := range projectStatusIDs {
		if sid == id {
			return s, true
		}
	}
	return "", false
}

// Project belongs to exactly one team
type Project struct {
	ID          string    `json:"id"`
	TeamID      string    `json:"team_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StatusID    string    `json:"status_id"`
	DueDate     Date      `json:"due_date,omitempty"`
	Slug        string    `json:"slug"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Provisional marks an optimistic placeholder the backend has not created yet.
	// Pending marks a confirmed project carrying unconfirmed local edits.
	Provisional bool `json:"-"`
	Pending     bool `json:"-"`
}

// ProjectPatch is a partial project record. ID is always required.
type ProjectPatch struct {
	ID          string
	TeamID      Opt[string]
	Name        Opt[string]
	Description Opt[string]
	StatusID    Opt[string]
	DueDate     Opt[Date]
	Slug        Opt[string]
	CreatedAt   Opt[time.Time]
	UpdatedAt   Opt[time.Time]
}

// Apply merges the set fields of patch into p and reports whether p changed
func (p *Project) Apply(patch ProjectPatch) bool {
	changed := false
	if p.ID == "" {
		p.ID = patch.ID
		changed = true
	}
	changed = assign(&p.TeamID, patch.TeamID) || changed
	changed = assign(&p.Name, patch.Name) || changed
	changed = assign(&p.Description, patch.Description) || changed
	changed = assign(&p.StatusID, patch.StatusID) || changed
	changed = assign(&p.DueDate, patch.DueDate) || changed
	changed = assign(&p.Slug, patch.Slug) || changed
	changed = assignTime(&p.CreatedAt, patch.CreatedAt) || changed
	changed = assignTime(&p.UpdatedAt, patch.UpdatedAt) || changed
	return changed
}

// Patch returns a patch carrying every field of p
func (p Project) Patch() ProjectPatch {
	return ProjectPatch{
		ID:          p.ID,
		TeamID:      Some(p.TeamID),
		Name:        Some(p.Name),
		Description: Some(p.Description),
		StatusID:    Some(p.StatusID),
		DueDate:     Some(p.DueDate),
		Slug:        Some(p.Slug),
		CreatedAt:   Some(p.CreatedAt),
		UpdatedAt:   Some(p.UpdatedAt),
	}
}

// Merge returns p with the set fields of o layered on top
func (p ProjectPatch) Merge(o ProjectPatch) ProjectPatch {
	overlay(&p.TeamID, o.TeamID)
	overlay(&p.Name, o.Name)
	overlay(&p.Description, o.Description)
	overlay(&p.StatusID, o.StatusID)
	overlay(&p.DueDate, o.DueDate)
	overlay(&p.Slug, o.Slug)
	overlay(&p.CreatedAt, o.CreatedAt)
	overlay(&p.UpdatedAt, o.UpdatedAt)
	return p
}

// Without returns p minus every field o sets
func (p ProjectPatch) Without(o ProjectPatch) ProjectPatch {
	unset(&p.TeamID, o.TeamID)
	unset(&p.Name, o.Name)
	unset(&p.Description, o.Description)
	unset(&p.StatusID, o.StatusID)
	unset(&p.DueDate, o.DueDate)
	unset(&p.Slug, o.Slug)
	unset(&p.CreatedAt, o.CreatedAt)
	unset(&p.UpdatedAt, o.UpdatedAt)
	return p
}

// Empty reports whether p sets no data field. Timestamps are not data.
func (p ProjectPatch) Empty() bool {
	return !p.TeamID.Set && !p.Name.Set && !p.Description.Set &&
		!p.StatusID.Set && !p.DueDate.Set && !p.Slug.Set
}

// Slugify turns a project name into a lowercase, URL-safe slug
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
