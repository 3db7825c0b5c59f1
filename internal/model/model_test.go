package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskApplyOnlySetFields(t *testing.T) {
	task := Task{ID: "t1", ProjectID: "p1", Title: "Write docs", Priority: PriorityHigh, Status: TaskTodo}

	changed := task.Apply(TaskPatch{ID: "t1", Status: Some(TaskCompleted)})

	assert.True(t, changed)
	assert.Equal(t, TaskCompleted, task.Status)
	assert.Equal(t, "Write docs", task.Title)
	assert.Equal(t, PriorityHigh, task.Priority)
	assert.Equal(t, "p1", task.ProjectID)

	assert.False(t, task.Apply(TaskPatch{ID: "t1", Status: Some(TaskCompleted)}), "same value is not a change")
}

func TestProjectApplyClearsExplicitEmpty(t *testing.T) {
	p := Project{ID: "p1", Name: "Website", DueDate: "2026-01-02"}
	require.True(t, p.Apply(ProjectPatch{ID: "p1", DueDate: Some(Date(""))}))
	assert.True(t, p.DueDate.IsZero())
	assert.Equal(t, "Website", p.Name)
}

func TestProjectPatchRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := Project{ID: "p1", TeamID: "team-1", Name: "Website", Slug: "website", UpdatedAt: now}

	var dst Project
	dst.Apply(src.Patch())
	assert.Equal(t, src, dst)
}

func TestPatchMergeAndWithout(t *testing.T) {
	edit := TaskPatch{ID: "t1", Status: Some(TaskCompleted)}.Merge(TaskPatch{ID: "t1", Title: Some("Ship")})
	assert.Equal(t, Some(TaskCompleted), edit.Status)
	assert.Equal(t, Some("Ship"), edit.Title)

	left := edit.Without(TaskPatch{Title: Some("Other"), UpdatedAt: Some(time.Now())})
	assert.False(t, left.Title.Set)
	assert.False(t, left.Empty())
	assert.True(t, left.Without(TaskPatch{Status: Some(TaskTodo)}).Empty())

	assert.True(t, ProjectPatch{ID: "p1", UpdatedAt: Some(time.Now())}.Empty(), "timestamps alone are not data")
	assert.False(t, ProjectPatch{}.Merge(ProjectPatch{Name: Some("")}).Empty())
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Website":              "website",
		"  New Marketing Site ": "new-marketing-site",
		"Q3 -- Planning!!":     "q3-planning",
		"Café":                 "caf",
		"":                     "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-10-14")
	require.NoError(t, err)
	assert.Equal(t, Date("2026-10-14"), d)

	_, err = ParseDate("14/10/2026")
	assert.Error(t, err)

	d, err = ParseDate("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())
}

func TestTaskDueness(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

	overdue := Task{DueDate: "2026-10-13"}
	today := Task{DueDate: "2026-10-14"}
	later := Task{DueDate: "2026-10-20"}
	done := Task{DueDate: "2026-10-01", Status: TaskCompleted}

	assert.True(t, overdue.IsOverdue(now))
	assert.True(t, overdue.IsDue(now))
	assert.False(t, today.IsOverdue(now))
	assert.True(t, today.IsDue(now))
	assert.False(t, later.IsDue(now))
	assert.False(t, done.IsOverdue(now))
}

func TestProjectStatusIDs(t *testing.T) {
	for _, s := range ProjectStatuses {
		require.True(t, s.Valid())
		back, ok := ProjectStatusFromID(s.ID())
		require.True(t, ok)
		assert.Equal(t, s, back)
	}
	assert.False(t, ProjectStatus("Archived").Valid())
}
