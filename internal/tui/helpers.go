package tui

import "github.com/existflow/ironsync/internal/model"

// truncate shortens a string to max runes with ellipsis
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// nextStatus cycles To Do → In Progress → Review → Completed → To Do
func nextStatus(s model.TaskStatus) model.TaskStatus {
	switch s {
	case model.TaskTodo:
		return model.TaskInProgress
	case model.TaskInProgress:
		return model.TaskReview
	case model.TaskReview:
		return model.TaskCompleted
	default:
		return model.TaskTodo
	}
}

var priorityKeys = map[string]model.TaskPriority{
	"1": model.PriorityUrgent,
	"2": model.PriorityHigh,
	"3": model.PriorityMedium,
	"4": model.PriorityLow,
}
