package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/existflow/ironsync/internal/model"
)

var (
	colorAccent = lipgloss.Color("#4ECDC4")
	colorMuted  = lipgloss.Color("#888888")
	colorRule   = lipgloss.Color("#333333")
	colorRow    = lipgloss.Color("#16213e")
	colorWarn   = lipgloss.Color("#FFE66D")
	colorAlert  = lipgloss.Color("#FF6B6B")
	colorSoon   = lipgloss.Color("#FFB347")
)

// priorityColors maps each priority to its badge color
var priorityColors = map[model.TaskPriority]lipgloss.Color{
	model.PriorityUrgent: colorAlert,
	model.PriorityHigh:   colorSoon,
	model.PriorityMedium: colorWarn,
	model.PriorityLow:    colorAccent,
}

var (
	HeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	HelpStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	ErrorStyle   = lipgloss.NewStyle().Foreground(colorAlert)
	DueSoonStyle = lipgloss.NewStyle().Foreground(colorSoon).Bold(true)
	UnreadStyle  = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)

	// SavingStyle marks rows the backend has not confirmed yet.
	SavingStyle = lipgloss.NewStyle().Foreground(colorWarn).Italic(true)

	SidebarStyle = lipgloss.NewStyle().
			Padding(1, 1).
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			BorderForeground(colorRule)

	TaskListStyle = lipgloss.NewStyle().Padding(1, 2)

	StatusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(colorMuted).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(colorRule)

	ModalStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent)
)

// Row styles are shared by the sidebar and the task list.
var (
	rowStyle         = lipgloss.NewStyle().Padding(0, 1)
	rowSelectedStyle = rowStyle.Background(colorRow).Bold(true)
	rowDoneStyle     = rowStyle.Foreground(colorMuted).Strikethrough(true)

	ProjectItemStyle         = rowStyle
	ProjectItemSelectedStyle = rowSelectedStyle
	TaskItemStyle            = rowStyle
	TaskItemSelectedStyle    = rowSelectedStyle
	TaskDoneStyle            = rowDoneStyle
)

// PriorityStyle returns the badge style for p. Urgent and high are bold.
func PriorityStyle(p model.TaskPriority) lipgloss.Style {
	c, ok := priorityColors[p]
	if !ok {
		c = priorityColors[model.PriorityLow]
	}
	s := lipgloss.NewStyle().Foreground(c)
	if p == model.PriorityUrgent || p == model.PriorityHigh {
		s = s.Bold(true)
	}
	return s
}

// FormatPriority renders the P1..P4 badge, P1 being urgent.
func FormatPriority(p model.TaskPriority) string {
	return PriorityStyle(p).Render(fmt.Sprintf("P%d", p.Rank()))
}

var statusIcons = map[model.TaskStatus]string{
	model.TaskCompleted:  "[x]",
	model.TaskInProgress: "[~]",
	model.TaskReview:     "[?]",
}

// StatusIcon is the checkbox shown for a task status.
func StatusIcon(s model.TaskStatus) string {
	if icon, ok := statusIcons[s]; ok {
		return icon
	}
	return "[ ]"
}

func rule(width int) string {
	return lipgloss.NewStyle().Foreground(colorRule).Render(strings.Repeat("─", width))
}
