package model

// Table names as the backend and its change feed spell them
const (
	TableProjects      = "projects"
	TableTasks         = "tasks"
	TableNotifications = "notifications"
)

// Tables lists every table a client subscribes to
var Tables = []string{TableProjects, TableTasks, TableNotifications}
