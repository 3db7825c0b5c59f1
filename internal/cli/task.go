package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/existflow/ironsync/internal/gateway"
	"github.com/existflow/ironsync/internal/model"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Add a new task",
	Long: `Add a new task to a project.

Examples:
  ironsync task add "Write landing copy" -P website
  ironsync task add "Fix login" -P 3f2a -p urgent --due 2026-10-20`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTaskAdd,
}

var taskSetCmd = &cobra.Command{
	Use:   "set [task-id]",
	Short: "Change fields of a task",
	Long: `Change the given fields of a task. Ids may be shortened to a unique prefix.

Examples:
  ironsync task set 9c1e --status review
  ironsync task set 9c1e -p 1 --due ""`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskSet,
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	RunE:    runTaskList,
}

var (
	taskProject  string
	taskTitle    string
	taskDesc     string
	taskPriority string
	taskStatus   string
	taskDue      string
	taskAll      bool
)

func init() {
	taskAddCmd.Flags().StringVarP(&taskProject, "project", "P", "", "Project id, id prefix or slug")
	taskAddCmd.Flags().StringVarP(&taskDesc, "desc", "D", "", "Description")
	taskAddCmd.Flags().StringVarP(&taskPriority, "priority", "p", "medium", "Priority (low, medium, high, urgent or 1-4)")
	taskAddCmd.Flags().StringVarP(&taskStatus, "status", "s", "todo", "Status (todo, in_progress, review, completed)")
	taskAddCmd.Flags().StringVarP(&taskDue, "due", "d", "", "Due date (YYYY-MM-DD)")

	taskSetCmd.Flags().StringVarP(&taskTitle, "title", "t", "", "New title")
	taskSetCmd.Flags().StringVarP(&taskDesc, "desc", "D", "", "Description")
	taskSetCmd.Flags().StringVarP(&taskPriority, "priority", "p", "", "Priority")
	taskSetCmd.Flags().StringVarP(&taskStatus, "status", "s", "", "Status")
	taskSetCmd.Flags().StringVarP(&taskDue, "due", "d", "", `Due date (YYYY-MM-DD, "" clears)`)
	taskSetCmd.Flags().StringVarP(&taskProject, "project", "P", "", "Move to another project")

	taskListCmd.Flags().StringVarP(&taskProject, "project", "P", "", "Filter by project")
	taskListCmd.Flags().BoolVarP(&taskAll, "all", "a", false, "Include completed tasks")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskSetCmd)
	taskCmd.AddCommand(taskListCmd)
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	priority, err := parsePriority(taskPriority)
	if err != nil {
		return err
	}
	status, err := parseTaskStatus(taskStatus)
	if err != nil {
		return err
	}

	eng, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.Close()

	proj, err := pickProject(eng, taskProject)
	if err != nil {
		return err
	}

	t, err := eng.Gateway().CreateTask(cmd.Context(), gateway.CreateTaskInput{
		ProjectID:   proj.ID,
		Title:       strings.Join(args, " "),
		Description: taskDesc,
		Priority:    priority,
		Status:      status,
		DueDate:     taskDue,
	})
	if err != nil {
		return err
	}

	fmt.Printf("✓ Added to [%s]: \"%s\" (P%d, id: %s)\n", proj.Name, t.Title, t.Priority.Rank(), shortID(t.ID))
	return nil
}

// pickProject resolves ref, or the only project when ref is empty
func pickProject(eng *engine, ref string) (model.Project, error) {
	teams := eng.Identity().TeamIDs
	if ref != "" {
		return findProject(eng.Store(), teams, ref)
	}
	var all []model.Project
	for _, team := range teams {
		all = append(all, eng.Store().Projects(team)...)
	}
	if len(all) != 1 {
		return model.Project{}, fmt.Errorf("%d projects visible: pass --project", len(all))
	}
	return all[0], nil
}

func runTaskSet(cmd *cobra.Command, args []string) error {
	patch := model.TaskPatch{}
	flags := cmd.Flags()
	changed := false
	if flags.Changed("title") {
		patch.Title = model.Some(taskTitle)
		changed = true
	}
	if flags.Changed("desc") {
		patch.Description = model.Some(taskDesc)
		changed = true
	}
	if flags.Changed("priority") {
		priority, err := parsePriority(taskPriority)
		if err != nil {
			return err
		}
		patch.Priority = model.Some(priority)
		changed = true
	}
	if flags.Changed("status") {
		status, err := parseTaskStatus(taskStatus)
		if err != nil {
			return err
		}
		patch.Status = model.Some(status)
		changed = true
	}
	if flags.Changed("due") {
		due, err := model.ParseDate(taskDue)
		if err != nil {
			return err
		}
		patch.DueDate = model.Some(due)
		changed = true
	}
	if !changed && !flags.Changed("project") {
		return fmt.Errorf("nothing to change: pass --title, --desc, --priority, --status, --due or --project")
	}

	eng, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.Close()

	teams := eng.Identity().TeamIDs
	t, err := findTask(eng.Store(), teams, args[0])
	if err != nil {
		return err
	}
	if flags.Changed("project") {
		proj, err := findProject(eng.Store(), teams, taskProject)
		if err != nil {
			return err
		}
		patch.ProjectID = model.Some(proj.ID)
	}

	updated, err := eng.Gateway().UpdateTask(cmd.Context(), t.ID, patch)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Updated: \"%s\" [%s, P%d]\n", updated.Title, updated.Status, updated.Priority.Rank())
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	eng, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.Close()

	st := eng.Store()
	teams := eng.Identity().TeamIDs

	var projects []model.Project
	if taskProject != "" {
		p, err := findProject(st, teams, taskProject)
		if err != nil {
			return err
		}
		projects = []model.Project{p}
	} else {
		for _, team := range teams {
			projects = append(projects, st.Projects(team)...)
		}
	}

	shown := 0
	for _, p := range projects {
		tasks := st.Tasks(p.ID)
		if !taskAll {
			open := tasks[:0]
			for _, t := range tasks {
				if t.Status != model.TaskCompleted {
					open = append(open, t)
				}
			}
			tasks = open
		}
		if len(tasks) == 0 {
			continue
		}

		fmt.Printf("\n📁 %s\n", p.Name)
		fmt.Println(strings.Repeat("─", 60))
		for _, t := range tasks {
			fmt.Println("  " + taskLine(t))
		}
		shown += len(tasks)
	}

	if shown == 0 {
		fmt.Println("No tasks found.")
		return nil
	}
	fmt.Printf("\n  %d tasks\n\n", shown)
	return nil
}

func taskLine(t model.Task) string {
	icon := "○"
	if t.Status == model.TaskCompleted {
		icon = "✓"
	}
	line := fmt.Sprintf("%s %-8s P%d  %-40s  %s", icon, shortID(t.ID), t.Priority.Rank(), t.Title, t.Status)
	if !t.DueDate.IsZero() {
		line += "  due " + t.DueDate.String()
	}
	return line
}
