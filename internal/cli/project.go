package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/existflow/ironsync/internal/gateway"
	"github.com/existflow/ironsync/internal/model"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
	Long:  `Create, list and edit your team's projects.`,
}

var projectAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Create a new project",
	Long: `Create a new project in a team.

Examples:
  ironsync project add "Website relaunch"
  ironsync project add "Q3 report" --status in_progress --due 2026-09-30`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProjectAdd,
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all projects",
	RunE:    runProjectList,
}

var projectSetCmd = &cobra.Command{
	Use:   "set [project]",
	Short: "Change fields of a project",
	Long: `Change the given fields of a project, by id, id prefix or slug.

Examples:
  ironsync project set website --status review
  ironsync project set 3f2a --due ""`,
	Args: cobra.ExactArgs(1),
	RunE: runProjectSet,
}

var (
	projectDesc   string
	projectStatus string
	projectDue    string
	projectName   string
)

func init() {
	projectAddCmd.Flags().StringVarP(&projectDesc, "desc", "D", "", "Description")
	projectAddCmd.Flags().StringVarP(&projectStatus, "status", "s", "planning", "Status (planning, in_progress, review, completed)")
	projectAddCmd.Flags().StringVarP(&projectDue, "due", "d", "", "Due date (YYYY-MM-DD)")

	projectSetCmd.Flags().StringVarP(&projectName, "name", "n", "", "New name")
	projectSetCmd.Flags().StringVarP(&projectDesc, "desc", "D", "", "Description")
	projectSetCmd.Flags().StringVarP(&projectStatus, "status", "s", "", "Status")
	projectSetCmd.Flags().StringVarP(&projectDue, "due", "d", "", `Due date (YYYY-MM-DD, "" clears)`)

	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectSetCmd)
}

func runProjectAdd(cmd *cobra.Command, args []string) error {
	status, err := parseProjectStatus(projectStatus)
	if err != nil {
		return err
	}

	eng, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.Close()

	teamID := cfg.TeamID
	if teamID == "" {
		teams := eng.Identity().TeamIDs
		if len(teams) != 1 {
			return fmt.Errorf("you belong to %d teams: pass --team or run 'ironsync config team <id>'", len(teams))
		}
		teamID = teams[0]
	}

	p, err := eng.Gateway().CreateProject(cmd.Context(), gateway.CreateProjectInput{
		TeamID:      teamID,
		Name:        strings.Join(args, " "),
		Description: projectDesc,
		Status:      status,
		DueDate:     projectDue,
	})
	if err != nil {
		return err
	}

	fmt.Printf("✓ Created project: %s (id: %s, slug: %s)\n", p.Name, shortID(p.ID), p.Slug)
	return nil
}

func runProjectList(cmd *cobra.Command, args []string) error {
	eng, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.Close()

	st := eng.Store()
	var projects []model.Project
	for _, team := range eng.Identity().TeamIDs {
		projects = append(projects, st.Projects(team)...)
	}

	if len(projects) == 0 {
		fmt.Println("No projects found.")
		return nil
	}

	fmt.Println()
	fmt.Printf("  %-8s  %-24s  %-12s  %-10s  %s\n", "ID", "Name", "Status", "Due", "Tasks")
	fmt.Println(strings.Repeat("─", 70))

	total := 0
	for _, p := range projects {
		status, _ := model.ProjectStatusFromID(p.StatusID)
		count := st.TaskCount(p.ID)
		total += count
		fmt.Printf("  %-8s  %-24s  %-12s  %-10s  %d\n", shortID(p.ID), p.Name, status, p.DueDate, count)
	}

	fmt.Println(strings.Repeat("─", 70))
	fmt.Printf("  %d projects, %d tasks\n\n", len(projects), total)

	return nil
}

func runProjectSet(cmd *cobra.Command, args []string) error {
	patch := model.ProjectPatch{}
	flags := cmd.Flags()
	if flags.Changed("name") {
		patch.Name = model.Some(projectName)
	}
	if flags.Changed("desc") {
		patch.Description = model.Some(projectDesc)
	}
	if flags.Changed("status") {
		status, err := parseProjectStatus(projectStatus)
		if err != nil {
			return err
		}
		patch.StatusID = model.Some(status.ID())
	}
	if flags.Changed("due") {
		due, err := model.ParseDate(projectDue)
		if err != nil {
			return err
		}
		patch.DueDate = model.Some(due)
	}
	if !flags.Changed("name") && !flags.Changed("desc") && !flags.Changed("status") && !flags.Changed("due") {
		return fmt.Errorf("nothing to change: pass --name, --desc, --status or --due")
	}

	eng, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.Close()

	p, err := findProject(eng.Store(), eng.Identity().TeamIDs, args[0])
	if err != nil {
		return err
	}

	updated, err := eng.Gateway().UpdateProject(cmd.Context(), p.ID, patch)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Updated project: %s\n", updated.Name)
	return nil
}
