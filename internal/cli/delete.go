package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/existflow/ironsync/internal/model"
)

var deleteCmd = &cobra.Command{
	Use:     "delete [task-id]",
	Aliases: []string{"rm"},
	Short:   "Delete a task, or a project with --project",
	Long: `Delete a task by its id or id prefix. With --project the argument names a
project, which is deleted together with its tasks.

Examples:
  ironsync delete 9c1e
  ironsync rm website --project --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

var (
	deleteProject bool
	deleteYes     bool
)

func init() {
	deleteCmd.Flags().BoolVar(&deleteProject, "project", false, "Delete a project instead of a task")
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Do not ask for confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	st := eng.Store()
	teams := eng.Identity().TeamIDs

	table, id, label := model.TableTasks, "", ""
	if deleteProject {
		p, err := findProject(st, teams, args[0])
		if err != nil {
			return err
		}
		table, id, label = model.TableProjects, p.ID, fmt.Sprintf("project \"%s\" and its %d tasks", p.Name, st.TaskCount(p.ID))
	} else {
		t, err := findTask(st, teams, args[0])
		if err != nil {
			return err
		}
		id, label = t.ID, fmt.Sprintf("\"%s\"", t.Title)
	}

	if !deleteYes {
		fmt.Printf("About to delete %s (ID: %s)\n", label, id)
		fmt.Print("Are you sure? [y/N]: ")
		var confirm string
		_, _ = fmt.Scanln(&confirm)
		if confirm != "y" && confirm != "Y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := eng.client.Delete(ctx, table, id); err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	if table == model.TableProjects {
		st.RemoveProject(id)
	} else {
		st.RemoveTask(id)
	}

	fmt.Printf("🗑️  Deleted %s\n", label)
	return nil
}
