package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/existflow/ironsync/internal/model"
)

var doneCmd = &cobra.Command{
	Use:   "done [task-id]",
	Short: "Mark a task as completed",
	Long: `Mark a task as completed. Ids may be shortened to a unique prefix.

Examples:
  ironsync done 9c1e
  ironsync done 9c1e --undo`,
	Args: cobra.ExactArgs(1),
	RunE: runDone,
}

var doneUndo bool

func init() {
	doneCmd.Flags().BoolVar(&doneUndo, "undo", false, "Move the task back to To Do")
}

func runDone(cmd *cobra.Command, args []string) error {
	eng, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.Close()

	task, err := findTask(eng.Store(), eng.Identity().TeamIDs, args[0])
	if err != nil {
		return err
	}

	status := model.TaskCompleted
	if doneUndo {
		status = model.TaskTodo
	}
	if _, err := eng.Gateway().UpdateTask(cmd.Context(), task.ID, model.TaskPatch{Status: model.Some(status)}); err != nil {
		return err
	}

	if doneUndo {
		fmt.Printf("○ Reopened: \"%s\"\n", task.Title)
	} else {
		fmt.Printf("✓ Completed: \"%s\"\n", task.Title)
	}
	return nil
}
