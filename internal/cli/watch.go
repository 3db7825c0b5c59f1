package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/existflow/ironsync/internal/logger"
	"github.com/existflow/ironsync/internal/store"
	"github.com/existflow/ironsync/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard of projects, tasks and notifications",
	Long: `Open the live dashboard. Changes made by teammates appear as they happen.

When stdout is not a terminal (or with --plain), every store change is
printed as one line instead.`,
	RunE: runWatch,
}

var watchPlain bool

func init() {
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "Print changes as lines instead of the dashboard")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	if !watchPlain && term.IsTerminal(int(os.Stdout.Fd())) {
		logger.Info("Launching TUI")
		return tui.Run(ctx, eng.Store(), eng.Gateway(), eng.Identity(), logger.Global())
	}

	return streamChanges(ctx, os.Stdout, eng.Store(), eng.Identity().UserID)
}

// streamChanges prints a summary, then one line per store change until ctx
// is cancelled
func streamChanges(ctx context.Context, w io.Writer, st *store.Store, userID string) error {
	snap := st.Snapshot()
	fmt.Fprintf(w, "%s  %d projects, %d tasks, %d unread\n",
		time.Now().Format("15:04:05"), len(snap.Projects), len(snap.Tasks), st.UnreadCount(userID))

	unsubscribe := printChanges(w, st)
	defer unsubscribe()

	<-ctx.Done()
	return nil
}

// printChanges writes a line to w for every change of st
func printChanges(w io.Writer, st *store.Store) (unsubscribe func()) {
	var mu sync.Mutex
	return st.Subscribe(func(ch store.Change) {
		line := describeChange(st, ch)
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "%s  %s\n", time.Now().Format("15:04:05"), line)
	})
}
