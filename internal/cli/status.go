package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connection, identity and store status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Printf("Server:  %s\n", cfg.ServerURL)
	fmt.Printf("Config:  %s\n", cfg.Path())
	if !cfg.CacheEnabled() {
		fmt.Println("Cache:   off")
	} else {
		fmt.Printf("Cache:   %s\n", cfg.CachePath)
	}

	start := time.Now()
	eng, err := openEngine(cmd.Context())
	if err != nil {
		fmt.Println("Session: ✗")
		return err
	}
	defer eng.Close()

	id := eng.Identity()
	fmt.Printf("Session: ✓ signed in as %s (ready in %s)\n", id.UserID, time.Since(start).Round(time.Millisecond))
	fmt.Printf("Teams:   %s\n", strings.Join(sortedTeams(id.TeamIDs), ", "))

	if eng.cache != nil {
		if at, ok := eng.cache.SavedAt(cmd.Context()); ok {
			fmt.Printf("Cached:  %s\n", at.Local().Format(time.RFC1123))
		}
	}

	snap := eng.Store().Snapshot()
	fmt.Printf("Store:   %d projects, %d tasks, %d notifications (%d unread)\n",
		len(snap.Projects), len(snap.Tasks), len(snap.Notifications), eng.Store().UnreadCount(id.UserID))
	fmt.Printf("Feed:    %s\n", eng.Stats())
	return nil
}
