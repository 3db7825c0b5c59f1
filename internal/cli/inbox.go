package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var inboxCmd = &cobra.Command{
	Use:     "inbox",
	Aliases: []string{"notifications"},
	Short:   "Show your notifications",
	RunE:    runInbox,
}

var inboxReadCmd = &cobra.Command{
	Use:   "read [notification-id...]",
	Short: "Mark notifications as read",
	Long: `Mark notifications as read by id or id prefix, or all of them with --all.

Examples:
  ironsync inbox read 51ab
  ironsync inbox read --all`,
	RunE: runInboxRead,
}

var (
	inboxUnread  bool
	inboxReadAll bool
)

func init() {
	inboxCmd.Flags().BoolVarP(&inboxUnread, "unread", "u", false, "Only unread notifications")
	inboxReadCmd.Flags().BoolVarP(&inboxReadAll, "all", "a", false, "Mark every unread notification")
	inboxCmd.AddCommand(inboxReadCmd)
}

func runInbox(cmd *cobra.Command, args []string) error {
	eng, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.Close()

	uid := eng.Identity().UserID
	notes := eng.Store().Notifications(uid)

	shown := 0
	fmt.Println()
	for _, n := range notes {
		if inboxUnread && n.Read {
			continue
		}
		mark := "●"
		if n.Read {
			mark = " "
		}
		fmt.Printf("  %s %-8s  %-17s  %s  %s\n", mark, shortID(n.ID), n.Type, n.CreatedAt.Local().Format("Jan 02 15:04"), n.Title)
		if n.Message != "" {
			fmt.Printf("    %s\n", n.Message)
		}
		shown++
	}

	if shown == 0 {
		fmt.Println("  No notifications.")
	}
	fmt.Printf("\n  %d unread\n\n", eng.Store().UnreadCount(uid))
	return nil
}

func runInboxRead(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !inboxReadAll {
		return fmt.Errorf("pass notification ids or --all")
	}

	eng, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.Close()

	var ids []string
	for _, n := range eng.Store().Notifications(eng.Identity().UserID) {
		if n.Read {
			continue
		}
		if inboxReadAll {
			ids = append(ids, n.ID)
			continue
		}
		for _, ref := range args {
			if strings.HasPrefix(n.ID, ref) {
				ids = append(ids, n.ID)
				break
			}
		}
	}

	if len(ids) == 0 {
		fmt.Println("Nothing to mark.")
		return nil
	}

	failed := 0
	for _, id := range ids {
		if err := eng.Gateway().MarkNotificationRead(cmd.Context(), id); err != nil {
			fmt.Printf("⚠️  %s: %v\n", shortID(id), err)
			failed++
		}
	}

	fmt.Printf("✓ Marked %d read\n", len(ids)-failed)
	if failed > 0 {
		return fmt.Errorf("%d notifications could not be marked", failed)
	}
	return nil
}
