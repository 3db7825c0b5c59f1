package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local snapshot",
	Long: `The cache is a local copy of the last confirmed state, used so the
dashboard shows data before the first fetch completes.`,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the local snapshot",
	RunE:  runCacheClear,
}

func init() {
	cacheClearCmd.Flags().Bool("force", false, "Do not ask for confirmation")
	cacheCmd.AddCommand(cacheClearCmd)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	if !cfg.CacheEnabled() {
		fmt.Println("Cache is disabled.")
		return nil
	}

	force, _ := cmd.Flags().GetBool("force")
	if !force {
		fmt.Printf("Delete %s? (y/N): ", cfg.CachePath)
		var response string
		_, _ = fmt.Scanln(&response)
		if strings.ToLower(response) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	removed := 0
	for _, suffix := range []string{"", "-wal", "-shm"} {
		err := os.Remove(cfg.CachePath + suffix)
		if err == nil {
			removed++
			continue
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
	}

	if removed == 0 {
		fmt.Println("Cache was already empty.")
		return nil
	}
	fmt.Println("🧹 Cache cleared.")
	return nil
}
