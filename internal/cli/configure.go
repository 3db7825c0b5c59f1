package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change settings",
	Long: `Show or change the settings stored in ~/.ironsync/config.yaml.

Examples:
  ironsync config
  ironsync config server https://sync.example.com
  ironsync config token
  ironsync config team 7d0c...`,
	RunE: runConfigShow,
}

var configServerCmd = &cobra.Command{
	Use:   "server [url]",
	Short: "Set the server URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prev := cfg.ServerURL
		cfg.ServerURL = strings.TrimRight(args[0], "/")
		if err := cfg.Validate(); err != nil {
			cfg.ServerURL = prev
			return err
		}
		return saveConfig("Server set to " + cfg.ServerURL)
	},
}

var configTokenCmd = &cobra.Command{
	Use:   "token [token]",
	Short: "Store the session token (prompts when omitted)",
	Long: `Store the session token issued by the server administrator
(see 'ironsync-server token'). Without an argument the token is read from
the terminal without echo, or from stdin when it is not a terminal.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigToken,
}

var configTeamCmd = &cobra.Command{
	Use:   "team [team-id]",
	Short: `Limit the client to one team ("" for all teams)`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.TeamID = strings.TrimSpace(args[0])
		if cfg.TeamID == "" {
			return saveConfig("Showing all teams")
		}
		return saveConfig("Team set to " + cfg.TeamID)
	},
}

var configCacheCmd = &cobra.Command{
	Use:   "cache [path|off]",
	Short: "Set the local snapshot path, or turn it off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.CachePath = args[0]
		return saveConfig("Cache set to " + cfg.CachePath)
	},
}

func init() {
	configCmd.AddCommand(configServerCmd)
	configCmd.AddCommand(configTokenCmd)
	configCmd.AddCommand(configTeamCmd)
	configCmd.AddCommand(configCacheCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	token := "(not set)"
	if cfg.Token != "" {
		token = "(set)"
	}
	team := cfg.TeamID
	if team == "" {
		team = "(all)"
	}

	fmt.Printf("config:   %s\n", cfg.Path())
	fmt.Printf("server:   %s\n", cfg.ServerURL)
	fmt.Printf("realtime: %s\n", cfg.RealtimeURL())
	fmt.Printf("token:    %s\n", token)
	fmt.Printf("team:     %s\n", team)
	fmt.Printf("cache:    %s\n", cfg.CachePath)
	fmt.Printf("log:      %s (%s)\n", cfg.LogFile, cfg.LogLevel)
	return nil
}

func runConfigToken(cmd *cobra.Command, args []string) error {
	var token string
	if len(args) == 1 {
		token = args[0]
	} else if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		fmt.Print("Session token: ")
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
		token = string(raw)
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read token: %w", err)
		}
		token = line
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("token required")
	}
	cfg.Token = token
	return saveConfig("Token saved")
}

func saveConfig(done string) error {
	if err := cfg.Save(); err != nil {
		return err
	}
	fmt.Printf("✓ %s\n", done)
	return nil
}
