package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/existflow/ironsync/internal/logger"
	"github.com/existflow/ironsync/server"
)

var (
	logLevel   string
	sweepEvery time.Duration
	tokenTTL   time.Duration
	teamName   string
	joinTeam   string
)

func main() {
	root := &cobra.Command{
		Use:           "ironsync-server",
		Short:         "ironsync backend: REST rows API and realtime change feed",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logger.Config{
				Level:   logger.ParseLevel(logLevel),
				Console: true,
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", getEnv("LOG_LEVEL", "INFO"), "Log level (DEBUG, INFO, WARN, ERROR)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE:  runServe,
	}
	serveCmd.Flags().DurationVar(&sweepEvery, "sweep-every", time.Hour, "Interval of the due-date notification sweep (0 disables)")

	tokenCmd := &cobra.Command{
		Use:   "token <email>",
		Short: "Create the user if needed and print a session token",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}
	tokenCmd.Flags().StringVar(&teamName, "team", "", "Name of the user's own team (default: the email)")
	tokenCmd.Flags().StringVar(&joinTeam, "join", "", "Also add the user to this team id")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "Token lifetime")

	root.AddCommand(serveCmd, tokenCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	port := getEnv("PORT", "8080")
	srv, err := server.New(databaseURL(), logger.Global())
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn("Error closing server", logger.F("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go srv.Run(ctx, sweepEvery)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ironsync server starting", logger.F("port", port))
		errCh <- srv.Start(":" + port)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
	}
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	srv, err := server.New(databaseURL(), logger.Global())
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	admin, ok := srv.Admin()
	if !ok {
		return errors.New("server has no database")
	}

	ctx := cmd.Context()
	team := teamName
	if team == "" {
		team = args[0]
	}
	userID, teamID, err := admin.EnsureUser(ctx, args[0], team)
	if err != nil {
		return err
	}
	if joinTeam != "" {
		if err := admin.AddMember(ctx, joinTeam, userID); err != nil {
			return fmt.Errorf("failed to join team %s: %w", joinTeam, err)
		}
	}
	token, expires, err := admin.IssueToken(ctx, userID, tokenTTL)
	if err != nil {
		return err
	}

	fmt.Printf("user_id: %s\n", userID)
	fmt.Printf("team_id: %s\n", teamID)
	fmt.Printf("token:   %s\n", token)
	fmt.Printf("expires: %s\n", expires.Format(time.RFC3339))
	return nil
}

func databaseURL() string {
	return getEnv("DATABASE_URL", "postgres://localhost:5432/ironsync?sslmode=disable")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
