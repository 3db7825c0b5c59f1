package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/existflow/ironsync/internal/config"
	"github.com/existflow/ironsync/internal/logger"
)

var (
	logLevel   string
	logFile    string
	logConsole bool
	serverFlag string
	teamFlag   string

	// cfg is loaded before every command runs
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ironsync",
	Short: "ironsync - realtime team projects and tasks in the terminal",
	Long: `ironsync keeps a live, optimistic view of your team's projects, tasks
and notifications, synchronized with the ironsync server.

Run 'ironsync' without arguments to open the live dashboard.`,
	SilenceUsage: true,
	PersistentPreRunE: setup,
	RunE: runWatch,

	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Debug("command finished", logger.F("command", cmd.CommandPath()))
		logger.Close()
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// setup loads the config, applies flag overrides and starts the logger.
// Logging flags are written back to the config file; --server and --team
// only apply to this invocation.
func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load()
	if err != nil {
		logger.Warn("Failed to load config, using defaults", logger.F("error", err))
		loaded = config.DefaultConfig()
	}
	cfg = loaded

	if persistLogFlags(cmd.Flags()) {
		if err := cfg.Save(); err != nil {
			logger.Warn("Failed to save config", logger.F("error", err))
		}
	}

	if serverFlag != "" {
		cfg.ServerURL = serverFlag
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if teamFlag != "" {
		cfg.TeamID = teamFlag
	}

	err = logger.Init(logger.Config{
		Level:      logger.ParseLevel(cfg.LogLevel),
		FilePath:   cfg.LogFile,
		Console:    cfg.LogConsole,
		MaxSize:    10 << 20,
		MaxAge:     7,
		MaxBackups: 5,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Debug("command starting", logger.F("command", cmd.CommandPath()), logger.F("server", cfg.ServerURL))
	return nil
}

// persistLogFlags copies explicitly set logging flags into cfg and reports
// whether any were set.
func persistLogFlags(flags *pflag.FlagSet) bool {
	changed := false
	if flags.Changed("log-level") {
		cfg.LogLevel, changed = logLevel, true
	}
	if flags.Changed("log-file") {
		cfg.LogFile, changed = logFile, true
	}
	if flags.Changed("log-console") {
		cfg.LogConsole, changed = logConsole, true
	}
	return changed
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	pf.StringVar(&logFile, "log-file", "", "Path to log file")
	pf.BoolVar(&logConsole, "log-console", false, "Also log to stderr")
	pf.StringVar(&serverFlag, "server", "", "Server URL for this invocation")
	pf.StringVar(&teamFlag, "team", "", "Limit to one team for this invocation")

	rootCmd.Flags().BoolVar(&watchPlain, "plain", false, "Print changes as lines instead of the dashboard")

	rootCmd.AddCommand(
		watchCmd,
		projectCmd,
		taskCmd,
		doneCmd,
		deleteCmd,
		inboxCmd,
		statusCmd,
		configCmd,
		cacheCmd,
	)
}
