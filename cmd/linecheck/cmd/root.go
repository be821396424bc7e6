package cmd

import (
	"log/slog"
	"os"

	"github.com/corey/linecheck/internal/config"
	"github.com/corey/linecheck/internal/logging"
	"github.com/spf13/cobra"
)

var (
	configFlag    string
	logLevelFlag  string
	logFormatFlag string
)

var rootCmd = &cobra.Command{
	Use:           "linecheck",
	Short:         "linecheck: exact line lookup over TCP",
	Long:          "Serves one query per connection and answers whether the query is a line of the configured file.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(err)
	}
	return err
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFlag, "config", "", "Config file (default $"+config.EnvConfigPath+" or ./"+config.DefaultFile+")")
	pf.StringVar(&logLevelFlag, "log-level", "", "Override log level (debug, info, warn, error, off)")
	pf.StringVar(&logFormatFlag, "log-format", "", "Override log format (human, json)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(configCmd)
}

// configPath returns the config file chosen by flag or environment.
// Empty means look for the default file.
func configPath() string {
	if configFlag != "" {
		return configFlag
	}
	return os.Getenv(config.EnvConfigPath)
}

// loadConfig loads the effective configuration with flag overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, err
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	if logFormatFlag != "" {
		cfg.Log.Format = logFormatFlag
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs go to stderr so stdout stays
// free for command output.
func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(os.Stderr, logging.LevelFromString(cfg.Log.Level), logging.Format(cfg.Log.Format))
}
