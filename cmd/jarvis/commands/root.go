package commands

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-jarvis/internal/config"
	"github.com/teslashibe/go-jarvis/internal/log"
)

var (
	// Global flags
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "jarvis",
	Short: "Voice assistant for the lab",
	Long: `jarvis - a voice assistant that answers questions, reads lab sensors
and switches devices.

Configuration comes from jarvis.yaml (or --config), then the environment.
A .env file in the working directory is loaded first.

Examples:
  # Type commands instead of speaking them
  jarvis run --console

  # Serve the control API on :5000 without listening until POST /api/start
  jarvis run --dashboard --no-listen

  # Run the simulated lab and point the assistant at it
  jarvis lab serve &
  LAB_SERVER_URL=http://localhost:8000 jarvis run --console`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./"+config.DefaultFile+" if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	path := configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultFile); err == nil {
			path = config.DefaultFile
		}
	}

	c, err := config.Load(path)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	cfg = c
	logger = log.Init(c.LogLevel)
	return nil
}
