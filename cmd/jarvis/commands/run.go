package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-jarvis/pkg/assistant"
)

var (
	runConsole   bool
	runDashboard bool
	runNoListen  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start listening for commands",
	Long: `Start the assistant. It greets you, then listens for commands until you
say the shutdown keyword, the microphone disappears, or you press Ctrl+C.

With --dashboard the control API keeps serving after the session ends and
listening can be restarted with POST /api/start.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runConsole {
			cfg.Speech.Mode = "console"
			cfg.TTS.Provider = "console"
		}
		if runDashboard {
			cfg.Dashboard.Enabled = true
		}

		app, err := assistant.New(cfg, assistant.WithLogger(logger), assistant.WithIO(os.Stdin, cmd.OutOrStdout()))
		if err != nil {
			return err
		}
		defer app.Shutdown()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return app.Run(ctx, !runNoListen)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runConsole, "console", false, "read typed commands and print replies")
	runCmd.Flags().BoolVar(&runDashboard, "dashboard", false, "serve the control API (JARVIS_DASHBOARD_ADDR, default :5000)")
	runCmd.Flags().BoolVar(&runNoListen, "no-listen", false, "do not start listening until POST /api/start")
	rootCmd.AddCommand(runCmd)
}
