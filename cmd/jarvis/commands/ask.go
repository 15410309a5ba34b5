package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-jarvis/pkg/assistant"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question",
	Long: `Ask the knowledge service one question with a fresh conversation and
print the answer. Nothing is spoken and no history is kept.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return fmt.Errorf("no prompt provided")
		}

		cfg.Speech.Mode = "console"
		cfg.TTS.Provider = "console"
		cfg.Dashboard.Enabled = false
		cfg.MQTT.Enabled = false
		cfg.Lab.Enabled = false

		app, err := assistant.New(cfg, assistant.WithLogger(logger))
		if err != nil {
			return err
		}
		defer app.Shutdown()

		fmt.Fprintln(cmd.OutOrStdout(), app.Ask(cmd.Context(), question))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
