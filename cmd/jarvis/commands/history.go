package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-jarvis/pkg/store"
)

var (
	historyLimit    int
	historyReadings bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show stored conversation or lab readings",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.Open(cfg.Store.Path, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		if historyReadings {
			readings, err := db.RecentReadings(ctx, historyLimit)
			if err != nil {
				return err
			}
			for _, r := range readings {
				fmt.Fprintf(out, "%s  %5.1f°C  %5.1f%%  pump=%-5v gas_alert=%v\n",
					r.At.Format("2006-01-02 15:04:05"), r.Temperature, r.Humidity, r.Pump, r.GasAlert)
			}
			if avg, ok, err := db.AverageTemperature(ctx); err == nil && ok {
				fmt.Fprintf(out, "average temperature: %.1f°C\n", avg)
			}
			if avg, ok, err := db.AverageHumidity(ctx); err == nil && ok {
				fmt.Fprintf(out, "average humidity: %.1f%%\n", avg)
			}
			return nil
		}

		msgs, err := db.RecentMessages(ctx, historyLimit)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Fprintln(out, "No conversation recorded yet.")
			return nil
		}
		for _, m := range msgs {
			fmt.Fprintf(out, "%s  %-6s  %s\n", m.Timestamp.Format("2006-01-02 15:04:05"), m.Speaker, m.Message)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries to show")
	historyCmd.Flags().BoolVar(&historyReadings, "readings", false, "show lab readings instead of conversation")
	rootCmd.AddCommand(historyCmd)
}
