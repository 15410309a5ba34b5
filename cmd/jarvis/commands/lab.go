package commands

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-jarvis/pkg/lab"
)

var (
	labAddr     string
	labInterval time.Duration
)

var labCmd = &cobra.Command{
	Use:   "lab",
	Short: "Lab sensor server commands",
}

var labServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the simulated lab sensor server",
	Long: `Serve simulated sensor readings on GET /data and a switchable pump on
POST /pump?state=on|off. Readings change every interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := labAddr
		if addr == "" {
			addr = cfg.Lab.ListenAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return lab.NewServer(addr, lab.WithInterval(labInterval), lab.WithLogger(logger)).Run(ctx)
	},
}

func init() {
	labServeCmd.Flags().StringVar(&labAddr, "addr", "", "listen address (default lab.listen_addr, :8000)")
	labServeCmd.Flags().DurationVar(&labInterval, "interval", lab.DefaultInterval, "sensor refresh interval")
	labCmd.AddCommand(labServeCmd)
	rootCmd.AddCommand(labCmd)
}
