package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-jarvis/pkg/hub"
	"github.com/teslashibe/go-jarvis/pkg/journal"
)

var watchURL string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream the live event log from a running assistant",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, watchURL, nil)
		if err != nil {
			return fmt.Errorf("connect to %s: %w", watchURL, err)
		}
		defer conn.Close()

		go func() {
			<-ctx.Done()
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		}()

		out := cmd.OutOrStdout()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}
				return err
			}

			var env hub.Envelope
			if err := json.Unmarshal(data, &env); err != nil || env.Type != hub.TypeLog {
				continue
			}
			printEntry(out, env.Entry)
		}
	},
}

func printEntry(w io.Writer, e journal.Entry) {
	keys := make([]string, 0, len(e.Detail))
	for k := range e.Detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Detail[k])
	}
	fmt.Fprintf(w, "%s  %-22s%s\n", e.Time.Format("15:04:05"), e.Event, b.String())
}

func init() {
	watchCmd.Flags().StringVar(&watchURL, "url", "ws://localhost:5000/ws/logs", "log stream URL")
	rootCmd.AddCommand(watchCmd)
}
