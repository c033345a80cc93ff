package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nfrund/liverelay/cmd/relay/internal/tail"
	"github.com/spf13/cobra"
)

var (
	tailURL      string
	tailToken    string
	tailStreamID string
	tailFormat   string
	tailPing     time.Duration
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Connect to a relay and print messages as they arrive",
	Long: `Connect to a relay's /realtime endpoint and print every message it sends,
starting with the replayed history.

Examples:
  relay tail --token secret
  relay tail --url ws://relay.internal:8080/realtime --token secret --stream s1
  relay tail --token secret --format json

Output formats:
  text - one colored line per message (default)
  json - one JSON object per line
  yaml - one YAML document per message`,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := tail.NewFormatter(cmd.OutOrStdout(), tailFormat)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return tail.Run(ctx, tail.Options{
			URL:          tailURL,
			Token:        tailToken,
			StreamID:     tailStreamID,
			PingInterval: tailPing,
		}, formatter)
	},
}

func init() {
	rootCmd.AddCommand(tailCmd)

	tailCmd.Flags().StringVarP(&tailURL, "url", "u", "ws://localhost:8080/realtime", "Relay WebSocket URL")
	tailCmd.Flags().StringVarP(&tailToken, "token", "t", os.Getenv("RELAY_TOKEN"), "API key (defaults to $RELAY_TOKEN)")
	tailCmd.Flags().StringVarP(&tailStreamID, "stream", "s", "", "Only show messages for this stream")
	tailCmd.Flags().StringVarP(&tailFormat, "format", "f", "text", "Output format (text, json, yaml)")
	tailCmd.Flags().DurationVar(&tailPing, "ping", 30*time.Second, "Heartbeat interval, 0 to disable")
}
