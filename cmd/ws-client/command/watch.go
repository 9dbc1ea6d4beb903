package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	ws "gatehub/internal/microservices/websocket"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var (
	expectUpdates int
	watchTimeout  time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Connect and print process updates until the run completes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		if watchTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, watchTimeout)
			defer cancel()
		}
		_, err := Watch(ctx, serverURL, token, expectUpdates, cmd.OutOrStdout())
		return err
	},
}

func init() {
	watchCmd.Flags().IntVar(&expectUpdates, "expect", 3, "number of process updates to wait for")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", time.Minute, "give up after this long (0 = never)")
	rootCmd.AddCommand(watchCmd)
}

// Watch dials the server and prints envelopes until expect process updates arrived.
// returns the received updates in order
func Watch(ctx context.Context, url, token string, expect int, out io.Writer) ([]string, error) {
	if expect < 1 {
		return nil, fmt.Errorf("--expect must be at least 1, got %d", expect)
	}

	header := http.Header{}
	if token != "" {
		header.Add("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connection failed (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	defer conn.Close()

	runID := resp.Header.Get(ws.RunIDHeader)
	fmt.Fprintf(out, "connected, run %s\n", runID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// unblock ReadMessage when ctx ends
	go func() {
		<-ctx.Done()
		conn.SetReadDeadline(time.Now())
	}()

	updates := make([]string, 0, expect)
	for len(updates) < expect {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return updates, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return updates, errors.New("server closed the connection before the run completed")
			}
			return updates, fmt.Errorf("read failed: %w", err)
		}

		msg, err := ws.Decode(frame)
		if err != nil {
			color.New(color.FgRed).Fprintf(out, "undecodable frame: %v\n", err)
			continue
		}
		switch m := msg.(type) {
		case ws.ProcessUpdate:
			updates = append(updates, m.Update)
			color.New(color.FgGreen).Fprintf(out, "✔ %s\n", m.Update)
		case ws.Echo:
			color.New(color.FgCyan).Fprintf(out, "echo %s\n", m.Payload)
		}
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return updates, nil
}
