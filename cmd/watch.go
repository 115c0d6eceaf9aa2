/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/allbin/go-valve"
)

var (
	watchOutput string
	watchState  bool
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print hardware button events as they happen",
	Long: `Connect to the valve controller and report every position change made with
the hardware buttons. Press Ctrl+C to stop.

With --output the events are also appended to a file, one per line, so a
capture can be resumed without overwriting earlier data. With --nats-url they
are published as JSON.

Examples:
  valvectl watch --port /dev/ttyACM0
  valvectl watch --output buttons.log
  valvectl watch --nats-url nats://localhost:4222`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		logger, closer := newLogger()
		defer closer.Close()

		s, err := newSession(logger)
		if err != nil {
			fail("%v", err)
		}
		defer s.Close()

		pub, drain, err := newPublisher(logger)
		if err != nil {
			fail("%v", err)
		}
		defer drain()

		var out io.Writer = os.Stdout
		if watchOutput != "" {
			f, err := os.OpenFile(watchOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				fail("opening output file: %v", err)
			}
			defer f.Close()
			out = io.MultiWriter(os.Stdout, f)
		}

		ctx, cancel := signalContext()
		defer cancel()

		port, err := connectSession(ctx, s)
		if err != nil {
			fail("%v", err)
		}
		pub.PublishConnected(port)
		defer pub.PublishDisconnected(port)

		fmt.Printf("Watching %s for button events\n", port)
		fmt.Println("Press Ctrl+C to stop")

		if watchState {
			resp, err := s.QueryState()
			if err != nil {
				fail("reading initial state: %v", err)
			}
			fmt.Fprintf(out, "[%s] state %s\n", time.Now().Format("15:04:05.000"), resp.Payload)
		}

		positions := make(chan valve.Position, 16)
		unsubscribe := s.OnHardwareEvent(func(p valve.Position) {
			select {
			case positions <- p:
			default:
				logger.Warn("Dropping button event, output is behind", "position", p.String())
			}
		})
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				fmt.Println("\nStopping watch...")
				return
			case p := <-positions:
				fmt.Fprintf(out, "[%s] button %s\n", time.Now().Format("15:04:05.000"), p)
				pub.PublishHardwareEvent(port, p)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "", "Also append events to this file")
	watchCmd.Flags().BoolVar(&watchState, "state", true, "Print the current position first")
}
