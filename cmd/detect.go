/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/allbin/go-valve"
)

// detectCmd represents the detect command
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Find the valve controller among the serial ports",
	Long: `Rank the serial ports by USB signature, then open the likely ones in turn
and ask each for its state. The first port answering with a STATE line is the
controller. When none answers, the best-scoring port is reported as a
signature match.

Opening a port resets most Arduino-style boards, so each probe waits for the
board to settle before asking.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		logger, closer := newLogger()
		defer closer.Close()

		prober, err := newProber(logger)
		if err != nil {
			fail("%v", err)
		}

		ctx, cancel := signalContext()
		defer cancel()

		d, err := prober.Detect(ctx)
		if err != nil {
			fail("%v", err)
		}
		if d.Result != nil {
			defer d.Result.Close()
		}

		switch d.Mode {
		case valve.ModeHandshake:
			fmt.Printf("%s\thandshake\t%s\n", d.Candidate.Name, d.Result.Detail)
		case valve.ModeSignature:
			fmt.Printf("%s\tsignature\t%s\n", d.Candidate.Name, d.Candidate.Description)
		default:
			fail("no valve controller found among %d port(s)", len(d.Candidates))
		}
	},
}

// probeCmd represents the probe command
var probeCmd = &cobra.Command{
	Use:   "probe <port>",
	Short: "Check whether a port hosts a valve controller",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logger, closer := newLogger()
		defer closer.Close()

		prober, err := newProber(logger)
		if err != nil {
			fail("%v", err)
		}

		ctx, cancel := signalContext()
		defer cancel()

		res := prober.Probe(ctx, args[0])
		defer res.Close()
		if !res.Matched {
			fail("%s: %s", args[0], res.Detail)
		}
		fmt.Printf("%s\t%s\n", args[0], res.Detail)
	},
}

func newProber(logger *slog.Logger) (*valve.Prober, error) {
	opts, err := controllerOptions(logger)
	if err != nil {
		return nil, err
	}
	return valve.NewProber(opts...)
}

func init() {
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(probeCmd)
}
