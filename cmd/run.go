/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/allbin/go-valve/sequence"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <sequence.yaml>",
	Short: "Run a timed position sequence from a file",
	Long: `Load a sequence definition and run it against the valve controller.

  name: purge
  loop: false
  steps:
    - id: open
      position: A
      duration: 1.5
      next: close
    - id: close
      position: B
      duration: 500ms

Steps linked with 'next' into one chain run in chain order; otherwise they run
top to bottom in file order, or by their x/y coordinates when given. A button
press on the controller stops the run, as does Ctrl+C.

Examples:
  valvectl run purge.yaml
  valvectl run purge.yaml --loop --neutral C`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		def, err := sequence.LoadFile(args[0])
		if err != nil {
			fail("%v", err)
		}
		seq, err := def.Build()
		if err != nil {
			fail("%s: %v", args[0], err)
		}

		loop := def.Loop
		if cmd.Flags().Changed("loop") {
			loop, _ = cmd.Flags().GetBool("loop")
		}

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

		if err := s.Sequence().Load(seq); err != nil {
			fail("%v", err)
		}
		run, err := s.Sequence().ResolveOrder()
		if err != nil {
			fail("%v", err)
		}

		ctx, cancel := signalContext()
		defer cancel()

		port, err := connectSession(ctx, s)
		if err != nil {
			fail("%v", err)
		}

		name := def.Name
		if name == "" {
			name = args[0]
		}
		fmt.Printf("Running %s: %d steps in %s order", name, len(run.Nodes), run.Mode)
		if loop {
			fmt.Print(", looping until stopped")
		}
		fmt.Println()

		s.OnProgress(func(p sequence.Progress) {
			fmt.Printf("[%s] loop %d step %d/%d: %s\n",
				time.Now().Format("15:04:05.000"), p.Loop, p.Index, p.Total, p.Step)
			pub.PublishStep(port, p)
		})

		if err := s.Start(loop); err != nil {
			fail("%v", err)
		}

		go func() {
			<-ctx.Done()
			s.Stop()
		}()

		res, err := s.Sequence().Wait(context.Background())
		if err != nil {
			fail("%v", err)
		}
		pub.PublishFinished(port, res)

		switch res.Outcome {
		case sequence.Completed:
			fmt.Println(okStyle.Render("✓") + " completed")
		case sequence.Stopped:
			fmt.Printf("stopped by %s after %d loop(s)\n", res.Cause, res.Loops)
		default:
			fmt.Fprintln(os.Stderr, errStyle.Render("✗ "+res.Err.Error()))
		}
		if res.NeutralErr != nil {
			fmt.Fprintf(os.Stderr, "return to neutral failed: %v\n", res.NeutralErr)
		}
		if res.Outcome == sequence.Failed {
			os.Exit(2)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("loop", "l", false, "Repeat until stopped (overrides the file)")
}
