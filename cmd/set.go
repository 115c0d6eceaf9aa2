/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/allbin/go-valve"
)

var (
	okStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// setCmd represents the set command
var setCmd = &cobra.Command{
	Use:   "set <position>",
	Short: "Move the valve to a position",
	Long: `Move the valve to one of its positions and wait for the controller to
acknowledge it.

Example usage:
  valvectl set A --port /dev/ttyACM0
  valvectl set c --positions ABC`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pos, err := valve.ParsePosition(args[0])
		if err != nil {
			fail("%v", err)
		}
		runCommand(byte(pos))
	},
}

// stateCmd represents the state command
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Ask the valve controller for its current position",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runCommand(valve.QueryCommand)
	},
}

// runCommand connects, sends one command and prints the response line.
func runCommand(command byte) {
	logger, closer := newLogger()
	defer closer.Close()

	s, err := newSession(logger)
	if err != nil {
		fail("%v", err)
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if _, err := connectSession(ctx, s); err != nil {
		fail("%v", err)
	}

	resp, err := s.SendCommand(command)
	var devErr *valve.DeviceError
	switch {
	case errors.As(err, &devErr):
		fmt.Fprintln(os.Stderr, errStyle.Render("✗ "+resp.Line))
		os.Exit(2)
	case err != nil:
		fail("%v", err)
	}

	if pos, ok := resp.Position(); ok {
		fmt.Printf("%s %s\n", okStyle.Render("✓"), pos)
		return
	}
	fmt.Println(resp.Line)
}

func init() {
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(stateCmd)
}
