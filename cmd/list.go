/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/allbin/go-valve"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List serial ports that could host a valve controller",
	Long: `List the serial endpoints on the system together with their USB metadata
and a likelihood score. Ports with Arduino, CH340, CP210x or FTDI signatures
score higher; detection probes them first.

Examples:
  valvectl list
  valvectl list --table
  valvectl list --filter usb --sort score`,
	Run: func(cmd *cobra.Command, args []string) {
		candidates, err := valve.ListCandidates()
		if err != nil {
			fail("listing ports: %v", err)
		}

		filterType, _ := cmd.Flags().GetString("filter")
		tableFormat, _ := cmd.Flags().GetBool("table")
		sortBy, _ := cmd.Flags().GetString("sort")

		filtered := filterCandidates(candidates, filterType)
		if len(filtered) == 0 {
			if filterType != "" {
				fmt.Printf("No serial ports found matching filter: %s\n", filterType)
			} else {
				fmt.Println("No serial ports found")
			}
			return
		}

		if sortBy == "score" {
			sort.SliceStable(filtered, func(i, j int) bool {
				return valve.Score(filtered[i]) > valve.Score(filtered[j])
			})
		}

		if tableFormat {
			renderTable(filtered)
		} else {
			renderSimple(filtered)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("filter", "f", "", "Filter by port type: usb, standard, arm, all")
	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
	listCmd.Flags().String("sort", "name", "Sort by: name, score")
}

// filterCandidates filters the port list based on the specified filter type
func filterCandidates(candidates []valve.PortCandidate, filterType string) []valve.PortCandidate {
	if filterType == "" || filterType == "all" {
		return candidates
	}

	var filtered []valve.PortCandidate
	for _, c := range candidates {
		name := strings.ToLower(filepath.Base(c.Name))
		switch strings.ToLower(filterType) {
		case "usb":
			if c.IsUSB {
				filtered = append(filtered, c)
			}
		case "standard":
			if strings.HasPrefix(name, "ttys") || strings.HasPrefix(name, "com") {
				filtered = append(filtered, c)
			}
		case "arm":
			if strings.HasPrefix(name, "ttyama") {
				filtered = append(filtered, c)
			}
		}
	}
	return filtered
}

// renderTable renders the port list in a styled static table format
func renderTable(candidates []valve.PortCandidate) {
	fmt.Printf("Found %d serial port(s):\n\n", len(candidates))

	portWidth := 16
	idWidth := 11
	descWidth := 32
	scoreWidth := 5

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("240")).
		PaddingBottom(1)

	cellStyle := lipgloss.NewStyle().
		PaddingRight(2)
	likelyStyle := cellStyle.Foreground(lipgloss.Color("42"))

	header := fmt.Sprintf("%-*s %-*s %-*s %*s",
		portWidth, "Port",
		idWidth, "VID:PID",
		descWidth, "Description",
		scoreWidth, "Score")
	fmt.Println(headerStyle.Render(header))

	for _, c := range candidates {
		score := valve.Score(c)
		row := fmt.Sprintf("%-*s %-*s %-*s %*d",
			portWidth, c.Name,
			idWidth, c.VendorString(),
			descWidth, truncate(c.Description, descWidth),
			scoreWidth, score)
		if score > 0 {
			fmt.Println(likelyStyle.Render(row))
		} else {
			fmt.Println(cellStyle.Render(row))
		}
	}
}

// renderSimple renders the port list in simple text format
func renderSimple(candidates []valve.PortCandidate) {
	for _, c := range candidates {
		fmt.Printf("%s\t%s\t%s\n", c.Name, c.Description, c.HardwareID)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
