/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/allbin/go-valve"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <port>",
	Short: "Display detailed information about a serial port",
	Long: `Display detailed information about a serial port including USB metadata
and how likely it is to be a valve controller.

Examples:
  valvectl info /dev/ttyUSB0
  valvectl info /dev/ttyACM0

For USB devices, this displays vendor/product IDs, serial numbers, bus and
device numbers extracted from sysfs.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, err := valve.FindCandidate(args[0])
		if err != nil {
			fail("getting port info: %v", err)
		}

		fmt.Printf("Port Information: %s\n\n", c.Name)
		fmt.Printf("  Description: %s\n", c.Description)
		fmt.Printf("  Hardware ID: %s\n", c.HardwareID)
		fmt.Printf("  Score:       %d\n", valve.Score(c))

		if c.IsUSB {
			fmt.Println("\nUSB Device Information:")
			fmt.Printf("  Vendor ID:    %04X\n", c.VID)
			fmt.Printf("  Product ID:   %04X\n", c.PID)
			if c.SerialNumber != "" {
				fmt.Printf("  Serial:       %s\n", c.SerialNumber)
			}
			if c.BusNumber != "" {
				fmt.Printf("  Bus:          %s\n", c.BusNumber)
			}
			if c.DeviceNumber != "" {
				fmt.Printf("  Device:       %s\n", c.DeviceNumber)
			}
			if c.Manufacturer != "" {
				fmt.Printf("  Manufacturer: %s\n", c.Manufacturer)
			}
			if c.Product != "" {
				fmt.Printf("  Product:      %s\n", c.Product)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
