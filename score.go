package valve

import (
	"fmt"
	"strings"
)

// descriptor hints that suggest a microcontroller behind a USB serial bridge
var (
	strongHints = []string{"arduino"}
	weakHints   = []string{"ch340", "wch", "cp210", "ftdi", "usb serial"}
)

// Arduino, Arduino.org, WCH, Silicon Labs, FTDI
var knownVendors = map[uint16]bool{
	0x2341: true,
	0x2A03: true,
	0x1A86: true,
	0x10C4: true,
	0x0403: true,
}

// Score ranks how likely a candidate is to be a valve controller. Zero means
// nothing about it looks familiar.
func Score(c PortCandidate) int {
	text := strings.ToLower(strings.Join([]string{
		c.Description, c.Manufacturer, c.Product, c.HardwareID,
	}, " "))

	score := 0
	for _, hint := range strongHints {
		if strings.Contains(text, hint) {
			score += 3
		}
	}
	for _, hint := range weakHints {
		if strings.Contains(text, hint) {
			score++
		}
	}
	if knownVendors[c.VID] {
		score += 2
	}
	return score
}

// VendorString formats the USB IDs for display, or "" for non-USB ports.
func (c PortCandidate) VendorString() string {
	if !c.IsUSB {
		return ""
	}
	return fmt.Sprintf("%04x:%04x", c.VID, c.PID)
}
