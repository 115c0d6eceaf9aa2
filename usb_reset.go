package valve

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// allow tests to run without usbutils
var (
	lookPath   = exec.LookPath
	runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return exec.CommandContext(ctx, name, args...).CombinedOutput()
	}
	reenumerateDelay = 2 * time.Second
)

// ResetUSBDevice performs a USB-level reset of the bridge behind c. This can
// recover a controller whose USB serial chip has hung.
//
// Requirements:
// - usbreset utility must be installed (from usbutils package)
// - Requires appropriate permissions (typically root/sudo)
//
// Returns:
// - nil if reset successful
// - ErrUSBResetNotAvailable if usbreset utility not found
// - ErrUSBInfoNotAvailable if the candidate has no bus/device numbers
// - error if reset fails
func ResetUSBDevice(ctx context.Context, c PortCandidate) error {
	if !c.IsUSB || c.BusNumber == "" || c.DeviceNumber == "" {
		return ErrUSBInfoNotAvailable
	}

	if !IsUSBResetAvailable() {
		return ErrUSBResetNotAvailable
	}

	// usbreset expects zero-padded 3-digit bus and device numbers
	usbPath := fmt.Sprintf("%03s/%03s", c.BusNumber, c.DeviceNumber)

	if output, err := runCommand(ctx, "usbreset", usbPath); err != nil {
		return fmt.Errorf("usbreset failed: %w (output: %s)", err, string(output))
	}

	// USB devices typically take 1-2 seconds to become available again
	timer := time.NewTimer(reenumerateDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResetUSBDeviceByName looks the endpoint up and resets it.
func ResetUSBDeviceByName(ctx context.Context, name string) error {
	c, err := FindCandidate(name)
	if err != nil {
		return fmt.Errorf("failed to get port info: %w", err)
	}
	return ResetUSBDevice(ctx, c)
}

// ResetUSBDeviceBySerial resets a USB device by its serial number.
// Useful when device paths change after reboot or when multiple devices are connected
func ResetUSBDeviceBySerial(ctx context.Context, serialNumber string) error {
	candidates, err := ListCandidates()
	if err != nil {
		return err
	}

	for _, c := range candidates {
		if c.SerialNumber == serialNumber {
			return ResetUSBDevice(ctx, c)
		}
	}

	return fmt.Errorf("device with serial %s not found", serialNumber)
}

// IsUSBResetAvailable checks if usbreset utility is available in PATH
func IsUSBResetAvailable() bool {
	_, err := lookPath("usbreset")
	return err == nil
}
