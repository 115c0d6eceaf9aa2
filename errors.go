package valve

import (
	"errors"
	"fmt"
)

// Predefined error types for robust error handling
var (
	ErrNotConnected      = errors.New("valve controller is not connected")
	ErrTimeout           = errors.New("no response from valve controller")
	ErrDevice            = errors.New("valve controller rejected command")
	ErrInvalidCommand    = errors.New("invalid valve command")
	ErrInvalidPosition   = errors.New("invalid valve position")
	ErrInvalidBaudRate   = errors.New("invalid baud rate")
	ErrInvalidConfig     = errors.New("invalid valve configuration")
	ErrPortClosed        = errors.New("serial port is closed")
	ErrDriverUnsupported = errors.New("serial driver not supported on this platform")

	// USB-related errors
	ErrUSBInfoNotAvailable  = errors.New("USB device information not available")
	ErrUSBResetNotAvailable = errors.New("usbreset utility not available")
)

// DeviceError carries the reason text of an ERR: line.
type DeviceError struct {
	Command byte
	Reason  string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("command %q: device error: %s", e.Command, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrDevice).
func (e *DeviceError) Unwrap() error {
	return ErrDevice
}
