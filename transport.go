package valve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.bug.st/serial"
)

// Port is the byte transport to one valve controller.
type Port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
}

// PortSettings are the parameters an Opener applies to a new transport.
type PortSettings struct {
	BaudRate    int
	ReadTimeout time.Duration
}

// Opener opens the named serial endpoint.
type Opener func(name string, settings PortSettings) (Port, error)

// Ensure go.bug.st ports satisfy Port at compile time
var _ Port = (serial.Port)(nil)

func openerFor(d Driver) Opener {
	if d == DriverTermios {
		return openTermios
	}
	return openPortable
}

// openPortable opens name with go.bug.st/serial, 8N1, no flow control.
func openPortable(name string, settings PortSettings) (Port, error) {
	mode := &serial.Mode{
		BaudRate: settings.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}

	if err := p.SetReadTimeout(settings.ReadTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return p, nil
}

// settle waits for the device's own reset cycle and then discards anything it
// printed meanwhile.
func settle(ctx context.Context, p Port, delay time.Duration) error {
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := p.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to flush input: %w", err)
	}
	return nil
}

// isClosedError reports whether err means the transport is gone for good.
func isClosedError(err error) bool {
	if errors.Is(err, ErrPortClosed) || errors.Is(err, os.ErrClosed) {
		return true
	}
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		return portErr.Code() == serial.PortClosed
	}
	return false
}
