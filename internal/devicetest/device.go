// Package devicetest provides a scripted in-memory valve controller for tests.
// A Device satisfies the valve Port interface without importing it.
package devicetest

import (
	"os"
	"strings"
	"sync"
	"time"
)

// DefaultReadTimeout mirrors the timeout a real port is opened with.
const DefaultReadTimeout = 20 * time.Millisecond

// Handler returns the lines the device answers a command byte with.
type Handler func(cmd byte) []string

// Device is a fake serial endpoint. Bytes written by the host are passed to
// the handler one at a time; the lines it returns, and anything emitted with
// Emit, are readable by the host.
type Device struct {
	mu               sync.Mutex
	rx               []byte
	writes           []byte
	writesAfterClose int
	flushes          int
	closed           bool
	handler          Handler

	readTimeout time.Duration
	signal      chan struct{}
	closedCh    chan struct{}
}

// New creates a device that answers with h. A nil handler never answers.
func New(h Handler) *Device {
	return &Device{
		handler:     h,
		readTimeout: DefaultReadTimeout,
		signal:      make(chan struct{}, 1),
		closedCh:    make(chan struct{}),
	}
}

// NewValve creates a device that behaves like the valve firmware: position
// letters in positions are acknowledged and become the current state, '?'
// reports it, anything else is rejected.
func NewValve(positions string) *Device {
	var mu sync.Mutex
	state := positions[0]
	return New(func(cmd byte) []string {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case cmd == '?':
			return []string{"STATE:" + string(state)}
		case strings.IndexByte(positions, cmd) >= 0:
			state = cmd
			return []string{"OK:" + string(cmd)}
		default:
			return []string{"ERR:UNKNOWN_CMD"}
		}
	})
}

// SetHandler replaces the command handler.
func (d *Device) SetHandler(h Handler) {
	d.mu.Lock()
	d.handler = h
	d.mu.Unlock()
}

// Read returns pending bytes, or (0, nil) after the read timeout like a real
// port with VTIME set. After Close it returns os.ErrClosed.
func (d *Device) Read(p []byte) (int, error) {
	deadline := time.Now().Add(d.readTimeout)
	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return 0, os.ErrClosed
		}
		if len(d.rx) > 0 {
			n := copy(p, d.rx)
			d.rx = d.rx[n:]
			d.mu.Unlock()
			return n, nil
		}
		d.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-d.signal:
		case <-d.closedCh:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// Write records p and feeds every byte to the handler.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.writesAfterClose++
		d.mu.Unlock()
		return 0, os.ErrClosed
	}
	d.writes = append(d.writes, p...)
	h := d.handler
	d.mu.Unlock()

	if h != nil {
		for _, b := range p {
			for _, line := range h(b) {
				d.Emit(line)
			}
		}
	}
	return len(p), nil
}

// Emit queues one line for the host as if the firmware printed it.
func (d *Device) Emit(line string) {
	d.EmitRaw([]byte(line + "\n"))
}

// EmitRaw queues bytes for the host without adding a terminator.
func (d *Device) EmitRaw(b []byte) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.rx = append(d.rx, b...)
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// ResetInputBuffer discards everything not yet read by the host.
func (d *Device) ResetInputBuffer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return os.ErrClosed
	}
	d.rx = nil
	d.flushes++
	return nil
}

// Close marks the device closed and wakes blocked readers.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return os.ErrClosed
	}
	d.closed = true
	close(d.closedCh)
	return nil
}

// Writes returns a copy of every byte written before Close.
func (d *Device) Writes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.writes...)
}

// WritesAfterClose counts write attempts made after Close.
func (d *Device) WritesAfterClose() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writesAfterClose
}

// Flushes counts ResetInputBuffer calls.
func (d *Device) Flushes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushes
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
