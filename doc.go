// Package valve drives a pneumatic valve through a microcontroller on a
// serial line.
//
// The controller speaks a tiny line protocol. The host sends a single byte:
// a position letter ('A', 'B', and 'C' on three-position valves) or '?' to
// query. The firmware answers with newline-terminated lines:
//
//	READY      boot banner, printed after every reset
//	OK:<pos>   command acknowledged
//	STATE:<pos> current position
//	ERR:<text> command rejected
//	BTN:<pos>  a hardware button moved the valve (unsolicited)
//
// # Basic Usage
//
// Connect to a known port and command the valve:
//
//	c, err := valve.NewController()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := c.Connect(ctx, "/dev/ttyACM0"); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Disconnect()
//
//	resp, err := c.SetPosition(valve.PositionB)
//	state, err := c.QueryState()
//
// Connect waits for the board's own reset cycle (the settle delay, 2 seconds
// by default) and discards whatever it printed before the reader starts.
//
// # Configuration Options
//
// Use functional options for custom configuration:
//
//	c, err := valve.NewController(
//	    valve.WithBaudRate(115200),
//	    valve.WithPositions("ABC"),
//	    valve.WithDriver(valve.DriverTermios),
//	    valve.WithStrictMatching(true),
//	    valve.WithLogger(logger),
//	)
//
// # Commands and Responses
//
// Send holds one lock for the whole write/await cycle, so concurrent callers
// are served one at a time and each response reaches exactly one of them.
// The query expects STATE:, every other command OK:. ERR: answers either and
// is returned together with a *DeviceError. Unless strict matching is
// enabled, the other kind is accepted as a fallback. Without a qualifying
// line within ResponseTimeout the call fails with ErrTimeout.
//
// # Hardware Events
//
// BTN: lines never reach Send. They are queued for DrainHardwareEvents and
// passed to every callback registered with OnHardwareEvent:
//
//	unsubscribe := c.OnHardwareEvent(func(p valve.Position) {
//	    log.Printf("valve moved to %s by hand", p)
//	})
//	defer unsubscribe()
//
// # Port Discovery
//
// List candidate ports with their USB metadata, rank them and find the one
// that completes the handshake:
//
//	pr, _ := valve.NewProber()
//	d, err := pr.Detect(ctx)
//	if d.Mode == valve.ModeHandshake {
//	    err = c.Adopt(d.Candidate.Name, d.Result.Claim())
//	}
//
// Adopt takes over the probed transport so the board is not reset a second
// time.
//
// # USB Device Management (Linux)
//
// Reset hung USB serial bridges:
//
//	err := valve.ResetUSBDeviceByName(ctx, "/dev/ttyUSB0")
//
// Requires usbreset utility from usbutils package and root/sudo permissions.
//
// # Error Handling
//
// Use errors.Is() for error type checking:
//
//	if errors.Is(err, valve.ErrTimeout) {
//	    // the controller did not answer in time
//	}
//
// # Default Configuration
//
//   - BaudRate: 9600
//   - DataBits: 8, StopBits: 1, Parity: None
//   - ReadTimeout: 100ms
//   - SettleDelay: 2s
//   - Positions: AB
//   - Driver: portable (go.bug.st/serial)
package valve
