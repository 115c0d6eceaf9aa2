package valve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// readerJoinTimeout bounds how long Disconnect waits for the reader goroutine.
const readerJoinTimeout = time.Second

// Controller owns one serial connection to a valve controller. It runs the
// line reader, correlates single-byte commands with their responses and
// queues unsolicited hardware events.
//
// Two locks are involved. mu guards the connection lifecycle and the short
// write section; cmdMu serializes the full write/await cycle of Send, since
// the device cannot tag which response belongs to which command.
type Controller struct {
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	port   Port
	stopCh chan struct{}
	doneCh chan struct{}

	// readable from hooks on the reader goroutine without taking mu
	connected atomic.Bool
	portName  atomic.String

	cmdMu sync.Mutex

	responses *queue[string]
	events    *queue[Position]

	hooksMu  sync.RWMutex
	hooks    map[int]func(Position)
	nextHook int
}

// NewController creates a disconnected controller
func NewController(opts ...Option) (*Controller, error) {
	config, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	return &Controller{
		config:    config,
		logger:    config.Logger,
		responses: newQueue[string](),
		events:    newQueue[Position](),
		hooks:     make(map[int]func(Position)),
	}, nil
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	return c.config
}

// Connect opens name, waits for the device to finish its reset cycle,
// discards whatever it printed meanwhile and starts the reader. An already
// open connection is closed first.
func (c *Controller) Connect(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.closeLocked(); err != nil {
		c.logger.Debug("Error closing previous connection", "error", err)
	}

	p, err := c.config.Opener(name, PortSettings{
		BaudRate:    c.config.BaudRate,
		ReadTimeout: c.config.ReadTimeout,
	})
	if err != nil {
		return err
	}

	if err := settle(ctx, p, c.config.SettleDelay); err != nil {
		p.Close()
		return err
	}

	c.attachLocked(name, p)
	c.logger.Info("Connected to valve controller",
		"port", name,
		"baud", c.config.BaudRate,
		"driver", c.config.Driver.String())
	return nil
}

// Adopt takes ownership of a transport that is already open and settled,
// typically the one kept by a successful probe, so the device does not go
// through a second reset cycle.
func (c *Controller) Adopt(name string, p Port) error {
	if p == nil {
		return ErrNotConnected
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.closeLocked(); err != nil {
		c.logger.Debug("Error closing previous connection", "error", err)
	}

	if err := p.ResetInputBuffer(); err != nil {
		p.Close()
		return fmt.Errorf("failed to flush input: %w", err)
	}

	c.attachLocked(name, p)
	c.logger.Info("Adopted probed connection", "port", name)
	return nil
}

// Disconnect stops the reader and closes the transport.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := c.portName.Load()
	err := c.closeLocked()
	if name != "" {
		c.logger.Info("Disconnected from valve controller", "port", name)
	}
	if errors.Is(err, ErrPortClosed) {
		return nil
	}
	return err
}

// IsConnected reports the connection state without blocking.
func (c *Controller) IsConnected() bool {
	return c.connected.Load()
}

// PortName returns the endpoint of the open connection, or "". It does not
// block, so hardware event hooks may call it.
func (c *Controller) PortName() string {
	return c.portName.Load()
}

// must be called with c.mu held
func (c *Controller) attachLocked(name string, p Port) {
	c.responses.drain()
	c.events.drain()

	c.port = p
	c.portName.Store(name)
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})

	go c.readLoop(p, c.stopCh, c.doneCh)
	c.connected.Store(true)
}

// must be called with c.mu held
func (c *Controller) closeLocked() error {
	if c.port == nil {
		return nil
	}

	c.connected.Store(false)
	close(c.stopCh)
	err := c.port.Close()

	select {
	case <-c.doneCh:
	case <-time.After(readerJoinTimeout):
		c.logger.Warn("Reader did not stop in time", "port", c.portName.Load())
	}

	if n := c.events.len(); n > 0 {
		c.logger.Debug("Discarding undrained hardware events", "count", n)
	}
	c.responses.drain()
	c.events.drain()

	c.port = nil
	c.portName.Store("")
	return err
}

// write takes the lifecycle lock only for the duration of the write itself
func (c *Controller) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port == nil {
		return ErrNotConnected
	}
	if _, err := c.port.Write(data); err != nil {
		return fmt.Errorf("failed to write command: %w", err)
	}
	return nil
}

// Send writes a single command byte and waits for its response.
//
// The query character expects a STATE: line, any position letter an OK:
// line. ERR: satisfies either expectation and is returned together with a
// *DeviceError. Unless strict matching is configured, the other known kind is
// accepted as a fallback. READY banners are skipped. Without a qualifying
// line within ResponseTimeout the call fails with ErrTimeout.
func (c *Controller) Send(cmd byte) (Response, error) {
	if cmd != QueryCommand && !c.config.HasPosition(Position(cmd)) {
		return Response{}, fmt.Errorf("%w: %q", ErrInvalidCommand, cmd)
	}
	expected := expectedKind(cmd)

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	start := time.Now()
	if err := c.write([]byte{cmd}); err != nil {
		c.config.Metrics.observeCommand(cmd, "write_error", time.Since(start))
		return Response{}, err
	}

	// the write may have waited for a reconnect to settle
	deadline := time.Now().Add(ResponseTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		wait := PollInterval
		if remaining < wait {
			wait = remaining
		}

		line, ok := c.responses.popTimeout(wait)
		if !ok {
			continue
		}

		resp := parseResponse(line)
		switch {
		case resp.Kind == KindBoot:
			c.logger.Debug("Skipping boot banner", "command", string(rune(cmd)))
			continue
		case resp.Kind == KindError:
			c.config.Metrics.observeCommand(cmd, "device_error", time.Since(start))
			return resp, &DeviceError{Command: cmd, Reason: resp.Payload}
		case resp.Kind == expected:
			c.config.Metrics.observeCommand(cmd, "ok", time.Since(start))
			return resp, nil
		case !c.config.StrictMatching:
			c.logger.Debug("Accepting fallback response",
				"command", string(rune(cmd)),
				"expected", expected.String(),
				"line", line)
			c.config.Metrics.observeCommand(cmd, "fallback", time.Since(start))
			return resp, nil
		default:
			c.logger.Warn("Discarding mismatched response",
				"command", string(rune(cmd)),
				"expected", expected.String(),
				"line", line)
		}
	}

	c.config.Metrics.observeCommand(cmd, "timeout", time.Since(start))
	return Response{}, fmt.Errorf("command %q: %w", cmd, ErrTimeout)
}

// SetPosition commands the valve into p.
func (c *Controller) SetPosition(p Position) (Response, error) {
	return c.Send(byte(p))
}

// QueryState asks the controller for its current position.
func (c *Controller) QueryState() (Response, error) {
	return c.Send(QueryCommand)
}

// DrainHardwareEvents returns every queued hardware event, oldest first,
// without blocking.
func (c *Controller) DrainHardwareEvents() []Position {
	return c.events.drain()
}

// OnHardwareEvent registers fn to be called from the reader goroutine for
// every hardware event, in addition to queueing it. fn must not block.
// The returned function removes the registration.
func (c *Controller) OnHardwareEvent(fn func(Position)) (unsubscribe func()) {
	c.hooksMu.Lock()
	id := c.nextHook
	c.nextHook++
	c.hooks[id] = fn
	c.hooksMu.Unlock()

	return func() {
		c.hooksMu.Lock()
		delete(c.hooks, id)
		c.hooksMu.Unlock()
	}
}

func (c *Controller) notify(p Position) {
	c.hooksMu.RLock()
	fns := make([]func(Position), 0, len(c.hooks))
	for _, fn := range c.hooks {
		fns = append(fns, fn)
	}
	c.hooksMu.RUnlock()

	for _, fn := range fns {
		fn(p)
	}
}
