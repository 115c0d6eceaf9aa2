// Package session ties the controller, discovery and the sequence engine
// together behind the interface the front ends use.
package session

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/allbin/go-valve"
	"github.com/allbin/go-valve/sequence"
)

// Session owns one controller and one sequence engine.
type Session struct {
	ctrl   *valve.Controller
	prober *valve.Prober
	engine *sequence.Engine
	logger *slog.Logger

	// mu serializes connect, disconnect and probing
	mu     sync.Mutex
	probed *valve.ProbeResult
}

type options struct {
	valve    []valve.Option
	sequence []sequence.Option
	logger   *slog.Logger
}

// Option configures a Session.
type Option func(*options)

// WithControllerOptions passes options to the controller and the prober.
func WithControllerOptions(opts ...valve.Option) Option {
	return func(o *options) { o.valve = append(o.valve, opts...) }
}

// WithSequenceOptions passes options to the sequence engine.
func WithSequenceOptions(opts ...sequence.Option) Option {
	return func(o *options) { o.sequence = append(o.sequence, opts...) }
}

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a disconnected session.
func New(opts ...Option) (*Session, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	valveOpts := append([]valve.Option{valve.WithLogger(o.logger)}, o.valve...)
	ctrl, err := valve.NewController(valveOpts...)
	if err != nil {
		return nil, err
	}
	prober, err := valve.NewProber(valveOpts...)
	if err != nil {
		return nil, err
	}

	seqOpts := append([]sequence.Option{
		sequence.WithLogger(o.logger),
		sequence.WithEventSource(ctrl),
		sequence.WithMetrics(ctrl.Config().Metrics),
	}, o.sequence...)

	return &Session{
		ctrl:   ctrl,
		prober: prober,
		engine: sequence.NewEngine(ctrl, seqOpts...),
		logger: o.logger,
	}, nil
}

// Controller exposes the underlying controller.
func (s *Session) Controller() *valve.Controller {
	return s.ctrl
}

// DiscoverPorts lists the serial endpoints on the system.
func (s *Session) DiscoverPorts() ([]valve.PortCandidate, error) {
	return s.ctrl.Config().Enumerate()
}

// Probe runs the handshake against name. A matching port stays open so the
// next Connect to it can take it over without resetting the board again.
func (s *Session) Probe(ctx context.Context, name string) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseProbedLocked()
	result := s.prober.Probe(ctx, name)
	if result.Matched {
		s.probed = result
	}
	return result.Matched, result.Detail
}

// Detect ranks and probes every candidate. A handshake match is kept open
// for Connect like a manual probe.
func (s *Session) Detect(ctx context.Context) (*valve.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseProbedLocked()
	d, err := s.prober.Detect(ctx)
	if err != nil {
		return d, err
	}
	if d.Mode == valve.ModeHandshake {
		s.probed = d.Result
	}
	return d, nil
}

// Connect opens name, reusing the transport of a matching probe if there is
// one. It is refused while a sequence runs.
func (s *Session) Connect(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine.Status().State != sequence.Idle {
		return sequence.ErrRunning
	}

	if s.probed != nil && s.probed.Port == name {
		p := s.probed.Claim()
		s.probed = nil
		err := s.ctrl.Adopt(name, p)
		if err == nil {
			return nil
		}
		s.logger.Warn("Could not reuse probed port, reopening", "port", name, "err", err)
	}
	s.releaseProbedLocked()

	return s.ctrl.Connect(ctx, name)
}

// Disconnect cancels a running sequence, waits for its worker to finish and
// only then closes the transport.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine.Interrupt(sequence.CauseDisconnect) {
		s.logger.Info("Stopping sequence before disconnect")
	}
	if _, err := s.engine.Wait(context.Background()); err != nil {
		return err
	}
	s.releaseProbedLocked()
	return s.ctrl.Disconnect()
}

// Close releases everything the session holds.
func (s *Session) Close() error {
	return s.Disconnect()
}

// must be called with s.mu held
func (s *Session) releaseProbedLocked() {
	if s.probed == nil {
		return
	}
	if err := s.probed.Close(); err != nil {
		s.logger.Debug("Error closing probed port", "port", s.probed.Port, "err", err)
	}
	s.probed = nil
}

func (s *Session) IsConnected() bool {
	return s.ctrl.IsConnected()
}

func (s *Session) PortName() string {
	return s.ctrl.PortName()
}

// SendCommand sends one command byte through the correlator.
func (s *Session) SendCommand(cmd byte) (valve.Response, error) {
	return s.ctrl.Send(cmd)
}

func (s *Session) SetPosition(p valve.Position) (valve.Response, error) {
	return s.ctrl.SetPosition(p)
}

func (s *Session) QueryState() (valve.Response, error) {
	return s.ctrl.QueryState()
}

func (s *Session) DrainHardwareEvents() []valve.Position {
	return s.ctrl.DrainHardwareEvents()
}

func (s *Session) OnHardwareEvent(fn func(valve.Position)) (unsubscribe func()) {
	return s.ctrl.OnHardwareEvent(fn)
}

// Sequence returns the engine for editing and inspecting the sequence.
func (s *Session) Sequence() *sequence.Engine {
	return s.engine
}

// Start runs the sequence once, or until stopped with loop set.
func (s *Session) Start(loop bool) error {
	if !s.ctrl.IsConnected() {
		return valve.ErrNotConnected
	}
	return s.engine.Start(loop)
}

func (s *Session) Stop() {
	s.engine.Stop()
}

func (s *Session) Status() sequence.Status {
	return s.engine.Status()
}

func (s *Session) OnProgress(fn func(sequence.Progress)) {
	s.engine.OnProgress(fn)
}

func (s *Session) OnFinish(fn func(sequence.Result)) {
	s.engine.OnFinish(fn)
}
