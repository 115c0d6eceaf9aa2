package sequence

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/allbin/go-valve"
)

// Commander sends one command and waits for its response. *valve.Controller
// implements it.
type Commander interface {
	Send(cmd byte) (valve.Response, error)
}

// EventSource reports hardware events. *valve.Controller implements it.
type EventSource interface {
	OnHardwareEvent(fn func(valve.Position)) (unsubscribe func())
}

// State of the engine.
type State int

const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "idle"
	}
}

// Outcome of a finished run.
type Outcome int

const (
	Completed Outcome = iota
	Stopped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "completed"
	}
}

// Cause tells who cancelled a run.
type Cause int

const (
	CauseNone Cause = iota
	CauseUser
	CauseHardware
	CauseDisconnect
)

func (c Cause) String() string {
	switch c {
	case CauseUser:
		return "user"
	case CauseHardware:
		return "hardware"
	case CauseDisconnect:
		return "disconnect"
	default:
		return ""
	}
}

// Result describes a finished run.
type Result struct {
	Outcome Outcome
	Cause   Cause
	Loops   int
	Err     error

	// NeutralErr is set when the final return to neutral failed. It never
	// changes Outcome.
	NeutralErr error
}

// Progress is reported after every acknowledged step.
type Progress struct {
	Loop  int
	Index int // 1-based position in the run
	Total int
	Node  NodeID
	Step  Step
}

// Status is a snapshot for polling front ends.
type Status struct {
	State    State
	Loop     bool
	Progress Progress
	Last     *Result
}

// Engine edits a Sequence and executes it against a Commander.
type Engine struct {
	cmd              Commander
	events           EventSource
	logger           *slog.Logger
	metrics          *valve.Metrics
	neutral          valve.Position
	returnOnComplete bool

	mu         sync.Mutex
	seq        *Sequence
	state      State
	loop       bool
	progress   Progress
	last       *Result
	cause      Cause
	cancel     chan struct{}
	done       chan struct{}
	onProgress func(Progress)
	onFinish   func(Result)
}

// Option configures an Engine.
type Option func(*Engine)

// WithNeutral sets the position commanded after an early stop.
func WithNeutral(p valve.Position) Option {
	return func(e *Engine) { e.neutral = p }
}

// WithReturnOnComplete also commands the neutral position after a run that
// finished normally.
func WithReturnOnComplete(enabled bool) Option {
	return func(e *Engine) { e.returnOnComplete = enabled }
}

// WithEventSource makes hardware events cancel a running sequence.
func WithEventSource(src EventSource) Option {
	return func(e *Engine) { e.events = src }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics counts finished runs.
func WithMetrics(m *valve.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an idle engine with an empty sequence.
func NewEngine(cmd Commander, opts ...Option) *Engine {
	e := &Engine{
		cmd:    cmd,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		seq:    New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnProgress registers the step callback. It runs on the worker goroutine
// and must not block.
func (e *Engine) OnProgress(fn func(Progress)) {
	e.mu.Lock()
	e.onProgress = fn
	e.mu.Unlock()
}

// OnFinish registers the callback for finished runs.
func (e *Engine) OnFinish(fn func(Result)) {
	e.mu.Lock()
	e.onFinish = fn
	e.mu.Unlock()
}

// edit runs fn against the sequence while the engine is idle
func (e *Engine) edit(fn func(*Sequence) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Idle {
		return ErrRunning
	}
	return fn(e.seq)
}

// AddStep places a new step at (x, y).
func (e *Engine) AddStep(step Step, x, y float64) (NodeID, error) {
	var id NodeID
	err := e.edit(func(s *Sequence) error {
		id = s.Add(step, x, y)
		return nil
	})
	return id, err
}

// AppendStep places a new step after every existing one.
func (e *Engine) AppendStep(step Step) (NodeID, error) {
	var id NodeID
	err := e.edit(func(s *Sequence) error {
		id = s.Append(step)
		return nil
	})
	return id, err
}

func (e *Engine) UpdateStep(id NodeID, step Step) error {
	return e.edit(func(s *Sequence) error { return s.Update(id, step) })
}

func (e *Engine) MoveStep(id NodeID, x, y float64) error {
	return e.edit(func(s *Sequence) error { return s.Move(id, x, y) })
}

func (e *Engine) MoveUp(id NodeID) error {
	return e.edit(func(s *Sequence) error { return s.MoveUp(id) })
}

func (e *Engine) MoveDown(id NodeID) error {
	return e.edit(func(s *Sequence) error { return s.MoveDown(id) })
}

func (e *Engine) RemoveStep(id NodeID) error {
	return e.edit(func(s *Sequence) error { return s.Remove(id) })
}

func (e *Engine) Clear() error {
	return e.edit(func(s *Sequence) error {
		s.Clear()
		return nil
	})
}

func (e *Engine) ConnectSteps(from, to NodeID) error {
	return e.edit(func(s *Sequence) error { return s.Connect(from, to) })
}

func (e *Engine) DisconnectSteps(from NodeID) error {
	return e.edit(func(s *Sequence) error { return s.Disconnect(from) })
}

func (e *Engine) LoadDemo() error {
	return e.edit(func(s *Sequence) error {
		s.LoadDemo()
		return nil
	})
}

// Load replaces the sequence with a copy of seq.
func (e *Engine) Load(seq *Sequence) error {
	return e.edit(func(*Sequence) error {
		if seq == nil {
			seq = New()
		}
		e.seq = seq.Clone()
		return nil
	})
}

// Snapshot returns a copy of the current sequence.
func (e *Engine) Snapshot() *Sequence {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq.Clone()
}

// ResolveOrder resolves the current sequence without running it.
func (e *Engine) ResolveOrder() (Run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq.ResolveOrder()
}

// Status returns the current state and the last result.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{State: e.state, Loop: e.loop, Progress: e.progress, Last: e.last}
}

// Start resolves the run order and executes it on a new goroutine. With loop
// set the run repeats until stopped.
func (e *Engine) Start(loop bool) error {
	e.mu.Lock()
	if e.state != Idle {
		e.mu.Unlock()
		return ErrRunning
	}
	run, err := e.seq.ResolveOrder()
	if err != nil {
		e.mu.Unlock()
		return err
	}

	cancel := make(chan struct{})
	done := make(chan struct{})

	// registered before the state turns Running; a press arriving now waits
	// on e.mu until Start returns
	unsubscribe := func() {}
	if e.events != nil {
		unsubscribe = e.events.OnHardwareEvent(func(p valve.Position) {
			if e.Interrupt(CauseHardware) {
				e.logger.Info("Sequence interrupted by hardware event", "position", p.String())
			}
		})
	}

	e.state = Running
	e.loop = loop
	e.cause = CauseNone
	e.progress = Progress{Total: len(run.Nodes)}
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	e.logger.Info("Sequence started",
		"steps", len(run.Nodes),
		"order", run.Mode.String(),
		"loop", loop)

	go e.worker(run, loop, cancel, done, unsubscribe)
	return nil
}

// Stop requests cancellation of the current run. It does not wait.
func (e *Engine) Stop() {
	e.Interrupt(CauseUser)
}

// Interrupt raises cancellation with the given cause. It reports whether a
// running sequence was signalled; later calls are no-ops.
func (e *Engine) Interrupt(cause Cause) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Running {
		return false
	}
	e.state = Stopping
	e.cause = cause
	close(e.cancel)
	return true
}

// Wait blocks until the current run has finished and returns its result. With
// nothing running it returns the last result immediately.
func (e *Engine) Wait(ctx context.Context) (Result, error) {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return Result{}, nil
	}
	return *e.last, nil
}

func (e *Engine) worker(run Run, loop bool, cancel <-chan struct{}, done chan<- struct{}, unsubscribe func()) {
	defer close(done)

	loops, stopped, err := e.execute(run, loop, cancel)
	unsubscribe()

	e.mu.Lock()
	cause := e.cause
	e.mu.Unlock()

	res := outcome(loops, stopped, cause, err)

	if e.shouldReturnToNeutral(res) {
		if _, err := e.cmd.Send(byte(e.neutral)); err != nil {
			res.NeutralErr = err
			e.logger.Warn("Return to neutral failed", "position", e.neutral.String(), "err", err)
		}
	}

	e.metrics.ObserveRun(res.Outcome.String())
	e.logger.Info("Sequence finished",
		"outcome", res.Outcome.String(),
		"cause", res.Cause.String(),
		"loops", res.Loops,
		"err", res.Err)

	e.mu.Lock()
	e.state = Idle
	e.last = &res
	e.done = nil
	onFinish := e.onFinish
	e.mu.Unlock()

	if onFinish != nil {
		onFinish(res)
	}
}

// outcome classifies a finished run. A cause raised after the run had
// already ended on its own does not turn it into a stop.
func outcome(loops int, stopped bool, cause Cause, err error) Result {
	res := Result{Loops: loops, Err: err}
	switch {
	case err != nil:
		res.Outcome = Failed
		res.Cause = cause
	case stopped:
		res.Outcome = Stopped
		res.Cause = cause
	default:
		res.Outcome = Completed
	}
	return res
}

// shouldReturnToNeutral skips the final command after a hardware interrupt,
// since the operator has already moved the valve.
func (e *Engine) shouldReturnToNeutral(res Result) bool {
	if e.neutral == 0 || res.Cause == CauseHardware {
		return false
	}
	return res.Outcome != Completed || e.returnOnComplete
}

// execute runs the steps and reports whether it ended because cancel was
// closed.
func (e *Engine) execute(run Run, loop bool, cancel <-chan struct{}) (int, bool, error) {
	loops := 0
	for {
		loops++
		for i, node := range run.Nodes {
			if cancelled(cancel) {
				return loops, true, nil
			}

			resp, err := e.cmd.Send(byte(node.Step.Position))
			if err != nil {
				return loops, false, fmt.Errorf("step %d (%s): %w", i+1, node.Step, err)
			}
			if p, ok := resp.Position(); resp.Kind != valve.KindAck || !ok || p != node.Step.Position {
				return loops, false, &UnexpectedResponseError{Position: node.Step.Position, Response: resp}
			}

			e.report(Progress{
				Loop:  loops,
				Index: i + 1,
				Total: len(run.Nodes),
				Node:  node.ID,
				Step:  node.Step,
			})

			if !hold(node.Step.Duration, cancel) {
				return loops, true, nil
			}
		}
		if !loop {
			return loops, false, nil
		}
		if cancelled(cancel) {
			return loops, true, nil
		}
	}
}

func (e *Engine) report(p Progress) {
	e.mu.Lock()
	e.progress = p
	fn := e.onProgress
	e.mu.Unlock()

	e.logger.Debug("Sequence step",
		"loop", p.Loop,
		"step", p.Index,
		"total", p.Total,
		"position", p.Step.Position.String(),
		"duration", p.Step.Duration)
	if fn != nil {
		fn(p)
	}
}

// hold waits for d and reports false if cancelled first
func hold(d time.Duration, cancel <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-cancel:
		return false
	}
}

func cancelled(cancel <-chan struct{}) bool {
	select {
	case <-cancel:
		return true
	default:
		return false
	}
}
