package models

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/allbin/go-valve"
	"github.com/allbin/go-valve/internal/tui/components"
	"github.com/allbin/go-valve/sequence"
	"github.com/allbin/go-valve/session"
)

// InputMode represents the current input mode (vim-like)
type InputMode int

const (
	InputModeNormal InputMode = iota
	InputModeInsert
)

func (m InputMode) String() string {
	switch m {
	case InputModeInsert:
		return "INSERT"
	default:
		return "NORMAL"
	}
}

// View selects the active screen
type View int

const (
	ViewControl View = iota
	ViewSequence
)

func (v View) String() string {
	if v == ViewSequence {
		return "SEQUENCE"
	}
	return "CONTROL"
}

type ConnectionStatusMsg struct {
	Port      string
	Connected bool
	Error     error
}

type DetectMsg struct {
	Detection *valve.Detection
	Error     error
}

type ResponseMsg struct {
	Command  byte
	Response valve.Response
	Error    error
}

type HardwareEventMsg struct {
	Position valve.Position
}

type ProgressMsg struct {
	Progress sequence.Progress
}

type FinishMsg struct {
	Result sequence.Result
}

// ValveModel is the state shared by the views of the valve UI
type ValveModel struct {
	session *session.Session

	// State
	position valve.Position
	err      error
	ready    bool
	view     View

	inputMode InputMode

	cancel context.CancelFunc
	ctx    context.Context
	mu     sync.RWMutex
}

func NewValveModel(s *session.Session) *ValveModel {
	ctx, cancel := context.WithCancel(context.Background())
	return &ValveModel{
		session:   s,
		inputMode: InputModeNormal,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (m *ValveModel) Session() *session.Session {
	return m.session
}

// Bridge forwards session callbacks into the program as messages. The
// callbacks run on the reader and worker goroutines, so messages pass through
// a buffer instead of blocking them on the UI loop.
func (m *ValveModel) Bridge(send func(tea.Msg)) (stop func()) {
	msgs := make(chan tea.Msg, 64)
	done := make(chan struct{})
	forward := func(msg tea.Msg) {
		select {
		case msgs <- msg:
		default:
		}
	}

	go func() {
		for {
			select {
			case msg := <-msgs:
				send(msg)
			case <-done:
				return
			}
		}
	}()

	m.session.OnProgress(func(p sequence.Progress) { forward(ProgressMsg{Progress: p}) })
	m.session.OnFinish(func(r sequence.Result) { forward(FinishMsg{Result: r}) })
	unsubscribe := m.session.OnHardwareEvent(func(p valve.Position) { forward(HardwareEventMsg{Position: p}) })

	return func() {
		unsubscribe()
		m.session.OnProgress(nil)
		m.session.OnFinish(nil)
		close(done)
	}
}

func (m *ValveModel) IsConnected() bool {
	return m.session.IsConnected()
}

func (m *ValveModel) Position() valve.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.position
}

func (m *ValveModel) SetPosition(p valve.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = p
}

func (m *ValveModel) GetError() error {
	return m.err
}

func (m *ValveModel) SetError(err error) {
	m.err = err
}

func (m *ValveModel) IsReady() bool {
	return m.ready
}

func (m *ValveModel) SetReady(ready bool) {
	m.ready = ready
}

func (m *ValveModel) View() View {
	return m.view
}

func (m *ValveModel) ToggleView() View {
	if m.view == ViewControl {
		m.view = ViewSequence
	} else {
		m.view = ViewControl
	}
	return m.view
}

func (m *ValveModel) GetInputMode() InputMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inputMode
}

func (m *ValveModel) SetInputMode(mode InputMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputMode = mode
}

func (m *ValveModel) IsInInsertMode() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inputMode == InputModeInsert
}

func (m *ValveModel) GetContext() context.Context {
	return m.ctx
}

// Cleanup cancels pending work and closes the session, stopping any run.
func (m *ValveModel) Cleanup() {
	if m.cancel != nil {
		m.cancel()
	}
	m.session.Close()
}

// Commands run off the UI goroutine and report back as messages.

func (m *ValveModel) ScanPorts() tea.Cmd {
	return func() tea.Msg {
		candidates, err := m.session.DiscoverPorts()
		return components.PortsMsg{Candidates: candidates, Err: err}
	}
}

func (m *ValveModel) Detect() tea.Cmd {
	return func() tea.Msg {
		d, err := m.session.Detect(m.ctx)
		return DetectMsg{Detection: d, Error: err}
	}
}

func (m *ValveModel) Connect(port string) tea.Cmd {
	return func() tea.Msg {
		err := m.session.Connect(m.ctx, port)
		return ConnectionStatusMsg{Port: port, Connected: err == nil, Error: err}
	}
}

func (m *ValveModel) Disconnect() tea.Cmd {
	return func() tea.Msg {
		err := m.session.Disconnect()
		return ConnectionStatusMsg{Connected: false, Error: err}
	}
}

func (m *ValveModel) Send(cmd byte) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.session.SendCommand(cmd)
		return ResponseMsg{Command: cmd, Response: resp, Error: err}
	}
}
