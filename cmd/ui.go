/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/allbin/go-valve"
	"github.com/allbin/go-valve/internal/tui/components"
	"github.com/allbin/go-valve/internal/tui/keys"
	"github.com/allbin/go-valve/internal/tui/models"
	"github.com/allbin/go-valve/internal/tui/styles"
	"github.com/allbin/go-valve/sequence"
	"github.com/allbin/go-valve/session"
)

// uiCmd represents the ui command
var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Interactive valve control and sequence editor",
	Long: `Open a terminal interface with two views.

CONTROL lists the serial ports with their likelihood score. Detect the
controller, connect, move the valve with the number keys and watch button
presses and responses in the log.

SEQUENCE edits the timed step sequence. Add steps as "<position> <seconds>",
reorder them, link them into a chain and run the sequence once or in a loop.
A button press on the controller stops a running sequence.

Example usage:
  valvectl ui
  valvectl ui --port /dev/ttyACM0 --positions ABC`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		// stderr belongs to the alt screen, so logs only go to a file
		viper.SetDefault("log.level", "error")
		logger, closer := newLogger()
		defer closer.Close()

		s, err := newSession(logger)
		if err != nil {
			fail("%v", err)
		}
		cfg := s.Controller().Config()

		info := &components.ConnectionInfo{
			BaudRate:  cfg.BaudRate,
			Driver:    cfg.Driver.String(),
			Positions: cfg.Positions,
			Strict:    cfg.StrictMatching,
		}
		if err := runUI(s, info, viper.GetString("port")); err != nil {
			fail("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(uiCmd)
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// uiModel represents the Bubble Tea model for the ui command
type uiModel struct {
	*models.ValveModel
	log         *components.Log
	ports       *components.PortTable
	steps       *components.SequenceTable
	statusBar   *components.StatusBar
	input       *components.Input
	help        help.Model
	controlKeys keys.ControlKeys
	seqKeys     keys.SequenceKeys
	positions   string
	initialPort string
	width       int
	height      int
}

func newUIModel(s *session.Session, info *components.ConnectionInfo, port string) *uiModel {
	m := &uiModel{
		ValveModel:  models.NewValveModel(s),
		log:         components.NewLog(0, 0), // sized by WindowSizeMsg
		ports:       components.NewPortTable(80, 5),
		steps:       components.NewSequenceTable(8),
		statusBar:   components.NewStatusBar("valvectl"),
		input:       components.NewInput("A 1.5"),
		help:        help.New(),
		controlKeys: keys.NewControlKeys(),
		seqKeys:     keys.NewSequenceKeys(),
		positions:   info.Positions,
		initialPort: port,
	}
	m.statusBar.SetConnectionInfo(info)
	m.refreshSequence()
	return m
}

func runUI(s *session.Session, info *components.ConnectionInfo, port string) error {
	m := newUIModel(s, info, port)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	stop := m.Bridge(p.Send)
	_, err := p.Run()
	stop()

	m.Cleanup()
	return err
}

func (m *uiModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.ScanPorts(), tick()}
	if m.initialPort != "" {
		m.statusBar.SetConnecting(m.initialPort)
		cmds = append(cmds, m.Connect(m.initialPort))
	}
	return tea.Batch(cmds...)
}

func (m *uiModel) addLog(kind components.EntryKind, format string, args ...any) {
	m.log.Add(components.LogEntry{
		Timestamp: time.Now(),
		Kind:      kind,
		Text:      fmt.Sprintf(format, args...),
	})
}

func (m *uiModel) refreshSequence() {
	m.steps.SetSequence(m.Session().Sequence().Snapshot())
}

// edit applies a sequence change and reports rejected edits in the log.
func (m *uiModel) edit(err error) {
	if err != nil {
		m.addLog(components.EntryError, "%v", err)
	}
	m.refreshSequence()
}

func (m *uiModel) layout() {
	if m.width == 0 {
		return
	}
	const headerHeight, statusHeight, helpHeight, inputHeight = 1, 1, 1, 3

	available := m.height - headerHeight - statusHeight - helpHeight
	if m.ValveModel.View() == models.ViewSequence {
		available -= inputHeight
	}
	mainHeight := available / 2
	if mainHeight < 5 {
		mainHeight = 5
	}
	logHeight := available - mainHeight - 1 // border
	if logHeight < 1 {
		logHeight = 1
	}

	m.ports.SetSize(m.width, mainHeight)
	m.steps.SetHeight(mainHeight)
	m.log.SetSize(m.width, logHeight)
	m.input.SetWidth(m.width)
	m.statusBar.SetWidth(m.width)
	m.help.Width = m.width
}

func (m *uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.SetReady(true)
		return m, nil

	case tickMsg:
		return m, tick()

	case components.PortsMsg:
		if msg.Err != nil {
			m.addLog(components.EntryError, "Port scan failed: %v", msg.Err)
			return m, nil
		}
		m.ports.SetCandidates(msg.Candidates)
		m.ports.Select(m.Session().PortName())
		return m, nil

	case models.DetectMsg:
		return m, m.handleDetect(msg)

	case models.ConnectionStatusMsg:
		return m, m.handleConnection(msg)

	case models.ResponseMsg:
		m.handleResponse(msg)
		return m, nil

	case models.HardwareEventMsg:
		m.SetPosition(msg.Position)
		m.addLog(components.EntryEvent, "Button moved valve to %s", msg.Position)
		return m, nil

	case models.ProgressMsg:
		p := msg.Progress
		m.SetPosition(p.Step.Position)
		m.steps.SetActive(p.Node)
		m.addLog(components.EntryInfo, "Loop %d step %d/%d: %s", p.Loop, p.Index, p.Total, p.Step)
		return m, nil

	case models.FinishMsg:
		m.handleFinish(msg.Result)
		return m, nil

	case tea.MouseMsg:
		return m, m.log.Update(msg)

	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *uiModel) handleDetect(msg models.DetectMsg) tea.Cmd {
	if msg.Error != nil {
		m.addLog(components.EntryError, "Detection failed: %v", msg.Error)
		return nil
	}
	d := msg.Detection
	m.ports.SetCandidates(d.Candidates)
	switch d.Mode {
	case valve.ModeHandshake:
		m.ports.Select(d.Candidate.Name)
		m.addLog(components.EntryInfo, "Controller answered on %s (%s)", d.Candidate.Name, d.Result.Detail)
		m.statusBar.SetConnecting(d.Candidate.Name)
		return m.Connect(d.Candidate.Name)
	case valve.ModeSignature:
		m.ports.Select(d.Candidate.Name)
		m.addLog(components.EntryInfo, "No answer; %s looks most likely. Press enter to connect.", d.Candidate.Name)
	default:
		m.addLog(components.EntryError, "No valve controller found")
	}
	return nil
}

func (m *uiModel) handleConnection(msg models.ConnectionStatusMsg) tea.Cmd {
	if msg.Error != nil {
		m.SetError(msg.Error)
		m.statusBar.SetDisconnected(msg.Error)
		m.addLog(components.EntryError, "%v", msg.Error)
		return nil
	}
	m.SetError(nil)
	if !msg.Connected {
		m.statusBar.SetDisconnected(nil)
		m.SetPosition(0)
		m.addLog(components.EntryInfo, "Disconnected")
		return nil
	}
	m.statusBar.SetConnected(msg.Port)
	m.ports.Select(msg.Port)
	m.addLog(components.EntryInfo, "Connected to %s", msg.Port)
	return m.Send(valve.QueryCommand)
}

func (m *uiModel) handleResponse(msg models.ResponseMsg) {
	m.addLog(components.EntryTX, "%c", msg.Command)
	var devErr *valve.DeviceError
	switch {
	case errors.As(msg.Error, &devErr):
		m.addLog(components.EntryError, "%s", msg.Response.Line)
	case msg.Error != nil:
		m.addLog(components.EntryError, "%v", msg.Error)
	default:
		m.addLog(components.EntryRX, "%s", msg.Response.Line)
		if pos, ok := msg.Response.Position(); ok {
			m.SetPosition(pos)
		}
	}
}

func (m *uiModel) handleFinish(res sequence.Result) {
	m.steps.SetActive(0)
	switch res.Outcome {
	case sequence.Failed:
		m.addLog(components.EntryError, "Sequence failed: %v", res.Err)
	case sequence.Stopped:
		if res.Cause != sequence.CauseNone {
			m.addLog(components.EntryInfo, "Sequence stopped by %s after %d loop(s)", res.Cause, res.Loops)
		} else {
			m.addLog(components.EntryInfo, "Sequence stopped after %d loop(s)", res.Loops)
		}
	default:
		m.addLog(components.EntryInfo, "Sequence completed")
	}
	if res.NeutralErr != nil {
		m.addLog(components.EntryError, "Return to neutral failed: %v", res.NeutralErr)
	}
}

func (m *uiModel) handleKey(msg tea.KeyMsg) tea.Cmd {
	if m.IsInInsertMode() {
		return m.handleInsertKey(msg)
	}

	common := m.controlKeys.CommonKeys
	switch {
	case key.Matches(msg, common.Quit):
		return tea.Quit
	case key.Matches(msg, common.Help):
		m.help.ShowAll = !m.help.ShowAll
		return nil
	case key.Matches(msg, common.SwitchView):
		m.ToggleView()
		m.layout()
		return nil
	}

	if m.ValveModel.View() == models.ViewSequence {
		return m.handleSequenceKey(msg)
	}
	return m.handleControlKey(msg)
}

func (m *uiModel) handleControlKey(msg tea.KeyMsg) tea.Cmd {
	k := m.controlKeys
	switch {
	case key.Matches(msg, k.Up):
		m.ports.MoveUp()
	case key.Matches(msg, k.Down):
		m.ports.MoveDown()
	case key.Matches(msg, k.Refresh):
		return m.ScanPorts()
	case key.Matches(msg, k.Detect):
		m.addLog(components.EntryInfo, "Detecting valve controller...")
		return m.Detect()
	case key.Matches(msg, k.Connect):
		c, ok := m.ports.Selected()
		if !ok {
			return nil
		}
		m.statusBar.SetConnecting(c.Name)
		return m.Connect(c.Name)
	case key.Matches(msg, k.Disconnect):
		return m.ValveModel.Disconnect()
	case key.Matches(msg, k.Query):
		return m.Send(valve.QueryCommand)
	case key.Matches(msg, k.Position):
		i := int(msg.String()[0] - '1')
		if i >= len(m.positions) {
			return nil
		}
		return m.Send(m.positions[i])
	case key.Matches(msg, k.Clear):
		m.log.Clear()
	}
	return nil
}

func (m *uiModel) handleSequenceKey(msg tea.KeyMsg) tea.Cmd {
	k := m.seqKeys
	engine := m.Session().Sequence()
	selected, hasSelection := m.steps.Selected()

	switch {
	case key.Matches(msg, k.Up):
		m.steps.MoveUp()
	case key.Matches(msg, k.Down):
		m.steps.MoveDown()
	case key.Matches(msg, k.InsertMode):
		m.SetInputMode(models.InputModeInsert)
		m.input.StartAdd()
	case key.Matches(msg, k.Edit):
		node, ok := engine.Snapshot().Node(selected)
		if !hasSelection || !ok {
			return nil
		}
		m.SetInputMode(models.InputModeInsert)
		m.input.StartEdit(selected, node.Step)
	case key.Matches(msg, k.Remove):
		if hasSelection {
			m.edit(engine.RemoveStep(selected))
		}
	case key.Matches(msg, k.MoveUp):
		if hasSelection {
			m.edit(engine.MoveUp(selected))
		}
	case key.Matches(msg, k.MoveDown):
		if hasSelection {
			m.edit(engine.MoveDown(selected))
		}
	case key.Matches(msg, k.Link):
		if next, ok := m.steps.Following(); hasSelection && ok {
			m.edit(engine.ConnectSteps(selected, next))
		}
	case key.Matches(msg, k.Unlink):
		if hasSelection {
			m.edit(engine.DisconnectSteps(selected))
		}
	case key.Matches(msg, k.Demo):
		m.edit(engine.LoadDemo())
	case key.Matches(msg, k.Clear):
		m.edit(engine.Clear())
	case key.Matches(msg, k.Run), key.Matches(msg, k.Loop):
		loop := key.Matches(msg, k.Loop)
		if err := m.Session().Start(loop); err != nil {
			m.addLog(components.EntryError, "Cannot start: %v", err)
		}
	case key.Matches(msg, k.Stop):
		m.Session().Stop()
	}
	return nil
}

func (m *uiModel) handleInsertKey(msg tea.KeyMsg) tea.Cmd {
	k := m.seqKeys
	switch {
	case key.Matches(msg, k.Escape):
		m.SetInputMode(models.InputModeNormal)
		m.input.Blur()
		return nil
	case key.Matches(msg, k.Enter):
		m.saveStep()
		return nil
	case msg.Type == tea.KeyUp:
		m.input.NavigateHistoryUp()
		return nil
	case msg.Type == tea.KeyDown:
		m.input.NavigateHistoryDown()
		return nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *uiModel) saveStep() {
	text := m.input.Value()
	step, err := components.ParseStepInput(text, m.positions)
	if err != nil {
		m.addLog(components.EntryError, "%v", err)
		return
	}

	engine := m.Session().Sequence()
	if id := m.input.Editing(); id != 0 {
		err = engine.UpdateStep(id, step)
	} else {
		var id sequence.NodeID
		id, err = engine.AppendStep(step)
		if err == nil {
			defer m.steps.Select(id)
		}
	}
	m.edit(err)
	if err != nil {
		return
	}

	m.input.AddToHistory(text)
	m.input.SetValue("")
	m.input.Blur()
	m.SetInputMode(models.InputModeNormal)
}

func (m *uiModel) header() string {
	title := styles.TitleStyle.Render("valvectl")
	position := lipgloss.JoinHorizontal(lipgloss.Center,
		styles.LabelStyle.Render(" position "),
		styles.PositionBadge(byte(m.Position())))
	return lipgloss.JoinHorizontal(lipgloss.Center, title, position)
}

func (m *uiModel) View() string {
	if !m.IsReady() {
		return "Initializing..."
	}

	var main string
	var helpView string
	if m.ValveModel.View() == models.ViewSequence {
		main = m.steps.View()
		helpView = m.help.View(m.seqKeys)
	} else {
		main = m.ports.View()
		helpView = m.help.View(m.controlKeys)
	}

	sections := []string{m.header(), main, styles.ContentBorderStyle.Render(m.log.View())}
	if m.ValveModel.View() == models.ViewSequence {
		sections = append(sections, m.input.ViewWithMode(m.IsInInsertMode()))
	}

	mode := m.ValveModel.View().String()
	if m.IsInInsertMode() {
		mode = models.InputModeInsert.String()
	}
	status := m.statusBar.ComprehensiveStatusBar(mode,
		m.Session().Status().State.String(),
		m.IsConnected(),
		time.Now().Format("15:04:05"))

	sections = append(sections, helpView, status)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
