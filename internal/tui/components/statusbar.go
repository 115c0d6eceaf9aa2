package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-valve/internal/tui/colors"
)

type ConnectionInfo struct {
	BaudRate  int
	Driver    string
	Positions string
	Strict    bool
}

type StatusBar struct {
	title          string
	portPath       string
	status         string
	err            error
	width          int
	connectionInfo *ConnectionInfo
}

func NewStatusBar(title string) *StatusBar {
	return &StatusBar{
		title:  title,
		status: "Disconnected",
	}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

func (sb *StatusBar) SetConnectionInfo(info *ConnectionInfo) {
	sb.connectionInfo = info
}

func (sb *StatusBar) Status() string {
	return sb.status
}

func (sb *StatusBar) SetConnecting(portPath string) {
	sb.portPath = portPath
	sb.status = "Connecting..."
	sb.err = nil
}

func (sb *StatusBar) SetConnected(portPath string) {
	sb.portPath = portPath
	sb.status = "Connected"
	sb.err = nil
}

func (sb *StatusBar) SetDisconnected(err error) {
	if err != nil {
		sb.status = fmt.Sprintf("Connection failed: %v", err)
		sb.err = err
	} else {
		sb.status = "Disconnected"
		sb.err = nil
	}
}

// ComprehensiveStatusBar renders the bottom line: mode, port, link state,
// sequence state and connection parameters.
func (sb *StatusBar) ComprehensiveStatusBar(mode, sequenceState string, connected bool, timestamp string) string {
	terminalWidth := sb.width
	if terminalWidth <= 0 {
		terminalWidth = 80
	}

	modeBackground := colors.Blue
	if mode == "INSERT" {
		modeBackground = colors.Green
	}
	modeView := lipgloss.NewStyle().
		Foreground(colors.Base).
		Background(modeBackground).
		Bold(true).
		Padding(0, 1).
		Render(mode)

	portPath := sb.portPath
	if portPath == "" {
		portPath = sb.title
	}
	port := lipgloss.NewStyle().
		Foreground(colors.Mauve).
		Bold(true).
		Padding(0, 1).
		Render(portPath)

	var connIndicator string
	var connStyle lipgloss.Style
	switch {
	case sb.err != nil:
		connStyle = lipgloss.NewStyle().Foreground(colors.Red)
		connIndicator = "✗"
	case connected:
		connStyle = lipgloss.NewStyle().Foreground(colors.Green)
		connIndicator = "●"
	case sb.status == "Connecting...":
		connStyle = lipgloss.NewStyle().Foreground(colors.Yellow)
		connIndicator = "○"
	default:
		connStyle = lipgloss.NewStyle().Foreground(colors.Red)
		connIndicator = "○"
	}
	connectionIndicator := connStyle.Render(connIndicator)

	seqColor := colors.Subtext0
	switch sequenceState {
	case "running":
		seqColor = colors.Green
	case "stopping":
		seqColor = colors.Yellow
	}
	seq := lipgloss.NewStyle().
		Foreground(seqColor).
		Bold(true).
		Padding(0, 1).
		Render("seq: " + sequenceState)

	connInfo := "⚡ valve"
	if sb.connectionInfo != nil {
		strict := ""
		if sb.connectionInfo.Strict {
			strict = " strict"
		}
		connInfo = fmt.Sprintf("⚡ %d baud %s [%s]%s",
			sb.connectionInfo.BaudRate,
			sb.connectionInfo.Driver,
			sb.connectionInfo.Positions,
			strict)
	}
	connectionDetails := lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Padding(0, 1).
		Render(connInfo)

	timeView := lipgloss.NewStyle().
		Foreground(colors.Subtext1).
		Padding(0, 1).
		Render(timestamp)

	divider := lipgloss.NewStyle().
		Foreground(colors.Surface2).
		Padding(0, 1).
		Render("│")

	leftSide := lipgloss.JoinHorizontal(lipgloss.Left, modeView, port, connectionIndicator, divider, seq)
	rightSide := lipgloss.JoinHorizontal(lipgloss.Left, connectionDetails, divider, timeView)

	spacerWidth := terminalWidth - lipgloss.Width(leftSide) - lipgloss.Width(rightSide)
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	statusBarStyle := lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Surface0).
		Width(terminalWidth)

	return statusBarStyle.Render(lipgloss.JoinHorizontal(lipgloss.Left, leftSide, spacer, rightSide))
}
