package cmd

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allbin/go-valve"
	"github.com/allbin/go-valve/internal/devicetest"
	"github.com/allbin/go-valve/internal/tui/components"
	"github.com/allbin/go-valve/internal/tui/models"
	"github.com/allbin/go-valve/session"
)

func newTestUI(t *testing.T) (*uiModel, *devicetest.Device) {
	t.Helper()
	dev := devicetest.NewValve("ABC")
	s, err := session.New(session.WithControllerOptions(
		valve.WithSettleDelay(0),
		valve.WithPositions("ABC"),
		valve.WithOpener(func(string, valve.PortSettings) (valve.Port, error) {
			return dev, nil
		}),
	))
	require.NoError(t, err)

	m := newUIModel(s, &components.ConnectionInfo{BaudRate: 9600, Driver: "portable", Positions: "ABC"}, "")
	t.Cleanup(m.Cleanup)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m, dev
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func lastLog(m *uiModel) components.LogEntry {
	entries := m.log.Entries()
	if len(entries) == 0 {
		return components.LogEntry{}
	}
	return entries[len(entries)-1]
}

func TestUIAddStepFromInput(t *testing.T) {
	m, _ := newTestUI(t)

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, models.ViewSequence, m.ValveModel.View())

	m.Update(runes("a"))
	require.True(t, m.IsInInsertMode())
	m.Update(runes("B 1,5"))
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.False(t, m.IsInInsertMode())
	nodes := m.Session().Sequence().Snapshot().Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, valve.PositionB, nodes[0].Step.Position)
	assert.Equal(t, 1, m.steps.Len())
}

func TestUIRejectsUnknownPosition(t *testing.T) {
	m, _ := newTestUI(t)
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.Update(runes("a"))
	m.Update(runes("Z 1"))
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.True(t, m.IsInInsertMode(), "input stays open for correction")
	assert.Equal(t, components.EntryError, lastLog(m).Kind)
	assert.Equal(t, 0, m.Session().Sequence().Snapshot().Len())
}

func TestUIEditSelectedStep(t *testing.T) {
	m, _ := newTestUI(t)
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.Update(runes("D"))
	require.Equal(t, 4, m.steps.Len())

	m.Update(runes("e"))
	require.True(t, m.IsInInsertMode())
	m.input.SetValue("B 3")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	nodes := m.Session().Sequence().Snapshot().Nodes()
	require.Len(t, nodes, 4)
	assert.Equal(t, valve.PositionB, nodes[0].Step.Position)
	assert.Equal(t, "3s", nodes[0].Step.Duration.String())
}

func TestUIStartRequiresConnection(t *testing.T) {
	m, _ := newTestUI(t)
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.Update(runes("D"))
	m.Update(runes("r"))

	entry := lastLog(m)
	assert.Equal(t, components.EntryError, entry.Kind)
	assert.Contains(t, entry.Text, "Cannot start")
}

func TestUIConnectAndMove(t *testing.T) {
	m, _ := newTestUI(t)
	require.NoError(t, m.Session().Connect(context.Background(), "/dev/ttyACM0"))

	// a successful connection queries the current position
	cmd := m.handleConnection(models.ConnectionStatusMsg{Port: "/dev/ttyACM0", Connected: true})
	require.NotNil(t, cmd)
	m.Update(cmd())
	assert.Equal(t, valve.PositionA, m.Position())

	_, cmd = m.Update(runes("3"))
	require.NotNil(t, cmd)
	m.Update(cmd())
	assert.Equal(t, valve.PositionCenter, m.Position())
	assert.Equal(t, "OK:C", lastLog(m).Text)

	// only three positions are configured
	_, cmd = m.Update(runes("4"))
	assert.Nil(t, cmd)
}

func TestUIHardwareEvent(t *testing.T) {
	m, _ := newTestUI(t)
	m.Update(models.HardwareEventMsg{Position: valve.PositionB})
	assert.Equal(t, valve.PositionB, m.Position())
	assert.Equal(t, components.EntryEvent, lastLog(m).Kind)
}

func TestUIView(t *testing.T) {
	m, _ := newTestUI(t)
	assert.Contains(t, m.View(), "CONTROL")
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Contains(t, m.View(), "SEQUENCE")
}
