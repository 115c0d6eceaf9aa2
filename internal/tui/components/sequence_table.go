package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"

	"github.com/allbin/go-valve/internal/tui/colors"
	"github.com/allbin/go-valve/sequence"
)

const (
	colActive   = "active"
	colRun      = "run"
	colID       = "id"
	colPosition = "position"
	colDuration = "duration"
	colLayout   = "layout"
	colNext     = "next"
)

// SequenceTable shows the steps in layout order together with the order
// they will run in.
type SequenceTable struct {
	table  table.Model
	ids    []sequence.NodeID
	cursor int
	active sequence.NodeID
	mode   string
	seq    *sequence.Sequence
}

func NewSequenceTable(height int) *SequenceTable {
	t := table.New([]table.Column{
		table.NewColumn(colActive, "", 2),
		table.NewColumn(colRun, "Run", 5),
		table.NewColumn(colID, "Id", 5),
		table.NewColumn(colPosition, "Pos", 5),
		table.NewColumn(colDuration, "Hold", 9),
		table.NewColumn(colLayout, "X,Y", 12),
		table.NewColumn(colNext, "Next", 6),
	}).
		BorderRounded().
		HeaderStyle(lipgloss.NewStyle().Bold(true).Foreground(colors.Text)).
		HighlightStyle(lipgloss.NewStyle().Background(colors.Surface1).Foreground(colors.Text)).
		WithBaseStyle(lipgloss.NewStyle().BorderForeground(colors.Surface2).Foreground(colors.Subtext1)).
		Focused(true)

	st := &SequenceTable{table: t, mode: "-"}
	st.SetHeight(height)
	return st
}

func (st *SequenceTable) SetHeight(height int) {
	// header and borders take four lines
	size := height - 4
	if size < 3 {
		size = 3
	}
	st.table = st.table.WithPageSize(size)
}

// SetSequence rebuilds the rows from a snapshot, keeping the selection on
// the same node when it still exists.
func (st *SequenceTable) SetSequence(seq *sequence.Sequence) {
	selected, hadSelection := st.Selected()
	st.seq = seq

	runIndex := make(map[sequence.NodeID]int)
	st.mode = "-"
	if run, err := seq.ResolveOrder(); err == nil {
		st.mode = run.Mode.String()
		for i, n := range run.Nodes {
			runIndex[n.ID] = i + 1
		}
	}
	next := make(map[sequence.NodeID]sequence.NodeID)
	for _, e := range seq.Edges() {
		next[e.From] = e.To
	}

	nodes := seq.Nodes()
	st.ids = make([]sequence.NodeID, len(nodes))
	rows := make([]table.Row, len(nodes))
	for i, n := range nodes {
		st.ids[i] = n.ID
		nextText := ""
		if to, ok := next[n.ID]; ok {
			nextText = fmt.Sprintf("→%d", to)
		}
		marker := ""
		if n.ID == st.active {
			marker = "▶"
		}
		rows[i] = table.NewRow(table.RowData{
			colActive: table.NewStyledCell(marker, lipgloss.NewStyle().Foreground(colors.Green)),
			colRun:    runIndex[n.ID],
			colID:     int(n.ID),
			colPosition: table.NewStyledCell(n.Step.Position.String(),
				lipgloss.NewStyle().Foreground(colors.ForPosition(byte(n.Step.Position))).Bold(true)),
			colDuration: fmt.Sprintf("%.2fs", n.Step.Duration.Seconds()),
			colLayout:   fmt.Sprintf("%g,%g", n.X, n.Y),
			colNext:     nextText,
		})
	}
	st.table = st.table.WithRows(rows)

	st.cursor = 0
	if hadSelection {
		st.Select(selected)
	}
	st.clampCursor()
}

// SetActive marks the node currently being held; 0 clears the marker.
func (st *SequenceTable) SetActive(id sequence.NodeID) {
	if st.active == id {
		return
	}
	st.active = id
	if st.seq != nil {
		st.SetSequence(st.seq)
	}
}

// Mode returns how the run order was resolved.
func (st *SequenceTable) Mode() string {
	return st.mode
}

func (st *SequenceTable) Len() int {
	return len(st.ids)
}

// Selected returns the highlighted node.
func (st *SequenceTable) Selected() (sequence.NodeID, bool) {
	if st.cursor < 0 || st.cursor >= len(st.ids) {
		return 0, false
	}
	return st.ids[st.cursor], true
}

// Following returns the node in the row below the selection.
func (st *SequenceTable) Following() (sequence.NodeID, bool) {
	if st.cursor+1 >= len(st.ids) {
		return 0, false
	}
	return st.ids[st.cursor+1], true
}

func (st *SequenceTable) Select(id sequence.NodeID) {
	for i, candidate := range st.ids {
		if candidate == id {
			st.cursor = i
			st.table = st.table.WithHighlightedRow(i)
			return
		}
	}
}

func (st *SequenceTable) MoveUp() {
	st.cursor--
	st.clampCursor()
}

func (st *SequenceTable) MoveDown() {
	st.cursor++
	st.clampCursor()
}

func (st *SequenceTable) clampCursor() {
	if st.cursor >= len(st.ids) {
		st.cursor = len(st.ids) - 1
	}
	if st.cursor < 0 {
		st.cursor = 0
	}
	st.table = st.table.WithHighlightedRow(st.cursor)
}

func (st *SequenceTable) View() string {
	if len(st.ids) == 0 {
		return lipgloss.NewStyle().
			Foreground(colors.Overlay0).
			Render("Sequence is empty. Press 'a' to add a step or 'D' for the demo.")
	}
	footer := lipgloss.NewStyle().Foreground(colors.Subtext0).
		Render(fmt.Sprintf("%d steps, %s order", len(st.ids), st.mode))
	return lipgloss.JoinVertical(lipgloss.Left, st.table.View(), footer)
}
