package components

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-valve"
	"github.com/allbin/go-valve/internal/tui/colors"
)

// PortsMsg carries the result of a discovery scan
type PortsMsg struct {
	Candidates []valve.PortCandidate
	Err        error
}

// PortTable lists discovery candidates with their likelihood score
type PortTable struct {
	table      table.Model
	candidates []valve.PortCandidate
}

func NewPortTable(width, height int) *PortTable {
	if height < 3 {
		height = 3
	}

	t := table.New(
		table.WithColumns(portColumns(width)),
		table.WithFocused(true),
		table.WithHeight(height),
		table.WithWidth(width),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colors.Subtext0).
		BorderBottom(true).
		Bold(true).
		Foreground(colors.Text)
	s.Selected = s.Selected.
		Foreground(colors.Text).
		Background(colors.Surface1).
		Bold(false)
	t.SetStyles(s)

	return &PortTable{table: t}
}

func portColumns(width int) []table.Column {
	// Port, VID:PID and Score are fixed; the description takes the rest
	descWidth := width - 16 - 11 - 6 - 8
	if descWidth < 16 {
		descWidth = 16
	}
	return []table.Column{
		{Title: "Port", Width: 16},
		{Title: "Description", Width: descWidth},
		{Title: "VID:PID", Width: 11},
		{Title: "Score", Width: 6},
	}
}

func (pt *PortTable) SetSize(width, height int) {
	pt.table.SetColumns(portColumns(width))
	pt.table.SetHeight(height)
	pt.table.SetWidth(width)
	pt.table.UpdateViewport()
}

func (pt *PortTable) SetCandidates(candidates []valve.PortCandidate) {
	pt.candidates = candidates
	rows := make([]table.Row, len(candidates))
	for i, c := range candidates {
		rows[i] = candidateRow(c)
	}
	pt.table.SetRows(rows)
	if pt.table.Cursor() >= len(rows) {
		pt.table.SetCursor(0)
	}
}

func candidateRow(c valve.PortCandidate) table.Row {
	ids := "-"
	if c.IsUSB {
		ids = fmt.Sprintf("%04X:%04X", c.VID, c.PID)
	}
	desc := c.Description
	if c.Manufacturer != "" && c.Manufacturer != desc {
		desc = fmt.Sprintf("%s (%s)", desc, c.Manufacturer)
	}
	return table.Row{filepath.Base(c.Name), desc, ids, fmt.Sprintf("%d", valve.Score(c))}
}

// Select moves the cursor to the candidate named name.
func (pt *PortTable) Select(name string) {
	for i, c := range pt.candidates {
		if c.Name == name {
			pt.table.SetCursor(i)
			return
		}
	}
}

// Selected returns the highlighted candidate.
func (pt *PortTable) Selected() (valve.PortCandidate, bool) {
	i := pt.table.Cursor()
	if i < 0 || i >= len(pt.candidates) {
		return valve.PortCandidate{}, false
	}
	return pt.candidates[i], true
}

func (pt *PortTable) Len() int {
	return len(pt.candidates)
}

func (pt *PortTable) MoveUp() {
	pt.table.MoveUp(1)
}

func (pt *PortTable) MoveDown() {
	pt.table.MoveDown(1)
}

func (pt *PortTable) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	pt.table, cmd = pt.table.Update(msg)
	return cmd
}

func (pt *PortTable) View() string {
	if len(pt.candidates) == 0 {
		return lipgloss.NewStyle().Foreground(colors.Overlay0).Render("No serial ports found (r to rescan)")
	}
	return pt.table.View()
}
