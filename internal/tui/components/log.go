package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// maxLogEntries bounds the scrollback
const maxLogEntries = 500

// Log is a scrolling activity view
type Log struct {
	viewport  viewport.Model
	formatter *LogFormatter
	entries   []LogEntry
}

func NewLog(width, height int) *Log {
	return &Log{
		viewport:  viewport.New(width, height),
		formatter: NewLogFormatter(true),
	}
}

func (l *Log) SetSize(width, height int) {
	l.viewport.Width = width
	l.viewport.Height = height
	l.refresh()
}

func (l *Log) Add(e LogEntry) {
	l.entries = append(l.entries, e)
	if len(l.entries) > maxLogEntries {
		l.entries = l.entries[len(l.entries)-maxLogEntries:]
	}
	l.refresh()
}

func (l *Log) Entries() []LogEntry {
	return l.entries
}

func (l *Log) Clear() {
	l.entries = nil
	l.viewport.SetContent("")
}

func (l *Log) ToggleTimestamps() {
	l.formatter.ToggleTimestamps()
	l.refresh()
}

func (l *Log) refresh() {
	l.viewport.SetContent(strings.Join(l.formatter.FormatAll(l.entries), "\n"))
	l.viewport.GotoBottom()
}

func (l *Log) Update(msg tea.Msg) tea.Cmd {
	// keys stay with the views
	switch msg.(type) {
	case tea.MouseMsg:
		var cmd tea.Cmd
		l.viewport, cmd = l.viewport.Update(msg)
		return cmd
	default:
		return nil
	}
}

func (l *Log) View() string {
	return l.viewport.View()
}
