package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-valve/internal/tui/colors"
)

// EntryKind tells where a log line came from
type EntryKind int

const (
	EntryTX EntryKind = iota
	EntryRX
	EntryEvent
	EntryInfo
	EntryError
)

// LogEntry is one line of the activity log
type LogEntry struct {
	Timestamp time.Time
	Kind      EntryKind
	Text      string
}

// LogEntryMsg appends an entry to the log from a background goroutine
type LogEntryMsg LogEntry

type LogFormatter struct {
	showTimestamps bool
}

func NewLogFormatter(showTimestamps bool) *LogFormatter {
	return &LogFormatter{showTimestamps: showTimestamps}
}

func (f *LogFormatter) ToggleTimestamps() {
	f.showTimestamps = !f.showTimestamps
}

func (f *LogFormatter) indicator(kind EntryKind) string {
	var color lipgloss.Color
	var text string
	switch kind {
	case EntryTX:
		color, text = colors.Peach, "↗ TX "
	case EntryRX:
		color, text = colors.Sky, "↙ RX "
	case EntryEvent:
		color, text = colors.Yellow, "⏻ BTN"
	case EntryError:
		color, text = colors.Red, "✗ ERR"
	default:
		color, text = colors.Subtext0, "• SEQ"
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true).Render(text)
}

func (f *LogFormatter) Format(e LogEntry) string {
	line := fmt.Sprintf("%s %s", f.indicator(e.Kind), e.Text)
	if !f.showTimestamps {
		return line
	}
	ts := lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Render(fmt.Sprintf("[%s]", e.Timestamp.Format("15:04:05.000")))
	return ts + " " + line
}

func (f *LogFormatter) FormatAll(entries []LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = f.Format(e)
	}
	return out
}
