package components

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogFormatter(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 30, 5, 0, time.UTC)
	f := NewLogFormatter(true)

	line := f.Format(LogEntry{Timestamp: ts, Kind: EntryRX, Text: "OK:B"})
	assert.Contains(t, line, "12:30:05.000")
	assert.Contains(t, line, "RX")
	assert.Contains(t, line, "OK:B")

	f.ToggleTimestamps()
	line = f.Format(LogEntry{Timestamp: ts, Kind: EntryError, Text: "ERR:MOTOR_STALL"})
	assert.NotContains(t, line, "12:30:05")
	assert.Contains(t, line, "ERR:MOTOR_STALL")
}

func TestLogScrollbackIsBounded(t *testing.T) {
	l := NewLog(80, 10)
	for i := 0; i < maxLogEntries+20; i++ {
		l.Add(LogEntry{Timestamp: time.Now(), Kind: EntryInfo, Text: fmt.Sprintf("line %d", i)})
	}
	entries := l.Entries()
	assert.Len(t, entries, maxLogEntries)
	assert.Equal(t, "line 20", entries[0].Text)
	assert.Contains(t, l.View(), fmt.Sprintf("line %d", maxLogEntries+19))

	l.Clear()
	assert.Empty(t, l.Entries())
}
