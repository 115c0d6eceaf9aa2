package valve

import (
	"bytes"
	"strings"
	"time"
)

const (
	maxLineLength  = 1024
	readRetryDelay = 10 * time.Millisecond
)

// readLoop runs for the lifetime of one connection. It splits the byte
// stream into lines and hands each to dispatch. It returns when stop is
// closed or the transport reports it is closed; other read errors are
// treated as transient.
func (c *Controller) readLoop(p Port, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Reader stopped after panic", "panic", r)
		}
	}()

	buf := make([]byte, 256)
	var lines lineSplitter

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := p.Read(buf)
		if n > 0 {
			for _, line := range lines.feed(buf[:n]) {
				c.dispatch(line)
			}
			if lines.dropped > 0 {
				c.logger.Debug("Dropped oversized line fragment", "bytes", lines.dropped)
				lines.dropped = 0
			}
		}

		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			if isClosedError(err) {
				c.logger.Debug("Transport closed, reader exiting")
				return
			}
			c.logger.Debug("Transient read error", "error", err)
			select {
			case <-stop:
				return
			case <-time.After(readRetryDelay):
			}
		}
	}
}

// dispatch classifies one line.
func (c *Controller) dispatch(line string) {
	class, payload := classifyLine(line)
	switch class {
	case lineEvent:
		pos, err := ParsePosition(payload)
		if err != nil || !c.config.HasPosition(pos) {
			c.config.Metrics.countLine("invalid_event")
			c.logger.Warn("Ignoring hardware event with unknown position", "line", line)
			return
		}
		c.config.Metrics.countLine("event")
		c.config.Metrics.countEvent(pos)
		c.logger.Debug("Hardware event", "position", pos.String())
		c.events.push(pos)
		c.notify(pos)

	case lineResponse:
		c.config.Metrics.countLine(parseResponse(line).Kind.String())
		c.responses.push(line)

	default:
		c.config.Metrics.countLine("ignored")
		c.logger.Debug("Discarding unrecognised line", "line", line)
	}
}

// lineSplitter turns a byte stream into trimmed, non-empty text lines.
// Invalid UTF-8 is dropped rather than rejected so a garbled line can still
// be recognised.
type lineSplitter struct {
	partial []byte
	dropped int
}

func (s *lineSplitter) feed(data []byte) []string {
	s.partial = append(s.partial, data...)

	var lines []string
	for {
		i := bytes.IndexByte(s.partial, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(strings.ToValidUTF8(string(s.partial[:i]), ""))
		s.partial = s.partial[i+1:]
		if line != "" {
			lines = append(lines, line)
		}
	}

	if len(s.partial) > maxLineLength {
		s.dropped += len(s.partial)
		s.partial = nil
	}
	return lines
}
