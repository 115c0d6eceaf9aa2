package valve

import (
	"fmt"
	"strings"
)

// Position is one of the valve's discrete named states, sent on the wire as a
// single letter.
type Position byte

const (
	PositionA      Position = 'A'
	PositionB      Position = 'B'
	PositionCenter Position = 'C'
)

// QueryCommand asks the controller for its current position.
const QueryCommand byte = '?'

// Wire markers
const (
	markerAck   = "OK:"
	markerState = "STATE:"
	markerError = "ERR:"
	markerBoot  = "READY"
	markerEvent = "BTN:"
)

func (p Position) String() string {
	if p == 0 {
		return ""
	}
	return string(rune(p))
}

// ParsePosition accepts a single position letter, case-insensitive.
func ParsePosition(s string) (Position, error) {
	s = strings.TrimSpace(s)
	if len(s) != 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPosition, s)
	}
	c := s[0]
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	if c < 'A' || c > 'Z' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPosition, s)
	}
	return Position(c), nil
}

// Kind classifies a response line.
type Kind int

const (
	KindAck Kind = iota
	KindState
	KindError
	KindBoot
)

func (k Kind) String() string {
	switch k {
	case KindAck:
		return "ack"
	case KindState:
		return "state"
	case KindError:
		return "error"
	case KindBoot:
		return "boot"
	default:
		return "unknown"
	}
}

// Response is one classified response line.
type Response struct {
	Kind    Kind
	Line    string
	Payload string
}

// Position returns the position carried by an ack or state response.
func (r Response) Position() (Position, bool) {
	if r.Kind != KindAck && r.Kind != KindState {
		return 0, false
	}
	p, err := ParsePosition(r.Payload)
	if err != nil {
		return 0, false
	}
	return p, true
}

func (r Response) String() string {
	return r.Line
}

// lineClass is the dispatcher's verdict for one input line.
type lineClass int

const (
	lineIgnored lineClass = iota
	lineResponse
	lineEvent
)

// classifyLine applies the reader's classification order: events first, then
// the fixed response markers, everything else ignored.
func classifyLine(line string) (lineClass, string) {
	switch {
	case strings.HasPrefix(line, markerEvent):
		payload := strings.TrimPrefix(line, markerEvent)
		if i := strings.IndexByte(payload, ':'); i >= 0 {
			payload = payload[:i]
		}
		return lineEvent, strings.TrimSpace(payload)
	case strings.HasPrefix(line, markerAck),
		strings.HasPrefix(line, markerState),
		strings.HasPrefix(line, markerError),
		strings.HasPrefix(line, markerBoot):
		return lineResponse, line
	default:
		return lineIgnored, line
	}
}

// parseResponse builds a Response from a line already accepted by classifyLine.
func parseResponse(line string) Response {
	switch {
	case strings.HasPrefix(line, markerAck):
		return Response{Kind: KindAck, Line: line, Payload: payloadOf(line, markerAck)}
	case strings.HasPrefix(line, markerState):
		return Response{Kind: KindState, Line: line, Payload: payloadOf(line, markerState)}
	case strings.HasPrefix(line, markerError):
		return Response{Kind: KindError, Line: line, Payload: strings.TrimPrefix(line, markerError)}
	default:
		return Response{Kind: KindBoot, Line: line}
	}
}

// payloadOf returns the field after marker, up to the next separator.
func payloadOf(line, marker string) string {
	payload := strings.TrimPrefix(line, marker)
	if i := strings.IndexByte(payload, ':'); i >= 0 {
		payload = payload[:i]
	}
	return strings.TrimSpace(payload)
}

// expectedKind is STATE for the query character and ACK for everything else.
func expectedKind(cmd byte) Kind {
	if cmd == QueryCommand {
		return KindState
	}
	return KindAck
}
