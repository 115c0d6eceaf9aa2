package valve

import (
	"errors"
	"testing"
)

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in      string
		want    Position
		wantErr bool
	}{
		{"A", PositionA, false},
		{"b", PositionB, false},
		{" C ", PositionCenter, false},
		{"", 0, true},
		{"AB", 0, true},
		{"1", 0, true},
		{"?", 0, true},
	}

	for _, tt := range tests {
		got, err := ParsePosition(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePosition(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr && !errors.Is(err, ErrInvalidPosition) {
			t.Errorf("ParsePosition(%q) error = %v, want ErrInvalidPosition", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParsePosition(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line    string
		class   lineClass
		payload string
	}{
		{"BTN:A", lineEvent, "A"},
		{"BTN:B:extra", lineEvent, "B"},
		{"BTN:", lineEvent, ""},
		{"OK:A", lineResponse, "OK:A"},
		{"STATE:B", lineResponse, "STATE:B"},
		{"ERR:BUSY", lineResponse, "ERR:BUSY"},
		{"READY", lineResponse, "READY"},
		{"debug: pressure 3.2", lineIgnored, "debug: pressure 3.2"},
		{"ok:a", lineIgnored, "ok:a"},
	}

	for _, tt := range tests {
		class, payload := classifyLine(tt.line)
		if class != tt.class || payload != tt.payload {
			t.Errorf("classifyLine(%q) = (%v, %q), want (%v, %q)", tt.line, class, payload, tt.class, tt.payload)
		}
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		line    string
		kind    Kind
		payload string
	}{
		{"OK:A", KindAck, "A"},
		{"OK:B:1234", KindAck, "B"},
		{"STATE:C", KindState, "C"},
		{"ERR:VALVE JAMMED", KindError, "VALVE JAMMED"},
		{"READY", KindBoot, ""},
	}

	for _, tt := range tests {
		resp := parseResponse(tt.line)
		if resp.Kind != tt.kind || resp.Payload != tt.payload || resp.Line != tt.line {
			t.Errorf("parseResponse(%q) = %+v", tt.line, resp)
		}
	}
}

func TestResponsePosition(t *testing.T) {
	if p, ok := parseResponse("STATE:B").Position(); !ok || p != PositionB {
		t.Errorf("STATE:B position = %v, %v", p, ok)
	}
	if _, ok := parseResponse("ERR:A").Position(); ok {
		t.Error("error responses carry no position")
	}
	if _, ok := parseResponse("OK:").Position(); ok {
		t.Error("empty payload carries no position")
	}
}

func TestExpectedKind(t *testing.T) {
	if expectedKind('?') != KindState {
		t.Error("query should expect a STATE response")
	}
	for _, cmd := range []byte("ABC") {
		if expectedKind(cmd) != KindAck {
			t.Errorf("command %q should expect an OK response", cmd)
		}
	}
}
